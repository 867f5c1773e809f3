// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db provides the control-plane registry: the shared database that
// holds workspace rows and module installation records. Tenant databases are
// never touched from here; they belong to the provision and migrate packages.
package db // import "github.com/toeirei/tenantd/internal/db"

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	// SQL drivers required for integration tests and runtime.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/toeirei/tenantd/internal/model"
)

//go:embed migrations
var embeddedMigrations embed.FS

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// RegistryStore is the interface to the control-plane registry. All methods
// that mutate the registry run in their own short transaction unless the
// store was opened with WithoutShortTransactions.
type RegistryStore interface {
	// Workspace methods
	CreateWorkspace(ctx context.Context, ws *model.Workspace) error
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	GetWorkspaceByName(ctx context.Context, name string) (*model.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]model.Workspace, error)
	UpdateWorkspaceStatus(ctx context.Context, id string, status model.WorkspaceStatus) error
	DeleteWorkspace(ctx context.Context, id string) error
	PurgeDestroyed(ctx context.Context) (int, error)

	// Module installation methods
	AddInstallation(ctx context.Context, inst *model.WorkspaceModuleInstallation) error
	GetInstallation(ctx context.Context, workspaceID, moduleKey string) (*model.WorkspaceModuleInstallation, error)
	ListInstallations(ctx context.Context, workspaceID string) ([]model.WorkspaceModuleInstallation, error)
	DeleteInstallation(ctx context.Context, workspaceID, moduleKey string) error

	Close() error
}

// Option configures registry opening.
type Option func(*registryOptions)

type registryOptions struct {
	noShortTx bool
}

// WithoutShortTransactions disables the registry's own short transactions.
// Use this when the caller already wraps the whole operation in an outer
// transactional scope (test harnesses, mostly); nesting transactions around
// code that also issues DDL trips the auto-commit hazard.
func WithoutShortTransactions() Option {
	return func(o *registryOptions) { o.noShortTx = true }
}

// NewRegistry opens the control-plane registry for the given dbType
// ("sqlite", "postgres" or "mysql") and DSN, runs pending registry
// migrations and returns the store.
func NewRegistry(dbType, dsn string, opts ...Option) (RegistryStore, error) {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}

	driverName := dbType
	// The pgx stdlib registers driver name "pgx"; map "postgres" to that driver.
	if dbType == "postgres" {
		driverName = "pgx"
	}
	start := time.Now()
	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	configurePool(sqlDB, dbType, dsn)
	dbLogf("db: opened %s registry in %s", driverName, time.Since(start))

	if err := runRegistryMigrations(sqlDB, dbType); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run registry migrations: %w", err)
	}

	return &bunRegistry{
		db:        createBunDB(sqlDB, dbType),
		noShortTx: o.noShortTx,
	}, nil
}

// configurePool applies conservative connection pool defaults, overridable
// via environment variables for CI or production tuning.
func configurePool(sqlDB *sql.DB, dbType, dsn string) {
	const (
		defaultMaxOpenConns    = 25
		defaultMaxIdleConns    = 25
		defaultConnMaxLifetime = 5 * time.Minute
	)

	maxOpen := defaultMaxOpenConns
	if v := os.Getenv("TENANTD_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			maxOpen = n
		}
	}
	maxIdle := defaultMaxIdleConns
	if v := os.Getenv("TENANTD_DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			maxIdle = n
		}
	}

	// In-memory SQLite gives each connection its own database; force a single
	// connection so schema changes stay visible. Tests rely on this.
	if dbType == "sqlite" && dsn == ":memory:" {
		maxOpen = 1
		maxIdle = 1
	}

	connMax := defaultConnMaxLifetime
	if v := os.Getenv("TENANTD_DB_CONN_MAX_LIFETIME_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			connMax = time.Duration(n) * time.Second
		}
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMax)
}

// createBunDB wraps the sql.DB with the bun dialect for dbType.
func createBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case "sqlite":
		return bun.NewDB(sqlDB, sqlitedialect.New())
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		// Fallback to SQLite dialect as a safe default; callers should validate dbType earlier.
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}
