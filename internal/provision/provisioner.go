// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package provision creates and destroys physical tenant databases and hands
// out scoped connections to them. DDL issued here is never wrapped in a
// transaction: CREATE/DROP DATABASE implicitly commits on the engines we
// support, so transactional safety has to come from sequencing, not from an
// enclosing transaction.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/toeirei/tenantd/internal/model"
)

// identifier whitelists database names before they are spliced into DDL.
// Tenant names come from model.TenantDatabaseName and always match, but the
// provisioner validates anyway since DDL cannot use placeholders.
var identifier = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Provisioner creates and drops physical tenant databases and opens scoped
// connections described by a ConnectionDescriptor.
type Provisioner interface {
	DescriptorFor(ws *model.Workspace) model.ConnectionDescriptor
	CreateDatabase(ctx context.Context, desc model.ConnectionDescriptor) error
	DropDatabase(ctx context.Context, desc model.ConnectionDescriptor) error
	WithConnection(ctx context.Context, desc model.ConnectionDescriptor, fn func(db *bun.DB) error) error
}

// Options configures a Provisioner.
type Options struct {
	// Engine is sqlite, postgres or mysql.
	Engine string
	// DataDir holds tenant database files for the sqlite engine.
	DataDir string
	// AdminDSN is a server-level connection used for CREATE/DROP DATABASE on
	// postgres and mysql. Unused for sqlite.
	AdminDSN string
	// DSNTemplate builds a tenant DSN from the database name via fmt.Sprintf,
	// e.g. "postgres://app@db:5432/%s". Unused for sqlite, where the DSN is
	// the database file path under DataDir.
	DSNTemplate string
}

// New returns a Provisioner for the configured engine.
func New(opts Options) (Provisioner, error) {
	switch opts.Engine {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported tenant database engine: %q", opts.Engine)
	}
	if opts.Engine == "sqlite" && opts.DataDir == "" {
		return nil, fmt.Errorf("sqlite engine requires a data dir")
	}
	if opts.Engine != "sqlite" && opts.AdminDSN == "" {
		return nil, fmt.Errorf("%s engine requires an admin DSN", opts.Engine)
	}
	if opts.Engine != "sqlite" && opts.DSNTemplate == "" {
		return nil, fmt.Errorf("%s engine requires a DSN template", opts.Engine)
	}
	return &provisioner{
		opts:   opts,
		active: make(map[string]struct{}),
	}, nil
}

type provisioner struct {
	opts Options

	// active tracks registered connection descriptors by database name. A
	// descriptor is owned by exactly one operation at a time; a shared worker
	// process must never leak one operation's tenant connection into
	// another's context.
	mu     sync.Mutex
	active map[string]struct{}
}

// DescriptorFor builds the transient connection descriptor for a workspace's
// tenant database. Descriptors are never persisted.
func (p *provisioner) DescriptorFor(ws *model.Workspace) model.ConnectionDescriptor {
	return model.ConnectionDescriptor{
		Engine:   p.opts.Engine,
		DSN:      p.tenantDSN(ws.DatabaseName),
		Database: ws.DatabaseName,
	}
}

func (p *provisioner) tenantDSN(database string) string {
	if p.opts.Engine == "sqlite" {
		return filepath.Join(p.opts.DataDir, database+".db")
	}
	return fmt.Sprintf(p.opts.DSNTemplate, database)
}

// CreateDatabase physically creates an isolated tenant database. DDL is its
// own unit of work; there is deliberately no transaction here.
func (p *provisioner) CreateDatabase(ctx context.Context, desc model.ConnectionDescriptor) error {
	if !identifier.MatchString(desc.Database) {
		return fmt.Errorf("invalid tenant database name: %q", desc.Database)
	}

	if p.opts.Engine == "sqlite" {
		if err := os.MkdirAll(p.opts.DataDir, 0o750); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		f, err := os.OpenFile(p.tenantDSN(desc.Database), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err != nil {
			if os.IsExist(err) {
				return fmt.Errorf("database %s: %w", desc.Database, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to create tenant database file: %w", err)
		}
		return f.Close()
	}

	admin, err := p.openAdmin()
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close() }()

	exists, err := p.databaseExists(ctx, admin, desc.Database)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("database %s: %w", desc.Database, ErrAlreadyExists)
	}
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+desc.Database); err != nil {
		return fmt.Errorf("failed to create tenant database %s: %w", desc.Database, err)
	}
	return nil
}

// DropDatabase physically destroys a tenant database. Must never be invoked
// inside an ambient transaction. Active connections blocking the drop
// surface as a *TeardownError; no forced disconnect is attempted.
func (p *provisioner) DropDatabase(ctx context.Context, desc model.ConnectionDescriptor) error {
	if !identifier.MatchString(desc.Database) {
		return fmt.Errorf("invalid tenant database name: %q", desc.Database)
	}

	if p.opts.Engine == "sqlite" {
		err := os.Remove(p.tenantDSN(desc.Database))
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("database %s: %w", desc.Database, ErrNotFound)
			}
			return &TeardownError{Database: desc.Database, Err: err}
		}
		return nil
	}

	admin, err := p.openAdmin()
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close() }()

	exists, err := p.databaseExists(ctx, admin, desc.Database)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("database %s: %w", desc.Database, ErrNotFound)
	}
	if _, err := admin.ExecContext(ctx, "DROP DATABASE "+desc.Database); err != nil {
		return &TeardownError{Database: desc.Database, Err: err}
	}
	return nil
}

// WithConnection registers the descriptor, opens a connection for it, runs
// fn and guarantees close plus deregistration on every exit path, including
// panics. Two concurrent registrations of the same descriptor fail with
// ErrDescriptorInUse.
func (p *provisioner) WithConnection(ctx context.Context, desc model.ConnectionDescriptor, fn func(db *bun.DB) error) error {
	p.mu.Lock()
	if _, busy := p.active[desc.Database]; busy {
		p.mu.Unlock()
		return fmt.Errorf("database %s: %w", desc.Database, ErrDescriptorInUse)
	}
	p.active[desc.Database] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.active, desc.Database)
		p.mu.Unlock()
	}()

	sqlDB, err := sql.Open(driverName(desc.Engine), desc.DSN)
	if err != nil {
		return fmt.Errorf("failed to open tenant connection %s: %w", desc, err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("tenant database %s unreachable: %w", desc.Database, err)
	}

	db := wrapBun(sqlDB, desc.Engine)
	return fn(db)
}

func (p *provisioner) openAdmin() (*sql.DB, error) {
	admin, err := sqlOpenFunc(driverName(p.opts.Engine), p.opts.AdminDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}
	return admin, nil
}

func (p *provisioner) databaseExists(ctx context.Context, admin *sql.DB, database string) (bool, error) {
	var query string
	switch p.opts.Engine {
	case "postgres":
		query = "SELECT 1 FROM pg_database WHERE datname = $1"
	case "mysql":
		query = "SELECT 1 FROM information_schema.schemata WHERE schema_name = ?"
	default:
		return false, fmt.Errorf("databaseExists not supported for engine %q", p.opts.Engine)
	}
	var one int
	err := admin.QueryRowContext(ctx, query, database).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check database %s: %w", database, err)
	}
	return true, nil
}

// sqlOpenFunc allows tests to override admin connection opening.
var sqlOpenFunc = sql.Open

func driverName(engine string) string {
	if engine == "postgres" {
		return "pgx"
	}
	return engine
}

func wrapBun(sqlDB *sql.DB, engine string) *bun.DB {
	switch engine {
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}
