// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package acl seeds and removes per-tenant ACL data: permission strings and
// roles declared by feature modules. Enforcement happens elsewhere in the
// application; this package only maintains the rows.
package acl

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// PermissionModel maps the tenant permissions table.
type PermissionModel struct {
	bun.BaseModel `bun:"table:permissions"`
	Name          string    `bun:"name,pk"`
	ModuleKey     string    `bun:"module_key"`
	CreatedAt     time.Time `bun:"created_at"`
}

// RoleModel maps the tenant roles table.
type RoleModel struct {
	bun.BaseModel `bun:"table:roles"`
	Name          string    `bun:"name,pk"`
	ModuleKey     string    `bun:"module_key"`
	CreatedAt     time.Time `bun:"created_at"`
}

// RolePermissionModel maps the role/permission join table.
type RolePermissionModel struct {
	bun.BaseModel  `bun:"table:role_permissions"`
	RoleName       string `bun:"role_name,pk"`
	PermissionName string `bun:"permission_name,pk"`
}

// Store is the ACL collaborator consumed by the module lifecycle manager.
// All operations are keyed by an explicit tenant connection; there is no
// ambient "current tenant".
type Store interface {
	SeedPermissions(ctx context.Context, db bun.IDB, moduleKey string, permissions []string) error
	RemovePermissions(ctx context.Context, db bun.IDB, moduleKey string) error
	CreateRole(ctx context.Context, db bun.IDB, moduleKey, name string, permissions []string) error
	RemoveRoles(ctx context.Context, db bun.IDB, moduleKey string) error
}

// BunStore is the default Store implementation against the tenant ACL
// tables created by the core script set.
type BunStore struct{}

// NewStore returns the bun-backed ACL store.
func NewStore() *BunStore { return &BunStore{} }

// SeedPermissions upserts the module's permission rows. Re-seeding already
// present permissions is a no-op, so installs are idempotent up to the point
// the installation record is written.
func (s *BunStore) SeedPermissions(ctx context.Context, db bun.IDB, moduleKey string, permissions []string) error {
	if len(permissions) == 0 {
		return nil
	}
	rows := make([]PermissionModel, len(permissions))
	now := time.Now().UTC()
	for i, p := range permissions {
		rows[i] = PermissionModel{Name: p, ModuleKey: moduleKey, CreatedAt: now}
	}
	// Ignore() renders INSERT IGNORE on MySQL and ON CONFLICT DO NOTHING on
	// SQLite/Postgres.
	if _, err := db.NewInsert().Model(&rows).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("failed to seed permissions for %s: %w", moduleKey, err)
	}
	return nil
}

// RemovePermissions deletes every permission owned by the module.
func (s *BunStore) RemovePermissions(ctx context.Context, db bun.IDB, moduleKey string) error {
	if _, err := db.NewDelete().
		Model((*PermissionModel)(nil)).
		Where("module_key = ?", moduleKey).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove permissions for %s: %w", moduleKey, err)
	}
	return nil
}

// CreateRole creates a module role and attaches the given permissions.
// Existing rows are left alone, matching SeedPermissions semantics.
func (s *BunStore) CreateRole(ctx context.Context, db bun.IDB, moduleKey, name string, permissions []string) error {
	role := RoleModel{Name: name, ModuleKey: moduleKey, CreatedAt: time.Now().UTC()}
	if _, err := db.NewInsert().Model(&role).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create role %s: %w", name, err)
	}
	if len(permissions) == 0 {
		return nil
	}
	links := make([]RolePermissionModel, len(permissions))
	for i, p := range permissions {
		links[i] = RolePermissionModel{RoleName: name, PermissionName: p}
	}
	if _, err := db.NewInsert().Model(&links).Ignore().Exec(ctx); err != nil {
		return fmt.Errorf("failed to attach permissions to role %s: %w", name, err)
	}
	return nil
}

// RemoveRoles deletes every role owned by the module along with its
// permission attachments.
func (s *BunStore) RemoveRoles(ctx context.Context, db bun.IDB, moduleKey string) error {
	var names []string
	err := db.NewSelect().
		Model((*RoleModel)(nil)).
		Column("name").
		Where("module_key = ?", moduleKey).
		Scan(ctx, &names)
	if err != nil {
		return fmt.Errorf("failed to list roles for %s: %w", moduleKey, err)
	}
	if len(names) > 0 {
		if _, err := db.NewDelete().
			Model((*RolePermissionModel)(nil)).
			Where("role_name IN (?)", bun.In(names)).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to detach role permissions for %s: %w", moduleKey, err)
		}
	}
	if _, err := db.NewDelete().
		Model((*RoleModel)(nil)).
		Where("module_key = ?", moduleKey).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove roles for %s: %w", moduleKey, err)
	}
	return nil
}
