// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/tenantd/internal/acl"
	"github.com/toeirei/tenantd/internal/catalog"
	"github.com/toeirei/tenantd/internal/db"
	"github.com/toeirei/tenantd/internal/logging"
	"github.com/toeirei/tenantd/internal/migrate"
	"github.com/toeirei/tenantd/internal/model"
	"github.com/toeirei/tenantd/internal/provision"
)

// ModuleManager installs and uninstalls feature modules in a workspace's
// tenant database: the module's own script set, its permission seed data and
// its role templates. Core scripts and other modules' scripts are never
// touched.
type ModuleManager struct {
	registry db.RegistryStore
	prov     provision.Provisioner
	runner   *migrate.Runner
	catalog  catalog.Catalog
	acl      acl.Store
	locks    *LockTable
	now      func() time.Time
}

// NewModuleManager wires a ModuleManager sharing the workspace lock table.
func NewModuleManager(
	registry db.RegistryStore,
	prov provision.Provisioner,
	runner *migrate.Runner,
	cat catalog.Catalog,
	aclStore acl.Store,
	locks *LockTable,
) *ModuleManager {
	return &ModuleManager{
		registry: registry,
		prov:     prov,
		runner:   runner,
		catalog:  cat,
		acl:      aclStore,
		locks:    locks,
		now:      time.Now,
	}
}

// Install installs the module into the workspace. Guard failures (unknown
// module, already installed, workspace not active) return before any tenant
// connection is opened. If anything fails after the module's migrations were
// applied, the just-applied migrations are rolled back so a failed install
// leaves no orphaned schema objects.
func (m *ModuleManager) Install(ctx context.Context, workspaceID, moduleKey string) error {
	entry, err := m.catalog.Lookup(moduleKey)
	if err != nil {
		return err
	}

	if !m.locks.TryAcquire(workspaceID) {
		return fmt.Errorf("workspace %s: %w", workspaceID, ErrConcurrencyConflict)
	}
	defer m.locks.Release(workspaceID)

	ws, err := m.registry.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if ws.Status != model.StatusActive {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("modules can only be installed in active workspaces, workspace is %s", ws.Status)}
	}

	if _, err := m.registry.GetInstallation(ctx, workspaceID, moduleKey); err == nil {
		return fmt.Errorf("module %s in workspace %s: %w", moduleKey, workspaceID, ErrAlreadyInstalled)
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	desc := m.prov.DescriptorFor(ws)
	err = m.prov.WithConnection(ctx, desc, func(tdb *bun.DB) error {
		applied, err := m.runner.ApplyPending(ctx, tdb, entry.Scripts)
		if err != nil {
			return err
		}

		if err := m.seedACL(ctx, tdb, entry); err != nil {
			m.compensate(ctx, tdb, entry, applied)
			return err
		}

		inst := &model.WorkspaceModuleInstallation{
			WorkspaceID: workspaceID,
			ModuleKey:   moduleKey,
			InstalledAt: m.now().UTC(),
		}
		if err := m.registry.AddInstallation(ctx, inst); err != nil {
			m.compensate(ctx, tdb, entry, applied)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	logging.Infof("module %s installed in workspace %s", moduleKey, ws)
	return nil
}

// Uninstall removes the module from the workspace: its migrations are rolled
// back in reverse order, its ACL data removed, and finally the installation
// record deleted. If the rollback fails partway the installation record is
// left intact and the error reports exactly which scripts were reverted —
// uninstall success is never reported while schema objects remain.
func (m *ModuleManager) Uninstall(ctx context.Context, workspaceID, moduleKey string) error {
	if !m.locks.TryAcquire(workspaceID) {
		return fmt.Errorf("workspace %s: %w", workspaceID, ErrConcurrencyConflict)
	}
	defer m.locks.Release(workspaceID)

	if _, err := m.registry.GetInstallation(ctx, workspaceID, moduleKey); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("module %s in workspace %s: %w", moduleKey, workspaceID, ErrNotInstalled)
		}
		return err
	}

	entry, err := m.catalog.Lookup(moduleKey)
	if err != nil {
		return err
	}

	ws, err := m.registry.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}

	desc := m.prov.DescriptorFor(ws)
	err = m.prov.WithConnection(ctx, desc, func(tdb *bun.DB) error {
		if _, err := m.runner.Rollback(ctx, tdb, entry.Scripts); err != nil {
			// Schema objects remain; the module stays installed.
			return err
		}
		if err := m.acl.RemoveRoles(ctx, tdb, moduleKey); err != nil {
			return err
		}
		return m.acl.RemovePermissions(ctx, tdb, moduleKey)
	})
	if err != nil {
		return err
	}

	if err := m.registry.DeleteInstallation(ctx, workspaceID, moduleKey); err != nil {
		return err
	}
	logging.Infof("module %s uninstalled from workspace %s", moduleKey, ws)
	return nil
}

// Installed lists the workspace's installation records.
func (m *ModuleManager) Installed(ctx context.Context, workspaceID string) ([]model.WorkspaceModuleInstallation, error) {
	return m.registry.ListInstallations(ctx, workspaceID)
}

func (m *ModuleManager) seedACL(ctx context.Context, tdb *bun.DB, entry *catalog.Entry) error {
	def := entry.Definition
	if err := m.acl.SeedPermissions(ctx, tdb, def.Key, def.Permissions); err != nil {
		return err
	}
	for _, role := range def.Roles {
		if err := m.acl.CreateRole(ctx, tdb, def.Key, role.Name, role.Permissions); err != nil {
			return err
		}
	}
	return nil
}

// compensate rolls back the migrations a failed install just applied. A
// failed compensation is logged, not retried; the original error is what
// the caller needs to see.
func (m *ModuleManager) compensate(ctx context.Context, tdb *bun.DB, entry *catalog.Entry, applied []string) {
	if len(applied) == 0 {
		return
	}
	if _, err := m.runner.Rollback(ctx, tdb, entry.Scripts); err != nil {
		logging.Errorf("compensating rollback of module %s failed: %v", entry.Definition.Key, err)
	}
}
