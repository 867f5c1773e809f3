// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package lifecycle orchestrates workspace creation/destruction and module
// install/uninstall. It composes the provisioner, migration runner, catalog
// and ACL store; callers above it never see those collaborators directly.
//
// The central hazard everything here is arranged around: schema-altering
// statements implicitly commit any open transaction on the engines we
// support. Registry mutations therefore run in their own short transactions,
// DDL runs outside any transaction, and failures during irreversible steps
// are surfaced for explicit operator action instead of being retried.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/toeirei/tenantd/internal/db"
	"github.com/toeirei/tenantd/internal/logging"
	"github.com/toeirei/tenantd/internal/migrate"
	"github.com/toeirei/tenantd/internal/model"
	"github.com/toeirei/tenantd/internal/provision"
	"github.com/toeirei/tenantd/internal/storage"
)

// workspaceName constrains workspace names to short DNS-label-like slugs.
var workspaceName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// CreateAttrs are the caller-supplied attributes for a new workspace.
type CreateAttrs struct {
	Name string
}

// WorkspaceManager drives the workspace state machine:
//
//	pending → provisioning → active → archived ⇄ active → destroying → destroyed
//
// with failed_provisioning as the terminal failure state of creation.
type WorkspaceManager struct {
	registry db.RegistryStore
	prov     provision.Provisioner
	runner   *migrate.Runner
	core     *migrate.ScriptSet
	store    storage.Purger
	locks    *LockTable
	now      func() time.Time
}

// NewWorkspaceManager wires a WorkspaceManager. The lock table must be
// shared with the ModuleManager operating on the same registry so module
// and workspace operations on one workspace can never interleave.
func NewWorkspaceManager(
	registry db.RegistryStore,
	prov provision.Provisioner,
	runner *migrate.Runner,
	core *migrate.ScriptSet,
	store storage.Purger,
	locks *LockTable,
) *WorkspaceManager {
	return &WorkspaceManager{
		registry: registry,
		prov:     prov,
		runner:   runner,
		core:     core,
		store:    store,
		locks:    locks,
		now:      time.Now,
	}
}

// Create provisions a new workspace: registry row first (committed
// immediately so a later failure leaves a diagnosable record), then the
// physical tenant database, then the core script set. The workspace becomes
// active only after every step succeeded.
func (m *WorkspaceManager) Create(ctx context.Context, ownerID string, attrs CreateAttrs) (*model.Workspace, error) {
	if !workspaceName.MatchString(attrs.Name) {
		return nil, &ValidationError{Field: "name", Reason: "must be a lowercase slug of 2-63 characters"}
	}
	if ownerID == "" {
		return nil, &ValidationError{Field: "owner", Reason: "must not be empty"}
	}

	id := uuid.NewString()
	now := m.now().UTC()
	ws := &model.Workspace{
		ID:           id,
		Name:         attrs.Name,
		DatabaseName: model.TenantDatabaseName(id),
		Status:       model.StatusPending,
		OwnerID:      ownerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.registry.CreateWorkspace(ctx, ws); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("workspace %q already exists", attrs.Name)}
		}
		return nil, err
	}

	if !m.locks.TryAcquire(id) {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrConcurrencyConflict)
	}
	defer m.locks.Release(id)

	if err := m.setStatus(ctx, ws, model.StatusProvisioning); err != nil {
		return nil, err
	}

	desc := m.prov.DescriptorFor(ws)

	// DDL runs outside any transaction from here on.
	if err := m.prov.CreateDatabase(ctx, desc); err != nil {
		m.failProvisioning(ctx, ws)
		return nil, &ProvisioningError{WorkspaceID: id, Step: "create database", Err: err}
	}

	err := m.prov.WithConnection(ctx, desc, func(tdb *bun.DB) error {
		_, err := m.runner.ApplyPending(ctx, tdb, m.core)
		return err
	})
	if err != nil {
		// The database exists but its schema is incomplete; compensate by
		// dropping it. If the compensation itself fails the workspace is left
		// in failed_provisioning for operator cleanup, never retried here.
		if dropErr := m.prov.DropDatabase(ctx, desc); dropErr != nil {
			logging.Errorf("compensating drop of %s failed: %v", desc.Database, dropErr)
		}
		m.failProvisioning(ctx, ws)
		return nil, &ProvisioningError{WorkspaceID: id, Step: "apply core migrations", Err: err}
	}

	if err := m.store.EnsureNamespace(ctx, id); err != nil {
		// Storage is provisioned lazily by uploads anyway; log and continue.
		logging.Warnf("could not pre-create storage namespace for %s: %v", id, err)
	}

	if err := m.setStatus(ctx, ws, model.StatusActive); err != nil {
		return nil, err
	}
	logging.Infof("workspace %s provisioned (database %s)", ws, desc.Database)
	return ws, nil
}

// Destroy tears a workspace down: mark destroying (committed), drop the
// tenant database outside any transaction, purge the storage namespace,
// then mark destroyed. Any failure leaves the row in destroying; the
// operation is re-entrant so a later retry can finish the remaining steps.
func (m *WorkspaceManager) Destroy(ctx context.Context, id string) error {
	if !m.locks.TryAcquire(id) {
		return fmt.Errorf("workspace %s: %w", id, ErrConcurrencyConflict)
	}
	defer m.locks.Release(id)

	ws, err := m.registry.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if ws.Status == model.StatusDestroyed {
		return fmt.Errorf("workspace %s is already destroyed: %w", id, db.ErrNotFound)
	}

	retrying := ws.Status == model.StatusDestroying
	if !retrying {
		if !ws.Status.CanTransition(model.StatusDestroying) {
			return &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot destroy workspace in state %s", ws.Status)}
		}
		if err := m.setStatus(ctx, ws, model.StatusDestroying); err != nil {
			return err
		}
	}

	desc := m.prov.DescriptorFor(ws)
	if err := m.prov.DropDatabase(ctx, desc); err != nil {
		// On a retry the database may already be gone from the previous
		// attempt; anything else keeps the workspace in destroying.
		if !(retrying && errors.Is(err, provision.ErrNotFound)) {
			return &TeardownError{WorkspaceID: id, Step: "drop database", Err: err}
		}
	}

	if err := m.store.PurgeNamespace(ctx, id); err != nil {
		return &TeardownError{WorkspaceID: id, Step: "purge storage", Err: err}
	}

	if err := m.setStatus(ctx, ws, model.StatusDestroyed); err != nil {
		return err
	}
	logging.Infof("workspace %s destroyed", ws)
	return nil
}

// Archive moves an active workspace to archived. Registry-only; the tenant
// database stays untouched.
func (m *WorkspaceManager) Archive(ctx context.Context, id string) error {
	return m.transition(ctx, id, model.StatusArchived)
}

// Unarchive moves an archived workspace back to active.
func (m *WorkspaceManager) Unarchive(ctx context.Context, id string) error {
	return m.transition(ctx, id, model.StatusActive)
}

// Get returns the workspace by id.
func (m *WorkspaceManager) Get(ctx context.Context, id string) (*model.Workspace, error) {
	return m.registry.GetWorkspace(ctx, id)
}

// GetByName returns the workspace by name.
func (m *WorkspaceManager) GetByName(ctx context.Context, name string) (*model.Workspace, error) {
	return m.registry.GetWorkspaceByName(ctx, name)
}

// List returns all workspaces.
func (m *WorkspaceManager) List(ctx context.Context) ([]model.Workspace, error) {
	return m.registry.ListWorkspaces(ctx)
}

func (m *WorkspaceManager) transition(ctx context.Context, id string, to model.WorkspaceStatus) error {
	if !m.locks.TryAcquire(id) {
		return fmt.Errorf("workspace %s: %w", id, ErrConcurrencyConflict)
	}
	defer m.locks.Release(id)

	ws, err := m.registry.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if !ws.Status.CanTransition(to) {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move workspace from %s to %s", ws.Status, to)}
	}
	return m.setStatus(ctx, ws, to)
}

func (m *WorkspaceManager) setStatus(ctx context.Context, ws *model.Workspace, status model.WorkspaceStatus) error {
	if err := m.registry.UpdateWorkspaceStatus(ctx, ws.ID, status); err != nil {
		return err
	}
	ws.Status = status
	ws.UpdatedAt = m.now().UTC()
	return nil
}

func (m *WorkspaceManager) failProvisioning(ctx context.Context, ws *model.Workspace) {
	if err := m.setStatus(ctx, ws, model.StatusFailedProvisioning); err != nil {
		logging.Errorf("could not mark workspace %s as failed_provisioning: %v", ws.ID, err)
	}
}
