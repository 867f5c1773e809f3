// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/tenantd/internal/model"
)

// WorkspaceModel maps the workspaces table for bun queries.
type WorkspaceModel struct {
	bun.BaseModel `bun:"table:workspaces"`
	ID            string    `bun:"id,pk"`
	Name          string    `bun:"name"`
	DatabaseName  string    `bun:"database_name"`
	Status        string    `bun:"status"`
	OwnerID       string    `bun:"owner_id"`
	CreatedAt     time.Time `bun:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at"`
}

// InstallationModel maps the workspace_modules table.
type InstallationModel struct {
	bun.BaseModel `bun:"table:workspace_modules"`
	WorkspaceID   string    `bun:"workspace_id,pk"`
	ModuleKey     string    `bun:"module_key,pk"`
	InstalledAt   time.Time `bun:"installed_at"`
}

// bunRegistry is the bun-backed RegistryStore implementation.
type bunRegistry struct {
	db        *bun.DB
	noShortTx bool
}

// inTx runs fn inside its own short transaction, or directly on the DB when
// short transactions are disabled (caller holds an outer scope).
func (r *bunRegistry) inTx(ctx context.Context, fn func(ctx context.Context, idb bun.IDB) error) error {
	if r.noShortTx {
		return fn(ctx, r.db)
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
}

func (r *bunRegistry) CreateWorkspace(ctx context.Context, ws *model.Workspace) error {
	row := workspaceToRow(ws)
	err := r.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		_, err := idb.NewInsert().Model(&row).Exec(ctx)
		return err
	})
	return MapDBError(err)
}

func (r *bunRegistry) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	var row WorkspaceModel
	err := r.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	ws := rowToWorkspace(row)
	return &ws, nil
}

func (r *bunRegistry) GetWorkspaceByName(ctx context.Context, name string) (*model.Workspace, error) {
	var row WorkspaceModel
	err := r.db.NewSelect().Model(&row).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workspace %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	ws := rowToWorkspace(row)
	return &ws, nil
}

func (r *bunRegistry) ListWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	var rows []WorkspaceModel
	if err := r.db.NewSelect().Model(&rows).Order("name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Workspace, len(rows))
	for i, row := range rows {
		out[i] = rowToWorkspace(row)
	}
	return out, nil
}

func (r *bunRegistry) UpdateWorkspaceStatus(ctx context.Context, id string, status model.WorkspaceStatus) error {
	return r.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		res, err := idb.NewUpdate().
			Model((*WorkspaceModel)(nil)).
			Set("status = ?", string(status)).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (r *bunRegistry) DeleteWorkspace(ctx context.Context, id string) error {
	return r.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		res, err := idb.NewDelete().
			Model((*WorkspaceModel)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("workspace %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// PurgeDestroyed hard-deletes workspace rows in the destroyed state and
// returns how many were removed. Housekeeping only; never called by the
// lifecycle managers themselves.
func (r *bunRegistry) PurgeDestroyed(ctx context.Context) (int, error) {
	var n int64
	err := r.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		res, err := idb.NewDelete().
			Model((*WorkspaceModel)(nil)).
			Where("status = ?", string(model.StatusDestroyed)).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (r *bunRegistry) AddInstallation(ctx context.Context, inst *model.WorkspaceModuleInstallation) error {
	row := InstallationModel{
		WorkspaceID: inst.WorkspaceID,
		ModuleKey:   inst.ModuleKey,
		InstalledAt: inst.InstalledAt,
	}
	err := r.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		_, err := idb.NewInsert().Model(&row).Exec(ctx)
		return err
	})
	return MapDBError(err)
}

func (r *bunRegistry) GetInstallation(ctx context.Context, workspaceID, moduleKey string) (*model.WorkspaceModuleInstallation, error) {
	var row InstallationModel
	err := r.db.NewSelect().Model(&row).
		Where("workspace_id = ?", workspaceID).
		Where("module_key = ?", moduleKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("installation %s/%s: %w", workspaceID, moduleKey, ErrNotFound)
		}
		return nil, err
	}
	return &model.WorkspaceModuleInstallation{
		WorkspaceID: row.WorkspaceID,
		ModuleKey:   row.ModuleKey,
		InstalledAt: row.InstalledAt,
	}, nil
}

func (r *bunRegistry) ListInstallations(ctx context.Context, workspaceID string) ([]model.WorkspaceModuleInstallation, error) {
	var rows []InstallationModel
	err := r.db.NewSelect().Model(&rows).
		Where("workspace_id = ?", workspaceID).
		Order("module_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.WorkspaceModuleInstallation, len(rows))
	for i, row := range rows {
		out[i] = model.WorkspaceModuleInstallation{
			WorkspaceID: row.WorkspaceID,
			ModuleKey:   row.ModuleKey,
			InstalledAt: row.InstalledAt,
		}
	}
	return out, nil
}

func (r *bunRegistry) DeleteInstallation(ctx context.Context, workspaceID, moduleKey string) error {
	return r.inTx(ctx, func(ctx context.Context, idb bun.IDB) error {
		res, err := idb.NewDelete().
			Model((*InstallationModel)(nil)).
			Where("workspace_id = ?", workspaceID).
			Where("module_key = ?", moduleKey).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("installation %s/%s: %w", workspaceID, moduleKey, ErrNotFound)
		}
		return nil
	})
}

func (r *bunRegistry) Close() error {
	return r.db.Close()
}

// --- Mapping helpers (centralized conversions) ---

func workspaceToRow(ws *model.Workspace) WorkspaceModel {
	return WorkspaceModel{
		ID:           ws.ID,
		Name:         ws.Name,
		DatabaseName: ws.DatabaseName,
		Status:       string(ws.Status),
		OwnerID:      ws.OwnerID,
		CreatedAt:    ws.CreatedAt,
		UpdatedAt:    ws.UpdatedAt,
	}
}

func rowToWorkspace(row WorkspaceModel) model.Workspace {
	return model.Workspace{
		ID:           row.ID,
		Name:         row.Name,
		DatabaseName: row.DatabaseName,
		Status:       model.WorkspaceStatus(row.Status),
		OwnerID:      row.OwnerID,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
