// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model contains the core domain types shared across Tenantd.
// These are plain values; persistence mapping lives in the db package.
package model

import (
	"fmt"
	"strings"
	"time"
)

// WorkspaceStatus is the lifecycle state of a workspace.
type WorkspaceStatus string

const (
	StatusPending            WorkspaceStatus = "pending"
	StatusProvisioning       WorkspaceStatus = "provisioning"
	StatusActive             WorkspaceStatus = "active"
	StatusArchived           WorkspaceStatus = "archived"
	StatusDestroying         WorkspaceStatus = "destroying"
	StatusDestroyed          WorkspaceStatus = "destroyed"
	StatusFailedProvisioning WorkspaceStatus = "failed_provisioning"
)

// transitions maps each status to the set of statuses it may advance to.
// FailedProvisioning and Destroyed are terminal; operator tooling may purge
// rows in those states but never re-animate them.
var transitions = map[WorkspaceStatus][]WorkspaceStatus{
	StatusPending:      {StatusProvisioning, StatusActive, StatusFailedProvisioning, StatusDestroying},
	StatusProvisioning: {StatusActive, StatusFailedProvisioning},
	StatusActive:       {StatusArchived, StatusDestroying},
	StatusArchived:     {StatusActive, StatusDestroying},
	StatusDestroying:   {StatusDestroyed},
}

// CanTransition reports whether the status may move to next.
func (s WorkspaceStatus) CanTransition(next WorkspaceStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s WorkspaceStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Workspace is one tenant in the control-plane registry. Each workspace owns
// exactly one physical tenant database, named deterministically from its id.
type Workspace struct {
	ID           string
	Name         string
	DatabaseName string
	Status       WorkspaceStatus
	OwnerID      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// String returns the name and id, for logs.
func (w Workspace) String() string {
	return fmt.Sprintf("%s (%s)", w.Name, w.ID)
}

// TenantDatabaseName derives the physical database name for a workspace id.
// The result is stable and valid as an identifier on SQLite, PostgreSQL and
// MySQL (letters, digits, underscore; starts with a letter).
func TenantDatabaseName(workspaceID string) string {
	return "tenant_" + strings.ReplaceAll(workspaceID, "-", "")
}

// RoleTemplate declares a role a module ships with, referencing a subset of
// the module's declared permissions.
type RoleTemplate struct {
	Name        string
	Permissions []string
}

// ModuleDefinition describes an installable feature module: its migration
// script set identifier plus the ACL data seeded on install. Definitions are
// immutable after catalog registration.
type ModuleDefinition struct {
	Key         string
	Name        string
	ScriptSet   string
	Permissions []string
	Roles       []RoleTemplate
}

// String returns the module key.
func (m ModuleDefinition) String() string { return m.Key }

// WorkspaceModuleInstallation records that a module is installed in a
// workspace. At most one record exists per (workspace, module) pair.
type WorkspaceModuleInstallation struct {
	WorkspaceID string
	ModuleKey   string
	InstalledAt time.Time
}

// MigrationRecord is one row of a tenant database's migration ledger. The
// ledger always reflects exactly the scripts physically applied to that
// database.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
	Batch     int
}

// ConnectionDescriptor describes how to reach one tenant database. It is
// process-local, owned by the single operation that requested it, and is
// never persisted.
type ConnectionDescriptor struct {
	Engine   string // sqlite, postgres or mysql
	DSN      string
	Database string
}

// String returns the engine and database name; the DSN is withheld because
// it can carry credentials.
func (d ConnectionDescriptor) String() string {
	return fmt.Sprintf("%s:%s", d.Engine, d.Database)
}
