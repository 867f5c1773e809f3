// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package storage is the file-storage collaborator: each workspace owns a
// namespace under a common root, and destruction purges it. Built on afero
// so tests can run against an in-memory filesystem.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Purger is the collaborator interface consumed by the workspace lifecycle
// manager during destruction.
type Purger interface {
	EnsureNamespace(ctx context.Context, workspaceID string) error
	PurgeNamespace(ctx context.Context, workspaceID string) error
}

// FSPurger manages per-workspace namespaces on an afero filesystem.
type FSPurger struct {
	fs   afero.Fs
	root string
}

// NewFSPurger returns a Purger rooted at root. Pass afero.NewOsFs() for real
// storage or afero.NewMemMapFs() in tests.
func NewFSPurger(fs afero.Fs, root string) *FSPurger {
	return &FSPurger{fs: fs, root: root}
}

func (p *FSPurger) namespace(workspaceID string) string {
	return filepath.Join(p.root, workspaceID)
}

// EnsureNamespace creates the workspace's storage namespace if missing.
func (p *FSPurger) EnsureNamespace(_ context.Context, workspaceID string) error {
	if err := p.fs.MkdirAll(p.namespace(workspaceID), 0o750); err != nil {
		return fmt.Errorf("failed to create storage namespace for %s: %w", workspaceID, err)
	}
	return nil
}

// PurgeNamespace removes the workspace's namespace and everything in it.
// Purging a namespace that never existed is not an error; destruction must
// be repeatable after a partial failure.
func (p *FSPurger) PurgeNamespace(_ context.Context, workspaceID string) error {
	if err := p.fs.RemoveAll(p.namespace(workspaceID)); err != nil {
		return fmt.Errorf("failed to purge storage namespace for %s: %w", workspaceID, err)
	}
	return nil
}
