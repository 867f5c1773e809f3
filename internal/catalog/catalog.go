// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package catalog holds the process-wide registry of installable feature
// modules. Registration happens once at startup; the catalog is read-only
// afterwards and injected into the lifecycle managers so tests can swap in a
// fake.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/toeirei/tenantd/internal/migrate"
	"github.com/toeirei/tenantd/internal/model"
)

// ErrModuleNotFound is returned when looking up a module key that was never
// registered.
var ErrModuleNotFound = errors.New("module not found")

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Entry pairs a module definition with its resolved migration script set.
// The pairing is validated once at registration time; nothing is resolved by
// naming convention at call time.
type Entry struct {
	Definition model.ModuleDefinition
	Scripts    *migrate.ScriptSet
}

// Catalog is the read-only lookup interface handed to the lifecycle managers.
type Catalog interface {
	Lookup(key string) (*Entry, error)
	Keys() []string
}

// Registry is the default Catalog implementation. Register all modules at
// process start, then treat it as immutable.
type Registry struct {
	entries map[string]*Entry
}

// NewRegistry returns an empty module registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register validates and adds a module definition with its script set.
// Role templates may only reference the module's own declared permissions.
func (r *Registry) Register(def model.ModuleDefinition, scripts *migrate.ScriptSet) error {
	if !keyPattern.MatchString(def.Key) {
		return fmt.Errorf("invalid module key %q", def.Key)
	}
	if _, dup := r.entries[def.Key]; dup {
		return fmt.Errorf("module %q already registered", def.Key)
	}
	if scripts == nil || len(scripts.Keys()) == 0 {
		return fmt.Errorf("module %q has no migration scripts", def.Key)
	}
	if def.ScriptSet == "" {
		def.ScriptSet = scripts.Name()
	}
	if def.ScriptSet != scripts.Name() {
		return fmt.Errorf("module %q declares script set %q but was given %q", def.Key, def.ScriptSet, scripts.Name())
	}

	declared := make(map[string]struct{}, len(def.Permissions))
	for _, p := range def.Permissions {
		if p == "" {
			return fmt.Errorf("module %q declares an empty permission", def.Key)
		}
		if _, dup := declared[p]; dup {
			return fmt.Errorf("module %q declares permission %q twice", def.Key, p)
		}
		declared[p] = struct{}{}
	}
	for _, role := range def.Roles {
		if role.Name == "" {
			return fmt.Errorf("module %q declares a role without a name", def.Key)
		}
		for _, p := range role.Permissions {
			if _, ok := declared[p]; !ok {
				return fmt.Errorf("module %q: role %q references undeclared permission %q", def.Key, role.Name, p)
			}
		}
	}

	r.entries[def.Key] = &Entry{Definition: def, Scripts: scripts}
	return nil
}

// Lookup returns the entry for key, or ErrModuleNotFound.
func (r *Registry) Lookup(key string) (*Entry, error) {
	entry, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("module %q: %w", key, ErrModuleNotFound)
	}
	return entry, nil
}

// Keys returns all registered module keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
