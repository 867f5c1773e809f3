// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package migrate applies and rolls back ordered migration scripts against a
// tenant database, keeping a per-tenant ledger of what has been applied. The
// ledger is written in the same transaction as each script, so it never runs
// ahead of or behind the physical schema.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/uptrace/bun"
)

// ErrIrreversible is returned by Down for scripts that declare no inverse.
var ErrIrreversible = errors.New("migration script has no inverse")

// Script is one opaque migration unit with a forward and an optional inverse
// operation. Keys carry a numeric, timestamp-like prefix followed by an
// underscore and a name, e.g. "000003_create_roles".
type Script interface {
	Key() string
	Up(ctx context.Context, db bun.IDB) error
	Down(ctx context.Context, db bun.IDB) error
}

// SQLScript is a Script backed by raw SQL text, typically loaded from
// embedded .up.sql/.down.sql file pairs.
type SQLScript struct {
	key  string
	up   string
	down string
}

// NewSQLScript builds a script from SQL text. An empty down marks the script
// irreversible.
func NewSQLScript(key, up, down string) *SQLScript {
	return &SQLScript{key: key, up: up, down: down}
}

// Key returns the stable sortable key.
func (s *SQLScript) Key() string { return s.key }

// Up executes the forward SQL.
func (s *SQLScript) Up(ctx context.Context, db bun.IDB) error {
	_, err := db.ExecContext(ctx, s.up)
	return err
}

// Down executes the inverse SQL, or reports ErrIrreversible when none exists.
func (s *SQLScript) Down(ctx context.Context, db bun.IDB) error {
	if strings.TrimSpace(s.down) == "" {
		return ErrIrreversible
	}
	_, err := db.ExecContext(ctx, s.down)
	return err
}

// ScriptSet is a named, ordered collection of scripts with unique keys.
type ScriptSet struct {
	name    string
	scripts []Script
}

// NewScriptSet validates and sorts the given scripts. Keys must be unique
// within the set and non-empty.
func NewScriptSet(name string, scripts ...Script) (*ScriptSet, error) {
	seen := make(map[string]struct{}, len(scripts))
	for _, sc := range scripts {
		key := sc.Key()
		if key == "" {
			return nil, fmt.Errorf("script set %s: empty script key", name)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("script set %s: duplicate script key %q", name, key)
		}
		seen[key] = struct{}{}
	}
	sorted := make([]Script, len(scripts))
	copy(sorted, scripts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessKey(sorted[i].Key(), sorted[j].Key())
	})
	return &ScriptSet{name: name, scripts: sorted}, nil
}

// Name returns the set identifier.
func (s *ScriptSet) Name() string { return s.name }

// Scripts returns the scripts in execution order.
func (s *ScriptSet) Scripts() []Script {
	out := make([]Script, len(s.scripts))
	copy(out, s.scripts)
	return out
}

// Keys returns the script keys in execution order.
func (s *ScriptSet) Keys() []string {
	keys := make([]string, len(s.scripts))
	for i, sc := range s.scripts {
		keys[i] = sc.Key()
	}
	return keys
}

// lessKey orders by the numeric prefix when both keys carry one, falling back
// to plain lexical comparison for ties and unprefixed keys.
func lessKey(a, b string) bool {
	na, oka := keyPrefix(a)
	nb, okb := keyPrefix(b)
	if oka && okb && na != nb {
		return na < nb
	}
	return a < b
}

func keyPrefix(key string) (int64, bool) {
	idx := strings.IndexByte(key, '_')
	if idx <= 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(key[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// LoadSQLScripts reads <key>.up.sql / <key>.down.sql pairs from dir inside
// fsys and returns them as a sorted ScriptSet named name. A missing .down.sql
// marks that script irreversible; a .down.sql without a matching .up.sql is
// an error.
func LoadSQLScripts(fsys fs.FS, dir, name string) (*ScriptSet, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read script dir %s: %w", dir, err)
	}
	ups := make(map[string]string)
	downs := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fname := e.Name()
		var key string
		var target map[string]string
		switch {
		case strings.HasSuffix(fname, ".up.sql"):
			key = strings.TrimSuffix(fname, ".up.sql")
			target = ups
		case strings.HasSuffix(fname, ".down.sql"):
			key = strings.TrimSuffix(fname, ".down.sql")
			target = downs
		default:
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+fname)
		if err != nil {
			return nil, fmt.Errorf("failed to read script %s: %w", fname, err)
		}
		target[key] = string(data)
	}
	var scripts []Script
	for key, up := range ups {
		scripts = append(scripts, NewSQLScript(key, up, downs[key]))
		delete(downs, key)
	}
	for key := range downs {
		return nil, fmt.Errorf("script %s has a down file but no up file", key)
	}
	return NewScriptSet(name, scripts...)
}
