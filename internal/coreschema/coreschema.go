// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package coreschema embeds the canonical core script set: the baseline
// schema every tenant database receives at workspace creation. Feature
// modules layer their own script sets on top of it.
package coreschema

import (
	"embed"

	"github.com/toeirei/tenantd/internal/migrate"
)

//go:embed scripts
var scripts embed.FS

// SetName identifies the core script set in ledger reports and errors.
const SetName = "core"

// Set loads the embedded core scripts as a sorted ScriptSet.
func Set() (*migrate.ScriptSet, error) {
	return migrate.LoadSQLScripts(scripts, "scripts", SetName)
}
