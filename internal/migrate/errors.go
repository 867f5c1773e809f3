// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package migrate

import "fmt"

// MigrationError reports a forward migration that failed. Script names the
// specific failing script; scripts after it in the set were not attempted.
type MigrationError struct {
	Set    string
	Script string
	Err    error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s failed (set %s): %v", e.Script, e.Set, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// RollbackError reports a rollback that failed partway. Reverted lists the
// scripts whose inverses completed (and were removed from the ledger);
// Remaining lists the scripts still applied, starting with the one that
// failed. Destructive DDL is not assumed to be automatically recoverable, so
// the caller decides what happens next.
type RollbackError struct {
	Set       string
	Script    string
	Reverted  []string
	Remaining []string
	Err       error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback of %s failed at %s: %v (reverted %d, remaining %d)",
		e.Set, e.Script, e.Err, len(e.Reverted), len(e.Remaining))
}

func (e *RollbackError) Unwrap() error { return e.Err }
