// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package lifecycle

import (
	"errors"
	"fmt"
)

// ErrAlreadyInstalled is returned when installing a module that is already
// installed in the workspace. The guard fires before any side effects.
var ErrAlreadyInstalled = errors.New("module already installed")

// ErrNotInstalled is returned when uninstalling a module that has no
// installation record for the workspace.
var ErrNotInstalled = errors.New("module not installed")

// ErrConcurrencyConflict is returned when another lifecycle operation is
// already in flight for the same workspace.
var ErrConcurrencyConflict = errors.New("another lifecycle operation is in flight for this workspace")

// ValidationError rejects input before any side effect has happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProvisioningError reports a failed workspace creation. The workspace row
// remains in the failed_provisioning state for operator attention.
type ProvisioningError struct {
	WorkspaceID string
	Step        string
	Err         error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning workspace %s failed at %s: %v", e.WorkspaceID, e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// TeardownError reports a failed workspace destruction. The workspace row
// remains in the destroying state; it is never advanced to destroyed after
// a failure.
type TeardownError struct {
	WorkspaceID string
	Step        string
	Err         error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("destroying workspace %s failed at %s: %v", e.WorkspaceID, e.Step, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
