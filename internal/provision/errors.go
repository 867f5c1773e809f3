// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned when creating a tenant database that is
// already physically present.
var ErrAlreadyExists = errors.New("tenant database already exists")

// ErrNotFound is returned when dropping a tenant database that does not exist.
var ErrNotFound = errors.New("tenant database not found")

// ErrDescriptorInUse is returned when a connection descriptor for the same
// tenant database is already registered by another in-flight operation.
var ErrDescriptorInUse = errors.New("connection descriptor already in use")

// TeardownError reports a failed database drop, carrying the underlying
// driver error. No forced-disconnect retry is attempted; that has to be an
// explicit operator step.
type TeardownError struct {
	Database string
	Err      error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("failed to drop tenant database %s: %v", e.Database, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
