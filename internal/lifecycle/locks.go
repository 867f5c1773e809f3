// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package lifecycle

import "sync"

// LockTable serializes lifecycle operations per workspace id. Operations
// are multi-step and partially irreversible, so a second operation on the
// same workspace must fail fast instead of queueing behind the first.
// The table is process-local; clustered deployments need an external
// advisory lock in front of it.
type LockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockTable returns an empty lock table. One table is shared by all
// managers operating on the same registry.
func NewLockTable() *LockTable {
	return &LockTable{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for id, reporting false when it is already held.
func (l *LockTable) TryAcquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[id]; busy {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

// Release frees the lock for id.
func (l *LockTable) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}
