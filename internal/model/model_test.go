// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to WorkspaceStatus }{
		{StatusPending, StatusProvisioning},
		{StatusProvisioning, StatusActive},
		{StatusProvisioning, StatusFailedProvisioning},
		{StatusActive, StatusArchived},
		{StatusArchived, StatusActive},
		{StatusActive, StatusDestroying},
		{StatusArchived, StatusDestroying},
		{StatusDestroying, StatusDestroyed},
	}
	for _, tc := range allowed {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to WorkspaceStatus }{
		{StatusDestroyed, StatusActive},
		{StatusFailedProvisioning, StatusActive},
		{StatusArchived, StatusProvisioning},
		{StatusDestroying, StatusActive},
		{StatusActive, StatusDestroyed},
	}
	for _, tc := range denied {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	if !StatusDestroyed.Terminal() {
		t.Error("destroyed should be terminal")
	}
	if !StatusFailedProvisioning.Terminal() {
		t.Error("failed_provisioning should be terminal")
	}
	if StatusActive.Terminal() {
		t.Error("active should not be terminal")
	}
}

func TestTenantDatabaseName(t *testing.T) {
	got := TenantDatabaseName("3f2c9a1e-0b4d-4c1a-9e8f-123456789abc")
	want := "tenant_3f2c9a1e0b4d4c1a9e8f123456789abc"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestConnectionDescriptorStringWithholdsDSN(t *testing.T) {
	d := ConnectionDescriptor{Engine: "postgres", DSN: "postgres://user:secret@db/x", Database: "tenant_x"}
	if s := d.String(); s != "postgres:tenant_x" {
		t.Fatalf("unexpected descriptor string: %s", s)
	}
}
