package storage

import (
	"context"
	"testing"

	"github.com/spf13/afero"
)

func TestNamespaceLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := NewFSPurger(fs, "/srv/tenantd")
	ctx := context.Background()

	if err := p.EnsureNamespace(ctx, "ws-1"); err != nil {
		t.Fatalf("EnsureNamespace failed: %v", err)
	}
	if err := afero.WriteFile(fs, "/srv/tenantd/ws-1/upload.bin", []byte("data"), 0o640); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := p.PurgeNamespace(ctx, "ws-1"); err != nil {
		t.Fatalf("PurgeNamespace failed: %v", err)
	}
	exists, err := afero.DirExists(fs, "/srv/tenantd/ws-1")
	if err != nil {
		t.Fatalf("DirExists failed: %v", err)
	}
	if exists {
		t.Fatal("expected namespace to be gone")
	}
}

func TestPurgeMissingNamespace(t *testing.T) {
	p := NewFSPurger(afero.NewMemMapFs(), "/srv/tenantd")
	if err := p.PurgeNamespace(context.Background(), "never-created"); err != nil {
		t.Fatalf("expected purge of missing namespace to succeed, got %v", err)
	}
}
