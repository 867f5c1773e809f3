// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	cfg "github.com/toeirei/tenantd/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	tmp := t.TempDir()
	os.Setenv("XDG_CONFIG_HOME", tmp)
	defer os.Unsetenv("XDG_CONFIG_HOME")

	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got.Registry.Type != "sqlite" {
		t.Fatalf("expected sqlite registry default, got %q", got.Registry.Type)
	}
	if !got.Registry.ShortTransactions {
		t.Fatal("expected short transactions enabled by default")
	}
	if got.Tenants.Type != "sqlite" {
		t.Fatalf("expected sqlite tenants default, got %q", got.Tenants.Type)
	}
}

func TestLoadConfigReadsExplicitFile(t *testing.T) {
	tmp := t.TempDir()
	yaml := "registry:\n  type: postgres\n  dsn: postgresql://user@/tenantd\ntenants:\n  type: postgres\n  admin_dsn: postgresql://admin@/postgres\n  dsn_template: postgresql://app@/%s\ndebug: true\n"
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got.Registry.Type != "postgres" {
		t.Fatalf("expected postgres, got %q", got.Registry.Type)
	}
	if got.Tenants.DSNTemplate != "postgresql://app@/%s" {
		t.Fatalf("unexpected dsn template: %q", got.Tenants.DSNTemplate)
	}
	if !got.Debug {
		t.Fatal("expected debug enabled")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	tmp := t.TempDir()
	os.Setenv("XDG_CONFIG_HOME", tmp)
	os.Setenv("TENANTD_REGISTRY_DSN", "file:env.db")
	defer os.Unsetenv("XDG_CONFIG_HOME")
	defer os.Unsetenv("TENANTD_REGISTRY_DSN")

	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got.Registry.DSN != "file:env.db" {
		t.Fatalf("expected env override, got %q", got.Registry.DSN)
	}
}

func TestWriteConfigFileCreatesFile(t *testing.T) {
	tmp := t.TempDir()
	os.Setenv("XDG_CONFIG_HOME", tmp)
	defer os.Unsetenv("XDG_CONFIG_HOME")

	c := cfg.Config{}
	c.Registry.Type = "sqlite"
	c.Registry.DSN = "./tenantd.db"

	if err := cfg.WriteConfigFile(&c, false); err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}

	path, err := cfg.GetConfigPath(false)
	if err != nil {
		t.Fatalf("GetConfigPath failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file at %s, stat error: %v", path, err)
	}
}
