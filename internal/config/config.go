// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads the tenantd configuration from YAML files,
// environment variables and command-line flags, in that order of
// precedence (lowest to highest).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the full tenantd configuration tree.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
	Tenants  TenantsConfig  `mapstructure:"tenants" yaml:"tenants"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Modules  ModulesConfig  `mapstructure:"modules" yaml:"modules"`
	Debug    bool           `mapstructure:"debug" yaml:"debug"`
}

// RegistryConfig configures the control-plane registry database.
type RegistryConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
	// ShortTransactions wraps registry mutations in their own short
	// transactions. Disable only for engines where that is redundant.
	ShortTransactions bool `mapstructure:"short_transactions" yaml:"short_transactions"`
}

// TenantsConfig configures where and how tenant databases are provisioned.
type TenantsConfig struct {
	Type        string `mapstructure:"type" yaml:"type"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	AdminDSN    string `mapstructure:"admin_dsn" yaml:"admin_dsn"`
	DSNTemplate string `mapstructure:"dsn_template" yaml:"dsn_template"`
}

// StorageConfig configures the per-workspace file storage root.
type StorageConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// ModulesConfig configures the feature module catalog.
type ModulesConfig struct {
	// Dir points at a directory of module bundles (module.yaml plus SQL
	// scripts) loaded at startup in addition to the built-in catalog.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Defaults returns the default configuration values keyed by viper path.
func Defaults() map[string]any {
	return map[string]any{
		"registry.type":               "sqlite",
		"registry.dsn":                "tenantd.db",
		"registry.short_transactions": true,
		"tenants.type":                "sqlite",
		"tenants.data_dir":            "tenants",
		"storage.root":                "workspace-data",
		"debug":                       false,
	}
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Tenantd")
		default: // Linux, macOS, etc.
			configDir = "/etc/tenantd"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "tenantd")
	}

	return filepath.Join(configDir, "tenantd.yaml"), nil
}

// LoadConfig resolves the configuration for cmd: defaults, then the first
// tenantd.yaml found in the search path (or the explicit --config file),
// then TENANTD_* environment variables, then flags bound on cmd.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("tenantd")
	v.SetConfigType("yaml")

	// An explicit config file has the highest file precedence.
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}

	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("tenantd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// WriteConfigFile writes c as YAML to the user or system config location.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := GetConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600 since the DSNs may carry credentials.
	return os.WriteFile(path, data, 0600)
}
