// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package catalog

import (
	"fmt"
	"io/fs"

	"github.com/goccy/go-yaml"

	"github.com/toeirei/tenantd/internal/migrate"
	"github.com/toeirei/tenantd/internal/model"
)

// manifest is the on-disk module description (module.yaml).
type manifest struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
	Roles       []struct {
		Name        string   `yaml:"name"`
		Permissions []string `yaml:"permissions"`
	} `yaml:"roles"`
}

// LoadDir registers every module found in fsys. Each immediate subdirectory
// must contain a module.yaml manifest plus the module's .up.sql/.down.sql
// script pairs, mirroring the registry's embedded migrations layout.
func (r *Registry) LoadDir(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read module dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := r.loadModule(fsys, e.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) loadModule(fsys fs.FS, dir string) error {
	data, err := fs.ReadFile(fsys, dir+"/module.yaml")
	if err != nil {
		return fmt.Errorf("module dir %s: %w", dir, err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to parse %s/module.yaml: %w", dir, err)
	}
	if m.Key == "" {
		m.Key = dir
	}

	scripts, err := migrate.LoadSQLScripts(fsys, dir, m.Key)
	if err != nil {
		return fmt.Errorf("module %s: %w", m.Key, err)
	}

	def := model.ModuleDefinition{
		Key:         m.Key,
		Name:        m.Name,
		ScriptSet:   m.Key,
		Permissions: m.Permissions,
	}
	for _, role := range m.Roles {
		def.Roles = append(def.Roles, model.RoleTemplate{
			Name:        role.Name,
			Permissions: role.Permissions,
		})
	}
	return r.Register(def, scripts)
}
