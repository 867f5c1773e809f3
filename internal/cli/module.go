// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newModuleCmd groups the feature module commands.
func newModuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Install and remove feature modules in a workspace",
	}
	cmd.AddCommand(
		newModuleInstallCmd(),
		newModuleUninstallCmd(),
		newModuleListCmd(),
		newModuleCatalogCmd(),
	)
	return cmd
}

func newModuleInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <workspace> <module>",
		Short: "Install a module into a workspace's tenant database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			if err := app.modules.Install(cmd.Context(), ws.ID, args[1]); err != nil {
				return err
			}
			fmt.Printf("Module %s installed in workspace %s\n", args[1], ws)
			return nil
		},
	}
}

func newModuleUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <workspace> <module>",
		Short: "Remove a module from a workspace's tenant database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			if err := app.modules.Uninstall(cmd.Context(), ws.ID, args[1]); err != nil {
				return err
			}
			fmt.Printf("Module %s uninstalled from workspace %s\n", args[1], ws)
			return nil
		},
	}
}

func newModuleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workspace>",
		Short: "List the modules installed in a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			installed, err := app.modules.Installed(cmd.Context(), ws.ID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "MODULE\tINSTALLED")
			for _, inst := range installed {
				fmt.Fprintf(w, "%s\t%s\n", inst.ModuleKey, inst.InstalledAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newModuleCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the modules available for installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tSCRIPTS\tPERMISSIONS")
			for _, key := range app.catalog.Keys() {
				entry, err := app.catalog.Lookup(key)
				if err != nil {
					return err
				}
				def := entry.Definition
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", def.Key, def.Name, len(entry.Scripts.Keys()), len(def.Permissions))
			}
			return w.Flush()
		},
	}
}
