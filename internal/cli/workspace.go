// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/toeirei/tenantd/internal/lifecycle"
	"github.com/toeirei/tenantd/internal/model"
)

// newWorkspaceCmd groups the workspace lifecycle commands.
func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces and their tenant databases",
	}
	cmd.AddCommand(
		newWorkspaceCreateCmd(),
		newWorkspaceListCmd(),
		newWorkspaceShowCmd(),
		newWorkspaceArchiveCmd(),
		newWorkspaceUnarchiveCmd(),
		newWorkspaceDestroyCmd(),
		newWorkspacePurgeCmd(),
	)
	return cmd
}

// resolveWorkspace accepts a workspace id or name.
func resolveWorkspace(cmd *cobra.Command, ref string) (*model.Workspace, error) {
	ws, err := app.workspaces.Get(cmd.Context(), ref)
	if err == nil {
		return ws, nil
	}
	return app.workspaces.GetByName(cmd.Context(), ref)
}

func newWorkspaceCreateCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a workspace and provision its tenant database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.workspaces.Create(cmd.Context(), owner, lifecycle.CreateAttrs{Name: args[0]})
			if err != nil {
				return err
			}
			fmt.Printf("Workspace %s created (database %s)\n", ws, ws.DatabaseName)
			return nil
		},
	}
	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owning user id (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newWorkspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaces, err := app.workspaces.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tOWNER\tDATABASE")
			for _, ws := range workspaces {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ws.ID, ws.Name, ws.Status, ws.OwnerID, ws.DatabaseName)
			}
			return w.Flush()
		},
	}
}

func newWorkspaceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one workspace and its installed modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ID:       %s\n", ws.ID)
			fmt.Printf("Name:     %s\n", ws.Name)
			fmt.Printf("Status:   %s\n", ws.Status)
			fmt.Printf("Owner:    %s\n", ws.OwnerID)
			fmt.Printf("Database: %s\n", ws.DatabaseName)
			fmt.Printf("Created:  %s\n", ws.CreatedAt.Format("2006-01-02 15:04:05"))

			installed, err := app.modules.Installed(cmd.Context(), ws.ID)
			if err != nil {
				return err
			}
			if len(installed) == 0 {
				fmt.Println("Modules:  (none)")
				return nil
			}
			fmt.Println("Modules:")
			for _, inst := range installed {
				fmt.Printf("  %s (installed %s)\n", inst.ModuleKey, inst.InstalledAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newWorkspaceArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id|name>",
		Short: "Archive an active workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			if err := app.workspaces.Archive(cmd.Context(), ws.ID); err != nil {
				return err
			}
			fmt.Printf("Workspace %s archived\n", ws)
			return nil
		},
	}
}

func newWorkspaceUnarchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <id|name>",
		Short: "Return an archived workspace to active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			if err := app.workspaces.Unarchive(cmd.Context(), ws.ID); err != nil {
				return err
			}
			fmt.Printf("Workspace %s active\n", ws)
			return nil
		},
	}
}

func newWorkspaceDestroyCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "destroy <id|name>",
		Short: "Destroy a workspace, its tenant database and its stored files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := resolveWorkspace(cmd, args[0])
			if err != nil {
				return err
			}
			if !force {
				return fmt.Errorf("destroying %s drops its database permanently; re-run with --force", ws)
			}
			if err := app.workspaces.Destroy(cmd.Context(), ws.ID); err != nil {
				return err
			}
			fmt.Printf("Workspace %s destroyed\n", ws)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Confirm the irreversible destruction")
	return cmd
}

func newWorkspacePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-destroyed",
		Short: "Remove destroyed workspace rows from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := app.registry.PurgeDestroyed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d destroyed workspace(s)\n", n)
			return nil
		},
	}
}
