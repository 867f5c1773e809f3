// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for Tenantd using the Cobra
// library. It defines the root command, the workspace and module command
// groups, and wires the lifecycle managers from configuration.

package cli

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/toeirei/tenantd/internal/acl"
	"github.com/toeirei/tenantd/internal/catalog"
	"github.com/toeirei/tenantd/internal/config"
	"github.com/toeirei/tenantd/internal/coreschema"
	"github.com/toeirei/tenantd/internal/db"
	"github.com/toeirei/tenantd/internal/lifecycle"
	"github.com/toeirei/tenantd/internal/logging"
	"github.com/toeirei/tenantd/internal/migrate"
	"github.com/toeirei/tenantd/internal/provision"
	"github.com/toeirei/tenantd/internal/storage"
)

var version = "dev"   // set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

var cfgFile string
var verbose bool

var appConfig config.Config

// services holds the wired managers for the duration of one command.
type services struct {
	registry   db.RegistryStore
	catalog    *catalog.Registry
	workspaces *lifecycle.WorkspaceManager
	modules    *lifecycle.ModuleManager
}

var app *services

// setupDefaultServices loads the configuration and wires the registry,
// provisioner and lifecycle managers. Commands that need none of that
// (version, init-config) skip it via their own annotations.
func setupDefaultServices(cmd *cobra.Command, args []string) error {
	configPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if verbose || appConfig.Debug {
		logging.SetDebug(true)
		db.SetDebug(true)
	}

	var regOpts []db.Option
	if !appConfig.Registry.ShortTransactions {
		regOpts = append(regOpts, db.WithoutShortTransactions())
	}
	registry, err := db.NewRegistry(appConfig.Registry.Type, appConfig.Registry.DSN, regOpts...)
	if err != nil {
		return fmt.Errorf("error opening registry: %w", err)
	}

	prov, err := provision.New(provision.Options{
		Engine:      appConfig.Tenants.Type,
		DataDir:     appConfig.Tenants.DataDir,
		AdminDSN:    appConfig.Tenants.AdminDSN,
		DSNTemplate: appConfig.Tenants.DSNTemplate,
	})
	if err != nil {
		return fmt.Errorf("error configuring tenant provisioner: %w", err)
	}

	cat := catalog.NewRegistry()
	if appConfig.Modules.Dir != "" {
		if err := cat.LoadDir(os.DirFS(appConfig.Modules.Dir)); err != nil {
			return fmt.Errorf("error loading module catalog from %s: %w", appConfig.Modules.Dir, err)
		}
	}

	core, err := coreschema.Set()
	if err != nil {
		return fmt.Errorf("error loading core schema: %w", err)
	}

	runner := migrate.NewRunner(logging.Debugf)
	locks := lifecycle.NewLockTable()
	purger := storage.NewFSPurger(afero.NewOsFs(), appConfig.Storage.Root)

	app = &services{
		registry:   registry,
		catalog:    cat,
		workspaces: lifecycle.NewWorkspaceManager(registry, prov, runner, core, purger, locks),
		modules:    lifecycle.NewModuleManager(registry, prov, runner, cat, acl.NewStore(), locks),
	}
	return nil
}

// Execute runs the CLI entrypoint. The main package should call this
// function and handle process exit.
func Execute() error {
	rootCmd := NewRootCmd()

	defer func() {
		if app != nil {
			if err := app.registry.Close(); err != nil {
				log.Errorf("Error closing registry: %v", err)
			}
		}
	}()

	return rootCmd.Execute()
}

// noSetup marks commands that run without configuration or a registry.
const noSetup = "tenantd.noSetup"

// NewRootCmd creates and configures a new root cobra command. Tests use
// this to get fresh instances with isolated flag state.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenantd",
		Short: "Tenantd provisions and manages per-tenant databases.",
		Long: `Tenantd is the control plane for a database-per-tenant SaaS layout.
Each workspace owns one isolated physical database; tenantd creates it,
applies the core schema, layers feature modules on top and tears it all
down again. A registry database is the source of truth.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[noSetup] == "true" {
				return nil
			}
			return setupDefaultServices(cmd, args)
		},
	}

	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("registry.type", "sqlite", "Registry database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("registry.dsn", "tenantd.db", "Registry database connection string (DSN)")
	cmd.PersistentFlags().String("tenants.type", "sqlite", "Tenant database engine (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("tenants.data_dir", "tenants", "Directory for sqlite tenant database files")
	cmd.PersistentFlags().String("storage.root", "workspace-data", "Root directory for per-workspace file storage")
	cmd.PersistentFlags().String("modules.dir", "", "Directory of feature module bundles to load")

	cmd.AddCommand(
		newWorkspaceCmd(),
		newModuleCmd(),
		newInitConfigCmd(),
		newVersionCmd(),
	)

	return cmd
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

func newInitConfigCmd() *cobra.Command {
	var system bool
	cmd := &cobra.Command{
		Use:         "init-config",
		Short:       "Write a default configuration file",
		Annotations: map[string]string{noSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadConfig[config.Config](cmd, config.Defaults(), nil)
			if err != nil {
				return err
			}
			if err := config.WriteConfigFile(&c, system); err != nil {
				return err
			}
			path, err := config.GetConfigPath(system)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&system, "system", false, "Write to the system-wide config location")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: map[string]string{noSetup: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			fmt.Printf("version: %s\n", v)
			fmt.Printf("commit: %s\n", c)
			if d != "" {
				fmt.Printf("built: %s\n", d)
			}
		},
	}
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out = out + " (" + c + ")"
	}
	if d != "" {
		out = out + " built: " + d
	}
	return out
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If info is nil, it reads build info from the
// runtime. Separated out to make unit testing straightforward.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := version
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if infoLocal, found := debug.ReadBuildInfo(); found {
			info = infoLocal
		}
	}
	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}
