package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/config"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/database"
	"github.com/wschoenell/chimera-manager/migrations"
)

// newRootCmd builds the command tree. Without a subcommand the supervisor
// is served.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chimera-supervisor",
		Short:         "Observatory safety supervisor",
		Long:          `Evaluates the observatory checklist and drives dome, telescope and operator responses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Configuration file (default $CHIMERA_CONFIG or "+defaultConfigPath+")")

	serve := newServeCmd()
	root.RunE = serve.RunE

	root.AddCommand(
		serve,
		newVersionCmd(),
		newMigrateCmd(),
		newProvisionCmd(),
		newFlagCmd(),
		newLockCmd(),
		newUnlockCmd(),
		newItemsCmd(),
		newTokenCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chimera-supervisor %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// configPath resolves --config, then CHIMERA_CONFIG, then the default.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	if p := os.Getenv("CHIMERA_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// openDatabase opens and migrates the configured database.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}
