package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wschoenell/chimera-manager/internal/api"
	"github.com/wschoenell/chimera-manager/internal/capability"
	"github.com/wschoenell/chimera-manager/internal/checklist"
	"github.com/wschoenell/chimera-manager/internal/infrastructure/database"
	"github.com/wschoenell/chimera-manager/internal/instrument"
	"github.com/wschoenell/chimera-manager/internal/supervisor"
	"github.com/wschoenell/chimera-manager/migrations"
)

// offline is a supervisor over the configured database without bridges,
// notifier or machine loop. Admin commands use it to share the lock rules
// and handler validation of the running service.
type offline struct {
	db    *database.DB
	sup   *supervisor.Supervisor
	items checklist.Repository
}

func openOffline(cmd *cobra.Command) (*offline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	items := checklist.NewSQLiteRepository(db.DB)
	sup := supervisor.New(supervisor.Config{
		Site:        cfg.Site.ID,
		Instruments: instrumentNames(cfg),
		MaxDataAge:  cfg.MaxDataAge(),
	}, supervisor.Deps{
		Store:  instrument.NewStore(instrument.NewSQLiteRepository(db.DB), nil),
		Items:  items,
		Lookup: capability.NewStatic(nil),
	})
	if err := sup.Init(cmd.Context()); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return &offline{db: db, sup: sup, items: items}, nil
}

func (o *offline) Close() error {
	return o.db.Close()
}

// withOffline runs fn against an offline supervisor and closes it afterwards.
func withOffline(fn func(cmd *cobra.Command, args []string, o *offline) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		o, err := openOffline(cmd)
		if err != nil {
			return err
		}
		defer o.Close() //nolint:errcheck // Read-mostly session
		return fn(cmd, args, o)
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Migrations already committed
			return printMigrations(cmd.Context(), cmd.OutOrStdout(), db)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := database.Open(database.Config{
				Path:        cfg.Database.Path,
				WALMode:     cfg.Database.WALMode,
				BusyTimeout: cfg.Database.BusyTimeout,
			})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close() //nolint:errcheck // Rollback already committed
			if err := db.MigrateDown(cmd.Context(), migrations.FS); err != nil {
				return err
			}
			return printMigrations(cmd.Context(), cmd.OutOrStdout(), db)
		},
	})
	return cmd
}

func printMigrations(ctx context.Context, out io.Writer, db *database.DB) error {
	applied, pending, err := db.GetMigrationStatus(ctx, migrations.FS)
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

func newProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <file>",
		Short: "Validate and store the checklist items of a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: withOffline(func(cmd *cobra.Command, args []string, o *offline) error {
			n, err := provision(cmd.Context(), o.items, o.sup.Registry(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provisioned %d items from %s\n", n, args[0])
			return nil
		}),
	}
}

func newFlagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flag",
		Short: "Read or write instrument flags",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every instrument with its flag and keys",
		RunE: withOffline(func(cmd *cobra.Command, _ []string, o *offline) error {
			all, err := o.sup.Instruments(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INSTRUMENT\tFLAG\tKEYS")
			for _, st := range all {
				fmt.Fprintf(w, "%s\t%s\t%v\n", st.Instrument, st.Flag, st.ActiveKeys())
			}
			return w.Flush()
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <instrument>",
		Short: "Print the flag of an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: withOffline(func(cmd *cobra.Command, args []string, o *offline) error {
			flag, err := o.sup.GetFlag(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), flag)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <instrument> <flag>",
		Short: "Write the flag of an instrument; locked instruments refuse",
		Args:  cobra.ExactArgs(2),
		RunE: withOffline(func(cmd *cobra.Command, args []string, o *offline) error {
			flag, err := instrument.ParseFlag(args[1])
			if err != nil {
				return err
			}
			if err := o.sup.SetFlag(cmd.Context(), args[0], flag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], flag)
			return nil
		}),
	})
	return cmd
}

func newLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock <instrument> <key>",
		Short: "Lock an instrument with a key",
		Args:  cobra.ExactArgs(2),
		RunE: withOffline(func(cmd *cobra.Command, args []string, o *offline) error {
			if err := o.sup.LockInstrument(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s locked with key %s\n", args[0], args[1])
			return nil
		}),
	}
}

func newUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <instrument> <key>",
		Short: "Release a lock key",
		Args:  cobra.ExactArgs(2),
		RunE: withOffline(func(cmd *cobra.Command, args []string, o *offline) error {
			ok, err := o.sup.UnlockInstrument(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s still locked\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unlocked\n", args[0])
			return nil
		}),
	}
}

func newItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and toggle checklist items",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every item with its status",
		RunE: withOffline(func(cmd *cobra.Command, _ []string, o *offline) error {
			items, err := o.sup.Items(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACTIVE\tSTATUS\tCHECKS\tRESPONSES")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%d\n", it.Name, it.Active, it.Status, len(it.Checks), len(it.Responses))
			}
			return w.Flush()
		}),
	})

	toggle := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <item>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: withOffline(func(cmd *cobra.Command, args []string, o *offline) error {
				var err error
				if active {
					err = o.sup.Activate(cmd.Context(), args[0])
				} else {
					err = o.sup.Deactivate(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s active=%t\n", args[0], active)
				return nil
			}),
		}
	}
	cmd.AddCommand(
		toggle("activate", "Include an item in evaluation passes", true),
		toggle("deactivate", "Exclude an item from evaluation passes", false),
	)

	// Offline runs have no bridge: dome, telescope and notifier responses
	// fail with a missing capability.
	cmd.AddCommand(&cobra.Command{
		Use:   "run <item>",
		Short: "Run the responses of an inactive item",
		Args:  cobra.ExactArgs(1),
		RunE: withOffline(func(cmd *cobra.Command, args []string, o *offline) error {
			if err := o.sup.RunInactive(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s done\n", args[0])
			return nil
		}),
	})
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for the control API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := api.IssueToken(cfg.Security.JWT.Secret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
