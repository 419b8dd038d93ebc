package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"library-lending/config"
	"library-lending/library"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globals holds the flags shared by every subcommand.
type globals struct {
	driver string
	dsn    string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "library",
		Short:        "Library lending service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.driver, "db-driver", "", "database driver: sqlite3, postgres or pgx (overrides DB_DRIVER)")
	root.PersistentFlags().StringVar(&g.dsn, "database-url", "", "sqlite path or postgres URL (overrides DATABASE_URL)")

	root.AddCommand(newServeCmd(g), newSweepCmd(g), newConsoleCmd(g), newMigrateCmd(g))
	return root
}

func (g *globals) load() (config.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.App{}, err
	}
	if g.driver != "" {
		cfg.DBDriver = g.driver
	}
	if g.dsn != "" {
		cfg.DatabaseURL = g.dsn
	}
	return cfg, nil
}

func openManager(cfg config.App, logger *slog.Logger) (*library.LibraryManager, error) {
	db, err := library.OpenDatabase(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	return library.NewManager(db, library.WithLogger(logger), library.WithPolicy(cfg.Policy)), nil
}

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			db, err := library.OpenDatabase(cfg.DBDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", db.Driver())
			return nil
		},
	}
}
