package main

import (
	"fmt"

	"github.com/FranksOps/leadgen/internal/config"
	"github.com/FranksOps/leadgen/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	var (
		direction string
		steps     int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the store schema",
		Long: "Postgres uses the embedded migrations. SQLite and JSON stores " +
			"bootstrap their schema on open; migrate just opens them. Supabase " +
			"tables are managed in the Supabase project.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateStore(); err != nil {
				return err
			}

			switch cfg.StoreBackend {
			case config.StorePostgres:
				if err := postgres.Migrate(cfg.DatabaseURL, direction, steps); err != nil {
					return err
				}
			case config.StoreSQLite, config.StoreJSON:
				if direction == "down" {
					return fmt.Errorf("%s store has no down migrations", cfg.StoreBackend)
				}
				store, err := openStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				if err := store.Close(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%s store is not migrated by leadgen", cfg.StoreBackend)
			}

			logger.Info("migration complete", "store", cfg.StoreBackend, "direction", direction, "steps", steps)
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations, 0 means all")
	return cmd
}
