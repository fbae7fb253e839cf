package main

import (
	"errors"

	"dinein/ordering-service/internal/config"
	"dinein/ordering-service/internal/store/postgres"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.DriverPostgres {
				return errors.New("migrate requires STORE_DRIVER=postgres")
			}

			ctx := cmd.Context()
			pool, err := postgres.Connect(ctx, postgres.ConnectOptions{
				DSN:           cfg.DatabaseURL,
				MaxConns:      cfg.PGMaxConns,
				Attempts:      cfg.PGConnectRetries,
				RetryInterval: cfg.PGConnectRetryInterval,
				Logger:        log,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool, log); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}
