package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"dinein/ordering-service/internal/config"
	"dinein/ordering-service/internal/session"
	"dinein/ordering-service/internal/store/postgres"

	"github.com/spf13/cobra"
)

var errAuditFailed = errors.New("session audit failed")

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <sessionId>...",
		Short: "Verify session event chains against stored sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.DriverPostgres {
				return errors.New("audit requires STORE_DRIVER=postgres")
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

			engine := session.NewEngine(postgres.NewStore(pool), session.Options{
				Expiry: cfg.SessionExpiry(),
				Logger: log.WithField("component", "audit"),
			})

			encoder := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, sessionID := range args {
				report, err := engine.Audit(ctx, sessionID)
				if err != nil {
					return fmt.Errorf("audit %s: %w", sessionID, err)
				}
				if err := encoder.Encode(report); err != nil {
					return err
				}
				if !report.OK() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d sessions", errAuditFailed, failed, len(args))
			}
			return nil
		},
	}
}
