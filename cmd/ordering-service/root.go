package main

import (
	"dinein/ordering-service/internal/config"
	"dinein/ordering-service/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const serviceName = "ordering-service"

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Restaurant ordering backend: dining sessions, bills and catalogue",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newAuditCmd())
	return root
}

// bootstrap loads configuration and builds the logger shared by subcommands.
func bootstrap() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
