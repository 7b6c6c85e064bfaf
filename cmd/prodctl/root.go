package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/config"
	"github.com/prodflow/prodflow/pkg/store/postgres"
)

type rootOptions struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "prodctl",
		Short:         "Operate a prodflow deployment",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Printf("no .env file, using environment")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := cfg.Logging.NewLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.cfg, opts.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newDepsCommand(opts))
	cmd.AddCommand(newOutboxCommand(opts))
	return cmd
}

func (o *rootOptions) openStore() (*postgres.Store, error) {
	db, err := postgres.NewStore(&o.cfg.Database, o.logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}
