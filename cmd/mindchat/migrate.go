package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/set-night/mindchat"
	"github.com/set-night/mindchat/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			return repository.RunMigrations(cfg.DatabaseURL, mindchat.MigrationsFS, "migrations")
		},
	}
}
