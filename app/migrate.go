package app

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/monolith-auth/monolith-auth/internal/daemon"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := daemon.OpenDB(cfg.DB)
		if err != nil {
			return err
		}

		if err := daemon.Migrate(db); err != nil {
			return errors.Join(err, daemon.CloseDB(db))
		}

		log.Info().Msg("database schema is up to date")

		return daemon.CloseDB(db)
	},
}
