package main

import (
	"echosphere/internal/repository"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the relational schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := repository.NewDB(cfg.DSN(), cfg.LogLevel)
		if err != nil {
			return err
		}
		if err := repository.Migrate(db); err != nil {
			return err
		}

		jww.INFO.Println("schema is up to date")
		return nil
	},
}
