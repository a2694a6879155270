package main

import (
	"os"

	"echosphere/internal/app"
	"echosphere/internal/mirror"
	"echosphere/internal/repository"

	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run only the outbox relay, delivering staged mirror writes",
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
		rdb, err := repository.NewRedisClient(cmd.Context(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}

		tree := mirror.NewRedisTree(rdb, cfg.MirrorPrefix)
		relay := app.NewRelay(cfg, repository.NewOutboxRepository(db), tree)

		os.Exit(runUntilSignal("relay", relay.Run, rdb.Close))
		return nil
	},
}
