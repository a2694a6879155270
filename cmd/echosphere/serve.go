package main

import (
	"context"
	"os"

	"echosphere/internal/app"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the realtime hub and, in outbox mode, the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		os.Exit(runUntilSignal("echosphere", func(ctx context.Context) error {
			return a.Run(ctx)
		}, a.Close))
		return nil
	},
}
