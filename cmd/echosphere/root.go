package main

import (
	"context"
	"time"

	"echosphere/internal/config"
	"echosphere/internal/pkg/logging"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

const shutdownTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:          "echosphere",
	Short:        "EchoSphere chat server with a realtime mirror",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Overrides LOG_LEVEL")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, migrateCmd, relayCmd, watchCmd)
}

// loadConfig reads the environment and configures logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	logging.Setup(cfg.LogLevel)
	return cfg, nil
}

// runUntilSignal runs fn until SIGINT or SIGTERM and returns the exit code.
func runUntilSignal(name string, fn func(ctx context.Context) error, cleanup func() error) int {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			jww.FATAL.Fatalf("%s stopped: %+v", name, err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		name: func(ctx context.Context) error {
			jww.INFO.Printf("shutting down %s", name)
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if cleanup != nil {
				return cleanup()
			}
			return nil
		},
	})

	return <-wait
}
