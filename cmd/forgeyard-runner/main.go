// forgeyard-runner is the back service. It owns the Docker daemon: it
// builds project images from uploaded templates, runs submission
// containers behind the concurrency cap, and serves the bus request
// queues.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schmitthub/forgeyard/internal/config"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/runner"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitIO     = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgeyard-runner: %v\n", err)
		return exitConfig
	}

	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "forgeyard-runner: %v\n", err)
		return exitIO
	}
	defer logger.Close()

	rootCmd := &cobra.Command{
		Use:           "forgeyard-runner",
		Short:         "Run template builds and submission sandboxes against Docker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := runner.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return r.Run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("runner failed")
		return exitIO
	}
	return exitOK
}

func initLogging(cfg config.Config) error {
	if cfg.LogsDir != "" {
		return logger.InitWithFile("forgeyard-runner", cfg.Debug, cfg.LogsDir, logger.FileConfig{})
	}
	logger.Init("forgeyard-runner", cfg.Debug)
	return nil
}
