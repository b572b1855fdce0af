// forgeyard-api is the front service. It terminates HTTP, records message
// requests, and round-trips work to the runner over the bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/schmitthub/forgeyard/internal/bus"
	"github.com/schmitthub/forgeyard/internal/config"
	"github.com/schmitthub/forgeyard/internal/httpapi"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/store"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitIO     = 2

	httpShutdownTimeout = 10 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgeyard-api: %v\n", err)
		return exitConfig
	}

	if err := initLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "forgeyard-api: %v\n", err)
		return exitIO
	}
	defer logger.Close()

	rootCmd := &cobra.Command{
		Use:           "forgeyard-api",
		Short:         "Serve the forgeyard HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("api service failed")
		return exitIO
	}
	return exitOK
}

func serve(ctx context.Context, cfg config.Config) error {
	st, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	conn, err := bus.Dial(ctx, cfg.AMQPURL())
	if err != nil {
		return err
	}
	defer conn.Close()

	// The instance id scopes this publisher's reply queues; replies for a
	// dead instance auto-delete with its queues.
	client, err := bus.NewClient(conn, "api-"+uuid.NewString()[:8])
	if err != nil {
		return err
	}
	defer client.Close()

	server := httpapi.New(client, st, st, cfg.RunnerReplyTimeout())
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("api service listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("api service shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func initLogging(cfg config.Config) error {
	if cfg.LogsDir != "" {
		return logger.InitWithFile("forgeyard-api", cfg.Debug, cfg.LogsDir, logger.FileConfig{})
	}
	logger.Init("forgeyard-api", cfg.Debug)
	return nil
}
