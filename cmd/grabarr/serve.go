package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaumene/grabarr/internal/telemetry"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(opts)
		},
	}
}

func serve(opts *rootOptions) error {
	// 1. Load configuration and logger
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	logger.Info("Starting Grabarr")
	logger.WithField("config_dir", cfg.ConfigDir).Info("Configuration loaded")

	// 2. Tracing
	shutdownTracing := telemetry.Setup(cfg.Telemetry, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.WithError(err).Error("Failed to shut down tracing")
		}
	}()

	// 3. Build the application graph
	app, cleanup, err := InitializeApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()
	logger.Info("Controllers initialized")

	// 4. Start scheduler
	if err := app.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer app.Scheduler.Stop()

	// 5. Start HTTP server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := app.Server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 6. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Grabarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := app.Server.Shutdown(); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Grabarr stopped")
	return nil
}
