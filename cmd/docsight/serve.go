package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/config"
	"github.com/fyrsmithlabs/docsight/internal/httpapi"
	"github.com/fyrsmithlabs/docsight/internal/logging"
	"github.com/fyrsmithlabs/docsight/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the docsight daemon",
	Long: `Run the docsight HTTP daemon.

Configuration is read from ~/.config/docsight/config.yaml (override with
--config) and the environment. API credentials come from the environment
only (GEMINI_API_KEY_1 .. GEMINI_API_KEY_10).

Examples:
  # Start with defaults
  docsight serve

  # Explicit config file and port override
  SERVER_PORT=9090 docsight serve --config ./docsight.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "config file path")
}

// runServe starts the daemon and blocks until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting docsight",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("embedding_provider", cfg.Embeddings.Provider),
		zap.Int("credentials", len(cfg.Credentials.Keys)))

	svc, err := service.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer svc.Close()

	srv, err := httpapi.NewServer(svc, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
