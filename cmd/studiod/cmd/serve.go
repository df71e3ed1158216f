package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/broadcastkit/studiod/internal/config"
	"github.com/broadcastkit/studiod/internal/native"
	"github.com/broadcastkit/studiod/internal/startup"
	"github.com/broadcastkit/studiod/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the studiod daemon",
	Long: `Start the studiod daemon.

On startup the daemon loads the persisted configuration, rebuilds the
encoder, provider, and output registries inside the native media engine,
applies the global audio and video settings, and starts the background
workers (performance sampling, scheduled backups). It then runs until
interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("data-dir", "", "Data directory for configuration storage")
	serveCmd.Flags().String("database-dsn", "", "Database connection string override")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.BaseDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("database-dsn") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database-dsn")
	}

	engine, err := native.Default()
	if err != nil {
		return fmt.Errorf("media engine binding: %w", err)
	}

	logger.Info("starting studiod",
		slog.String("version", version.Short()),
		slog.String("data_dir", cfg.Storage.BaseDir),
		slog.String("database", cfg.Database.Driver))

	app, err := startup.New(cfg, engine, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Initialize(ctx); err != nil {
		_ = app.Close()
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return app.Close()
}
