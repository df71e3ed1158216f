// Package startup assembles the application: storage, the configuration
// services, the pipeline controllers, and the background workers, in
// dependency order.
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/broadcastkit/studiod/internal/backup"
	"github.com/broadcastkit/studiod/internal/config"
	"github.com/broadcastkit/studiod/internal/database"
	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native"
	"github.com/broadcastkit/studiod/internal/observability"
	"github.com/broadcastkit/studiod/internal/services"
)

// App holds the assembled service graph.
type App struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *database.DB
	engine native.Engine

	Bus         *services.Bus
	Settings    *services.SettingsService
	Encoders    *services.EncoderService
	Providers   *services.ProviderService
	Outputs     *services.OutputService
	Rtmp        *services.RtmpOutputService
	Recording   *services.RecordingOutputService
	Performance *services.PerformanceService
	Backup      *backup.Service
}

// New opens storage and constructs the service graph. Nothing is loaded
// until Initialize runs.
func New(cfg *config.Config, engine native.Engine, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	for _, dir := range []string{cfg.Storage.BaseDir, cfg.Storage.TempPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	db, err := database.Open(cfg.Database, cfg.DatabaseDSN(), observability.WithComponent(log, "database"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if err := docstore.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{
		cfg:    cfg,
		log:    log,
		db:     db,
		engine: engine,
		Bus:    services.NewBus(log),
	}

	store := func(name string) *docstore.Store {
		return docstore.NewStore(db.DB, name, log)
	}
	app.Settings = services.NewSettingsService(store(models.StoreSettings), engine, cfg.Engine,
		app.Bus, observability.WithComponent(log, "settings"))
	app.Encoders = services.NewEncoderService(store(models.StoreVideoEncoders), store(models.StoreAudioEncoders),
		engine, observability.WithComponent(log, "encoders"))
	app.Providers = services.NewProviderService(store(models.StoreProviders),
		engine, observability.WithComponent(log, "providers"))
	app.Outputs = services.NewOutputService(store(models.StoreOutputs),
		engine, observability.WithComponent(log, "outputs"))
	app.Rtmp = services.NewRtmpOutputService(store(models.StoreRtmpPipeline),
		app.Outputs, app.Encoders, app.Providers, app.Settings, app.Bus,
		observability.WithComponent(log, "rtmp"))
	app.Recording = services.NewRecordingOutputService(store(models.StoreRecordingOutput),
		app.Outputs, app.Encoders, app.Bus, observability.WithComponent(log, "recording"))
	app.Performance = services.NewPerformanceService(cfg.Performance, app.Bus,
		observability.WithComponent(log, "performance"))

	if cfg.Database.Driver == "sqlite" {
		app.Backup = backup.NewService(cfg.Backup, cfg.DatabaseDSN(),
			cfg.Backup.BackupPath(cfg.Storage.BaseDir), log)
	} else if cfg.Backup.Schedule.Enabled {
		log.Warn("scheduled backups only cover the sqlite driver",
			slog.String("driver", cfg.Database.Driver))
	}

	return app, nil
}

// Initialize loads persisted state and applies it to the engine, then
// starts the background workers. Service order matters: settings feed the
// global contexts, registries must exist before the pipeline controllers
// bind into them.
func (a *App) Initialize(ctx context.Context) error {
	cleanTempDir(a.cfg.Storage.TempPath(), a.log)

	if err := a.Settings.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing settings: %w", err)
	}
	if err := a.Settings.ResetVideo(); err != nil {
		return err
	}
	if err := a.Settings.ResetAudio(); err != nil {
		return err
	}

	if err := a.Encoders.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing encoders: %w", err)
	}
	if err := a.Providers.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing providers: %w", err)
	}
	if err := a.Outputs.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing outputs: %w", err)
	}
	if err := a.Rtmp.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing streaming pipeline: %w", err)
	}
	if err := a.Recording.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing recording pipeline: %w", err)
	}

	a.Performance.Start(ctx)
	if a.Backup != nil {
		if err := a.Backup.Start(); err != nil {
			return fmt.Errorf("starting backup schedule: %w", err)
		}
	}

	a.log.Info("application initialized",
		slog.String("database", a.db.Driver()),
		slog.Int("outputs", len(a.Outputs.OutputIDs())))
	return nil
}

// Close stops the workers, drains every write queue, shuts the engine down,
// and closes storage.
func (a *App) Close() error {
	a.Performance.Stop()
	if a.Backup != nil {
		a.Backup.Stop()
	}

	a.Rtmp.Wait()
	a.Recording.Wait()
	a.Settings.Wait()
	a.Encoders.Wait()
	a.Providers.Wait()
	a.Outputs.Wait()

	if err := a.engine.Shutdown(); err != nil {
		a.log.Warn("engine shutdown failed", slog.String("error", err.Error()))
	}
	return a.db.Close()
}

// cleanTempDir removes leftover scratch files from previous runs.
func cleanTempDir(dir string, log *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "studiod-") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("removing stale temp entry failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		log.Debug("removed stale temp entry", slog.String("path", path))
	}
}
