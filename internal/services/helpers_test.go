package services

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/broadcastkit/studiod/internal/config"
	"github.com/broadcastkit/studiod/internal/docstore"
	"github.com/broadcastkit/studiod/internal/native/nativetest"
)

// testEnv wires a fake engine and a real sqlite-backed document store.
type testEnv struct {
	db     *gorm.DB
	engine *nativetest.Engine
	bus    *Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, docstore.Migrate(db))
	return &testEnv{
		db:     db,
		engine: nativetest.New(),
		bus:    NewBus(slog.Default()),
	}
}

func (e *testEnv) store(name string) *docstore.Store {
	return docstore.NewStore(e.db, name, slog.Default())
}

func (e *testEnv) settingsService() *SettingsService {
	return NewSettingsService(e.store("Settings"), e.engine,
		config.EngineConfig{GraphicsModule: "libobs-opengl"}, e.bus, slog.Default())
}
