package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadcastkit/studiod/internal/config"
	"github.com/broadcastkit/studiod/internal/models"
	"github.com/broadcastkit/studiod/internal/native/nativetest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Performance.Enabled = false
	cfg.Backup.Schedule.Enabled = false
	return cfg
}

func TestAppBootstrapAndReload(t *testing.T) {
	cfg := testConfig(t)
	engine := nativetest.New()

	app, err := New(cfg, engine, slog.Default())
	require.NoError(t, err)
	require.NoError(t, app.Initialize(context.Background()))

	// First run builds both pipelines and pushes settings into the engine.
	assert.Equal(t, 1, engine.VideoResets())
	assert.Equal(t, 1, engine.AudioResets())
	rtmpState := app.Rtmp.State()
	recState := app.Recording.State()
	assert.NotEmpty(t, rtmpState.OutputID)
	assert.NotEmpty(t, recState.OutputID)
	assert.Len(t, app.Outputs.OutputIDs(), 2)

	require.NoError(t, app.Settings.PatchSection(models.SectionTCP, map[string]any{"Port": 4455}))
	require.NoError(t, app.Close())

	// Second run over the same data directory restores everything.
	engine2 := nativetest.New()
	app2, err := New(cfg, engine2, slog.Default())
	require.NoError(t, err)
	require.NoError(t, app2.Initialize(context.Background()))
	defer app2.Close()

	assert.Equal(t, 4455, app2.Settings.Snapshot().TCP.Port)
	assert.Equal(t, rtmpState.OutputID, app2.Rtmp.State().OutputID)
	assert.Equal(t, recState.OutputID, app2.Recording.State().OutputID)
	assert.Len(t, app2.Outputs.OutputIDs(), 2)

	// The restored graph is startable.
	require.NoError(t, app2.Rtmp.Start())
	assert.True(t, app2.Rtmp.Active())
	require.NoError(t, app2.Rtmp.Stop())
}

func TestAppInitializeIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg, nativetest.New(), slog.Default())
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Initialize(context.Background()))
	outputs := app.Outputs.OutputIDs()
	require.NoError(t, app.Initialize(context.Background()))
	assert.Equal(t, outputs, app.Outputs.OutputIDs())
}

func TestAppCleansStaleTempEntries(t *testing.T) {
	cfg := testConfig(t)
	tempDir := cfg.Storage.TempPath()
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	stale := filepath.Join(tempDir, "studiod-scratch")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	unrelated := filepath.Join(tempDir, "keep.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))

	app, err := New(cfg, nativetest.New(), slog.Default())
	require.NoError(t, err)
	defer app.Close()
	require.NoError(t, app.Initialize(context.Background()))

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}
