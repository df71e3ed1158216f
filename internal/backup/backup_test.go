package backup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadcastkit/studiod/internal/config"
)

func writeTestDB(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studiod.db")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func listBackups(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunOnceCopiesDatabase(t *testing.T) {
	dbPath := writeTestDB(t, 128)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(config.BackupConfig{
		Schedule: config.BackupScheduleConfig{Retention: 5},
	}, dbPath, dir, slog.Default())

	require.NoError(t, svc.RunOnce(context.Background()))

	names := listBackups(t, dir)
	require.Len(t, names, 1)
	assert.Contains(t, names[0], "studiod-")

	info, err := os.Stat(filepath.Join(dir, names[0]))
	require.NoError(t, err)
	assert.EqualValues(t, 128, info.Size())
}

func TestRunOncePrunesByRetention(t *testing.T) {
	dbPath := writeTestDB(t, 16)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(config.BackupConfig{
		Schedule: config.BackupScheduleConfig{Retention: 2},
	}, dbPath, dir, slog.Default())

	// Distinct timestamps so each run produces a new file.
	base := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		offset := time.Duration(i) * time.Minute
		svc.now = func() time.Time { return base.Add(offset) }
		require.NoError(t, svc.RunOnce(context.Background()))
	}

	assert.Len(t, listBackups(t, dir), 2)
}

func TestRunOncePrunesBySizeCap(t *testing.T) {
	dbPath := writeTestDB(t, 1000)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(config.BackupConfig{
		Schedule: config.BackupScheduleConfig{
			Retention:    10,
			MaxTotalSize: config.ByteSize(2500),
		},
	}, dbPath, dir, slog.Default())

	base := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		offset := time.Duration(i) * time.Minute
		svc.now = func() time.Time { return base.Add(offset) }
		require.NoError(t, svc.RunOnce(context.Background()))
	}

	// Only two 1000-byte copies fit under the 2500-byte cap.
	assert.Len(t, listBackups(t, dir), 2)
}

func TestStartRejectsBadCronExpression(t *testing.T) {
	dbPath := writeTestDB(t, 16)
	svc := NewService(config.BackupConfig{
		Schedule: config.BackupScheduleConfig{
			Enabled:   true,
			Cron:      "not a cron",
			Retention: 1,
		},
	}, dbPath, t.TempDir(), slog.Default())

	assert.Error(t, svc.Start())
}

func TestStartDisabledIsNoOp(t *testing.T) {
	dbPath := writeTestDB(t, 16)
	svc := NewService(config.BackupConfig{}, dbPath, t.TempDir(), slog.Default())
	require.NoError(t, svc.Start())
	svc.Stop()
}

func TestStartWithValidSchedule(t *testing.T) {
	dbPath := writeTestDB(t, 16)
	svc := NewService(config.BackupConfig{
		Schedule: config.BackupScheduleConfig{
			Enabled:   true,
			Cron:      "0 0 3 * * *",
			Retention: 7,
		},
	}, dbPath, t.TempDir(), slog.Default())
	require.NoError(t, svc.Start())
	svc.Stop()
}
