package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadcastkit/studiod/internal/config"
)

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:          "sqlite",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
		LogLevel:        "silent",
	}
}

func TestOpen_Sqlite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(testDatabaseConfig(), dsn, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	assert.Equal(t, dsn, db.DSN())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.Driver = "oracle"

	_, err := Open(cfg, "whatever", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDB_Close(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(testDatabaseConfig(), dsn, nil)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}
