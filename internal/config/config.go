// Package config provides configuration management for studiod using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultMaxOpenConns     = 6
	defaultMaxIdleConns     = 3
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultBackupRetention  = 7
	defaultBackupCron       = "0 0 3 * * *"
	defaultSampleInterval   = 2 * time.Second
	defaultBackupMaxTotal   = 500 * 1024 * 1024 // 500MB
	defaultGraphicsModule   = "libobs-opengl"
	defaultDatabaseFileName = "studiod.db"
)

// Config holds all configuration for the application.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Engine      EngineConfig      `mapstructure:"engine"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// BaseDir is the per-application data directory holding the
	// configuration databases and backups.
	BaseDir string `mapstructure:"base_dir"`
	TempDir string `mapstructure:"temp_dir"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres, mysql
	// DSN overrides the connection string. Empty means a sqlite file
	// inside storage.base_dir.
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// BackupConfig holds configuration-database backup settings.
type BackupConfig struct {
	// Directory is the backup storage location (empty = {storage.base_dir}/backups).
	Directory string               `mapstructure:"directory"`
	Schedule  BackupScheduleConfig `mapstructure:"schedule"`
}

// BackupScheduleConfig holds scheduled backup configuration.
type BackupScheduleConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Cron is a 6-field cron expression (default: daily at 3 AM).
	Cron      string `mapstructure:"cron"`
	Retention int    `mapstructure:"retention"`
	// MaxTotalSize caps the combined size of retained backups.
	// Supports human-readable values like "500MB".
	MaxTotalSize ByteSize `mapstructure:"max_total_size"`
}

// PerformanceConfig holds system performance sampling configuration.
type PerformanceConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// EngineConfig holds native media engine settings that are not part of the
// persisted settings documents.
type EngineConfig struct {
	// GraphicsModule is passed to the engine on every video pipeline reset.
	GraphicsModule string `mapstructure:"graphics_module"`
	// Adapter is the graphics adapter index.
	Adapter int `mapstructure:"adapter"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with STUDIOD_, using underscores for nesting.
// Example: STUDIOD_DATABASE_DRIVER=sqlite.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/studiod")
		v.AddConfigPath("$HOME/.studiod")
	}

	v.SetEnvPrefix("STUDIOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.temp_dir", "temp")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Backup defaults
	v.SetDefault("backup.directory", "")
	v.SetDefault("backup.schedule.enabled", true)
	v.SetDefault("backup.schedule.cron", defaultBackupCron)
	v.SetDefault("backup.schedule.retention", defaultBackupRetention)
	v.SetDefault("backup.schedule.max_total_size", defaultBackupMaxTotal)

	// Performance defaults
	v.SetDefault("performance.enabled", true)
	v.SetDefault("performance.sample_interval", defaultSampleInterval)

	// Engine defaults
	v.SetDefault("engine.graphics_module", defaultGraphicsModule)
	v.SetDefault("engine.adapter", 0)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Backup.Schedule.Retention < 1 {
		return fmt.Errorf("backup.schedule.retention must be at least 1")
	}
	if c.Performance.SampleInterval <= 0 {
		return fmt.Errorf("performance.sample_interval must be positive")
	}

	return nil
}

// DatabaseDSN returns the effective database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.Storage.BaseDir, defaultDatabaseFileName)
}

// TempPath returns the full path to the temp directory.
func (c *StorageConfig) TempPath() string {
	return filepath.Join(c.BaseDir, c.TempDir)
}

// BackupPath returns the backup directory path.
// If Directory is set, returns it directly; otherwise {BaseDir}/backups.
func (c *BackupConfig) BackupPath(storageBaseDir string) string {
	if c.Directory != "" {
		return c.Directory
	}
	return filepath.Join(storageBaseDir, "backups")
}
