// Package config loads pass-batch settings from a file, PASSBATCH_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gorm.io/gorm/logger"

	"github.com/jdziat/pass-batch/pkg/schedule"
	"github.com/jdziat/pass-batch/pkg/storage"
)

// EnvPrefix prefixes every environment override, e.g.
// PASSBATCH_DATABASE_DSN for database.dsn.
const EnvPrefix = "PASSBATCH"

// Config is the full process configuration.
type Config struct {
	LogLevel  string            `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Database  Database          `mapstructure:"database"`
	Batch     Batch             `mapstructure:"batch"`
	Schedules map[string]string `mapstructure:"schedules"`
}

// Database selects and tunes the backing store.
type Database struct {
	Driver   string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DSN      string `mapstructure:"dsn" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=silent error warn info"`
	Pool     Pool   `mapstructure:"pool"`
}

// Pool overrides the driver's default pool settings. Zero leaves the
// driver default in place.
type Pool struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"gte=0"`
}

// Batch holds job tuning.
type Batch struct {
	ExpireChunkSize     int           `mapstructure:"expire_chunk_size" validate:"min=1,max=100000"`
	StatisticsChunkSize int           `mapstructure:"statistics_chunk_size" validate:"min=1,max=100000"`
	BulkLookback        time.Duration `mapstructure:"bulk_lookback" validate:"gt=0"`
	ReportDir           string        `mapstructure:"report_dir" validate:"required"`
}

// SetDefaults registers every key's default on v. Keys must be known to
// viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("database.driver", storage.DriverSQLite)
	v.SetDefault("database.dsn", "passbatch.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.pool.max_open_conns", 0)
	v.SetDefault("database.pool.max_idle_conns", 0)
	v.SetDefault("database.pool.conn_max_lifetime", time.Duration(0))
	v.SetDefault("database.pool.conn_max_idle_time", time.Duration(0))
	v.SetDefault("batch.expire_chunk_size", 5)
	v.SetDefault("batch.statistics_chunk_size", 10)
	v.SetDefault("batch.bulk_lookback", 24*time.Hour)
	v.SetDefault("batch.report_dir", "reports")
	v.SetDefault("schedules", map[string]string{})
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads path (when non-empty, otherwise ./passbatch.yaml if present),
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("passbatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var missing viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &missing) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that every schedule parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for job, expr := range c.Schedules {
		if _, err := schedule.ParseCron(expr); err != nil {
			return fmt.Errorf("invalid config: schedules.%s: %w", job, err)
		}
	}
	return nil
}

// PoolOptions converts the non-zero pool overrides to storage options.
func (d Database) PoolOptions() []storage.PoolOption {
	var opts []storage.PoolOption
	if d.Pool.MaxOpenConns > 0 {
		opts = append(opts, storage.MaxOpenConns(d.Pool.MaxOpenConns))
	}
	if d.Pool.MaxIdleConns > 0 {
		opts = append(opts, storage.MaxIdleConns(d.Pool.MaxIdleConns))
	}
	if d.Pool.ConnMaxLifetime > 0 {
		opts = append(opts, storage.ConnMaxLifetime(d.Pool.ConnMaxLifetime))
	}
	if d.Pool.ConnMaxIdleTime > 0 {
		opts = append(opts, storage.ConnMaxIdleTime(d.Pool.ConnMaxIdleTime))
	}
	return opts
}

// GormLogLevel maps database.log_level to GORM's logger level.
func (d Database) GormLogLevel() logger.LogLevel {
	switch d.LogLevel {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// SlogLevel maps log_level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
