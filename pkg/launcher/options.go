package launcher

import (
	"log/slog"
	"time"
)

// Option configures a Launcher.
type Option interface {
	Apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) Apply(c *Config) { f(c) }

// Config holds launcher configuration.
type Config struct {
	Logger *slog.Logger
	// RepositoryRetry governs retries of bookkeeping writes. Step work is
	// never retried.
	RepositoryRetry RetryConfig
	Clock           func() time.Time
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *Config) {
		c.Logger = l
	})
}

// WithRepositoryRetry overrides the bookkeeping retry policy.
func WithRepositoryRetry(rc RetryConfig) Option {
	return optionFunc(func(c *Config) {
		c.RepositoryRetry = rc
	})
}

// WithClock sets the clock used for execution timestamps.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *Config) {
		c.Clock = now
	})
}
