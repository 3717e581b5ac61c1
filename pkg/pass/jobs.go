package pass

import (
	"log/slog"
	"time"
)

// Job and step names.
const (
	ExpirePassesJobName  = "expirePassesJob"
	ExpirePassesStepName = "expirePassesStep"
	AddPassesJobName     = "addPassesJob"
	AddPassesStepName    = "addPassesStep"
)

const (
	DefaultExpireChunkSize = 5
	DefaultBulkLookback    = 24 * time.Hour
)

// Option configures the pass jobs.
type Option func(*options)

type options struct {
	chunkSize int
	lookback  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{
		chunkSize: DefaultExpireChunkSize,
		lookback:  DefaultBulkLookback,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithChunkSize sets the expiration sweep's chunk size.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithLookback sets how far back bulk expansion looks for templates.
func WithLookback(d time.Duration) Option {
	return func(o *options) { o.lookback = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
