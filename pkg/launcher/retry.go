package launcher

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/core"
)

// RetryConfig governs how often a failed bookkeeping write is repeated.
// Step work itself is never retried by the launcher.
type RetryConfig struct {
	// Attempts includes the first try. Values below 1 mean a single try.
	Attempts int
	// Backoff is the wait before the second attempt; it doubles per attempt.
	Backoff time.Duration
	// MaxBackoff caps the doubled wait.
	MaxBackoff time.Duration
	// Jitter randomizes each wait by up to this fraction in either direction.
	Jitter float64
}

// DefaultRetryConfig tolerates a locked SQLite file or a dropped
// connection for a few hundred milliseconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:   3,
		Backoff:    50 * time.Millisecond,
		MaxBackoff: 2 * time.Second,
		Jitter:     0.1,
	}
}

// delay returns the wait after the given failed attempt (1-based), before
// jitter.
func (rc RetryConfig) delay(attempt int) time.Duration {
	d := rc.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if rc.MaxBackoff > 0 && d >= rc.MaxBackoff {
			return rc.MaxBackoff
		}
	}
	if rc.MaxBackoff > 0 && d > rc.MaxBackoff {
		return rc.MaxBackoff
	}
	return d
}

func (rc RetryConfig) jittered(d time.Duration) time.Duration {
	if rc.Jitter <= 0 || d <= 0 {
		return d
	}
	j := time.Duration(float64(d) * rc.Jitter * (rand.Float64()*2 - 1))
	if d+j < 0 {
		return d
	}
	return d + j
}

// persist runs a repository write under the launcher's retry policy and
// logs every retried failure.
func (l *Launcher) persist(ctx context.Context, what string, write func() error) error {
	rc := l.config.RepositoryRetry
	attempts := max(rc.Attempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = write(); err == nil || !IsRetryable(err) || attempt >= attempts {
			return err
		}
		wait := rc.jittered(rc.delay(attempt))
		l.logger.Warn("repository write failed, retrying", "write", what, "attempt", attempt, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// IsRetryable reports whether a repository error might succeed when the
// write is repeated.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrJobInstanceExists), errors.Is(err, core.ErrExecutionNotFound):
		return false
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrMissingWhereClause):
		return false
	}
	return true
}
