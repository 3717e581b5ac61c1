package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/params"
)

func retryLauncher(rc RetryConfig) *Launcher {
	return New(nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithRepositoryRetry(rc))
}

func TestRetryConfig_Delay(t *testing.T) {
	rc := RetryConfig{Backoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, rc.delay(1))
	assert.Equal(t, 20*time.Millisecond, rc.delay(2))
	assert.Equal(t, 40*time.Millisecond, rc.delay(3))
	assert.Equal(t, 50*time.Millisecond, rc.delay(4))
	assert.Equal(t, 50*time.Millisecond, rc.delay(10))
}

func TestRetryConfig_JitterStaysInRange(t *testing.T) {
	rc := RetryConfig{Jitter: 0.1}
	for i := 0; i < 100; i++ {
		d := rc.jittered(100 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
	assert.Equal(t, 100*time.Millisecond, RetryConfig{}.jittered(100*time.Millisecond))
}

func TestPersist_RetriesTransientFailures(t *testing.T) {
	l := retryLauncher(RetryConfig{Attempts: 5, Backoff: time.Millisecond})
	var attempts int

	err := l.persist(context.Background(), "test", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPersist_ReturnsLastErrorWhenExhausted(t *testing.T) {
	l := retryLauncher(RetryConfig{Attempts: 3, Backoff: time.Millisecond})
	var attempts int

	err := l.persist(context.Background(), "test", func() error {
		attempts++
		return fmt.Errorf("attempt %d", attempts)
	})

	require.EqualError(t, err, "attempt 3")
	assert.Equal(t, 3, attempts)
}

func TestPersist_PermanentErrorIsNotRetried(t *testing.T) {
	l := retryLauncher(DefaultRetryConfig())
	var attempts int

	err := l.persist(context.Background(), "test", func() error {
		attempts++
		return fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)
	})

	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.Equal(t, 1, attempts)
}

func TestPersist_ZeroAttemptsRunsOnce(t *testing.T) {
	l := retryLauncher(RetryConfig{})
	var attempts int

	_ = l.persist(context.Background(), "test", func() error {
		attempts++
		return errors.New("fail")
	})

	assert.Equal(t, 1, attempts)
}

func TestPersist_StopsWaitingOnCancel(t *testing.T) {
	l := retryLauncher(RetryConfig{Attempts: 10, Backoff: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	var attempts atomic.Int32

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := l.persist(ctx, "test", func() error {
		attempts.Add(1)
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"instance exists", core.ErrJobInstanceExists, false},
		{"execution not found", fmt.Errorf("update: %w", core.ErrExecutionNotFound), false},
		{"duplicate key", gorm.ErrDuplicatedKey, false},
		{"record not found", gorm.ErrRecordNotFound, false},
		{"locked database", errors.New("database is locked"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithRepositoryRetry_Option(t *testing.T) {
	var c Config
	WithRepositoryRetry(RetryConfig{Attempts: 10, Backoff: 200 * time.Millisecond}).Apply(&c)

	assert.Equal(t, 10, c.RepositoryRetry.Attempts)
	assert.Equal(t, 200*time.Millisecond, c.RepositoryRetry.Backoff)
}

// flakyStepRepository fails the first CreateStepExecution call.
type flakyStepRepository struct {
	core.JobRepository
	failed atomic.Bool
}

func (r *flakyStepRepository) CreateStepExecution(ctx context.Context, se *core.StepExecution) error {
	if r.failed.CompareAndSwap(false, true) {
		return errors.New("database is locked")
	}
	return r.JobRepository.CreateStepExecution(ctx, se)
}

func TestRun_SurvivesTransientRepositoryFailure(t *testing.T) {
	_, repo := newTestLauncher(t)
	flaky := &flakyStepRepository{JobRepository: repo}
	l := New(flaky,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRepositoryRetry(RetryConfig{Attempts: 3, Backoff: time.Millisecond}),
	)
	l.Register(taskletJob("flakyRepoJob", noop))

	exec, err := l.Run(context.Background(), "flakyRepoJob", params.New(nil))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.True(t, flaky.failed.Load())

	steps, err := repo.GetStepExecutions(context.Background(), exec.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, core.StatusCompleted, steps[0].Status)
}
