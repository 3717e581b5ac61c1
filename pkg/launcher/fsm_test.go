package launcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/pass-batch/pkg/core"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestExecutionFSM_CompletePath(t *testing.T) {
	ctx := context.Background()
	exec := &core.JobExecution{Status: core.StatusStarting}
	m := newExecutionFSM(exec, fixedClock())

	require.NoError(t, m.Transition(ctx, eventStart))
	assert.Equal(t, core.StatusStarted, exec.Status)
	require.NotNil(t, exec.StartedAt)
	assert.Nil(t, exec.EndedAt)

	require.NoError(t, m.Finish(ctx, nil))
	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.Equal(t, core.StatusCompleted, m.Current())
	require.NotNil(t, exec.EndedAt)
	assert.True(t, exec.EndedAt.After(*exec.StartedAt))
}

func TestExecutionFSM_TerminalStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.BatchStatus
	}{
		{"success", nil, core.StatusCompleted},
		{"failure", errors.New("boom"), core.StatusFailed},
		{"stopped", core.ErrStopped, core.StatusStopped},
		{"canceled", context.Canceled, core.StatusStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &core.JobExecution{Status: core.StatusStarting}
			m := newExecutionFSM(exec, fixedClock())
			require.NoError(t, m.Transition(context.Background(), eventStart))
			require.NoError(t, m.Finish(context.Background(), tt.err))
			assert.Equal(t, tt.want, exec.Status)
		})
	}
}

func TestExecutionFSM_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	exec := &core.JobExecution{Status: core.StatusStarting}
	m := newExecutionFSM(exec, fixedClock())

	// Cannot complete before starting
	assert.Error(t, m.Transition(ctx, eventComplete))
	assert.Equal(t, core.StatusStarting, exec.Status)

	// A starting execution may fail before it ever starts
	require.NoError(t, m.Transition(ctx, eventFail))
	assert.Equal(t, core.StatusFailed, exec.Status)

	// Terminal states accept nothing
	assert.Error(t, m.Transition(ctx, eventStart))
	assert.Error(t, m.Transition(ctx, eventStop))
}
