// Package context provides context helpers for the batch packages.
package context

import (
	"context"
	"time"

	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/params"
)

// JobContextKey is the key for storing job context in context.Context.
type JobContextKey struct{}

// JobContext holds the running job execution.
type JobContext struct {
	Execution  *core.JobExecution
	Parameters params.Parameters
	// Emit publishes an event to the launcher's subscribers
	Emit func(core.Event)
}

// GetJobContext retrieves the job context from a context.Context.
func GetJobContext(ctx context.Context) *JobContext {
	if jc, ok := ctx.Value(JobContextKey{}).(*JobContext); ok {
		return jc
	}
	return nil
}

// WithJobContext adds job context to a context.Context.
func WithJobContext(ctx context.Context, jc *JobContext) context.Context {
	return context.WithValue(ctx, JobContextKey{}, jc)
}

// StepContextKey is the key for storing the current step execution.
type StepContextKey struct{}

// GetStepExecution retrieves the step execution from a context.Context.
func GetStepExecution(ctx context.Context) *core.StepExecution {
	if se, ok := ctx.Value(StepContextKey{}).(*core.StepExecution); ok {
		return se
	}
	return nil
}

// WithStepExecution adds a step execution to a context.Context.
func WithStepExecution(ctx context.Context, se *core.StepExecution) context.Context {
	return context.WithValue(ctx, StepContextKey{}, se)
}

// ChunkStateKey is the key for storing chunk state in context.Context.
type ChunkStateKey struct{}

// ChunkState describes the chunk currently being read, processed and written.
type ChunkState struct {
	Index     int // 1-based
	StartedAt time.Time
}

// GetChunkState retrieves the chunk state from a context.Context.
func GetChunkState(ctx context.Context) *ChunkState {
	if cs, ok := ctx.Value(ChunkStateKey{}).(*ChunkState); ok {
		return cs
	}
	return nil
}

// WithChunkState adds chunk state to a context.Context.
func WithChunkState(ctx context.Context, index int, startedAt time.Time) context.Context {
	return context.WithValue(ctx, ChunkStateKey{}, &ChunkState{Index: index, StartedAt: startedAt})
}
