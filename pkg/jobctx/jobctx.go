// Package jobctx provides public access to execution context for steps,
// readers, processors and writers.
package jobctx

import (
	"context"
	"time"

	"github.com/jdziat/pass-batch/pkg/core"
	intctx "github.com/jdziat/pass-batch/pkg/internal/context"
	"github.com/jdziat/pass-batch/pkg/params"
)

// JobExecutionFromContext returns the running JobExecution, or nil outside a job.
func JobExecutionFromContext(ctx context.Context) *core.JobExecution {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return nil
	}
	return jc.Execution
}

// JobExecutionIDFromContext returns the running execution ID, or empty string outside a job.
func JobExecutionIDFromContext(ctx context.Context) string {
	exec := JobExecutionFromContext(ctx)
	if exec == nil {
		return ""
	}
	return exec.ID
}

// ParametersFromContext returns the parameters the job was triggered with.
func ParametersFromContext(ctx context.Context) params.Parameters {
	jc := intctx.GetJobContext(ctx)
	if jc == nil {
		return params.New(nil)
	}
	return jc.Parameters
}

// StepExecutionFromContext returns the StepExecution of the running step, or nil.
func StepExecutionFromContext(ctx context.Context) *core.StepExecution {
	return intctx.GetStepExecution(ctx)
}

// ChunkIndex returns the 1-based index of the current chunk, or 0 outside a chunk.
func ChunkIndex(ctx context.Context) int {
	cs := intctx.GetChunkState(ctx)
	if cs == nil {
		return 0
	}
	return cs.Index
}

// ChunkStartedAt returns when the current chunk began. Processors use it as
// "now" so every item in a chunk shares one timestamp.
func ChunkStartedAt(ctx context.Context) (time.Time, bool) {
	cs := intctx.GetChunkState(ctx)
	if cs == nil {
		return time.Time{}, false
	}
	return cs.StartedAt, true
}

// Emit publishes an event to the launcher's subscribers.
// It is a no-op outside a job.
func Emit(ctx context.Context, e core.Event) {
	jc := intctx.GetJobContext(ctx)
	if jc == nil || jc.Emit == nil {
		return
	}
	jc.Emit(e)
}
