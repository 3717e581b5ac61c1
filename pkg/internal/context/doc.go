// Package context provides internal context helpers for job execution.
//
// This package is internal and should not be imported directly.
// It provides context value types for:
//   - Job context: the running JobExecution, its parameters and event emitter
//   - Step context: the StepExecution a step is recording into
//   - Chunk context: the index and start time of the chunk being processed
package context
