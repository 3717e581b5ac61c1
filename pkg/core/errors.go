package core

import (
	"errors"
	"fmt"
)

// Configuration errors
var (
	ErrUnknownJob         = errors.New("batch: no job registered under that name")
	ErrInvalidJobName     = errors.New("batch: invalid job name (must be alphanumeric, start with letter)")
	ErrJobNameTooLong     = errors.New("batch: job name too long")
	ErrInvalidStepName    = errors.New("batch: invalid step name")
	ErrInvalidParameters  = errors.New("batch: invalid job parameters")
	ErrTooManyParameters  = errors.New("batch: too many job parameters")
	ErrParameterTooLarge  = errors.New("batch: job parameter value exceeds size limit")
	ErrInvalidChunkSize   = errors.New("batch: chunk size must be at least 1")
	ErrInvalidFlow        = errors.New("batch: invalid flow definition")
	ErrJobInstanceExists  = errors.New("batch: job instance already exists")
	ErrJobInstanceDone    = errors.New("batch: job instance already completed for these parameters")
	ErrJobAlreadyRunning  = errors.New("batch: job instance has an execution in progress")
	ErrExecutionNotFound  = errors.New("batch: job execution not found")
	ErrExecutionNotActive = errors.New("batch: job execution is not running in this process")
)

// ErrStopped is returned by steps that honoured a stop request at a chunk boundary.
var ErrStopped = errors.New("batch: execution stopped")

// Step phases reported by StepError.
const (
	PhaseOpen    = "open"
	PhaseRead    = "read"
	PhaseProcess = "process"
	PhaseWrite   = "write"
	PhaseTasklet = "tasklet"
)

// StepError describes where inside a step a failure happened.
type StepError struct {
	Step  string
	Phase string
	Chunk int // 1-based chunk number, 0 when not chunk oriented
	Err   error
}

func (e *StepError) Error() string {
	if e.Chunk > 0 {
		return fmt.Sprintf("step %s: %s failed in chunk %d: %v", e.Step, e.Phase, e.Chunk, e.Err)
	}
	return fmt.Sprintf("step %s: %s failed: %v", e.Step, e.Phase, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
