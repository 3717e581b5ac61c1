package core

import "time"

// Event is the interface for all execution events.
type Event interface {
	eventMarker()
}

// JobStarted is emitted when a job execution starts.
type JobStarted struct {
	Execution *JobExecution
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when every step of a job succeeded.
type JobCompleted struct {
	Execution *JobExecution
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job execution ends FAILED.
type JobFailed struct {
	Execution *JobExecution
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobStopped is emitted when a job execution ends STOPPED.
type JobStopped struct {
	Execution *JobExecution
	Timestamp time.Time
}

func (*JobStopped) eventMarker() {}

// StepCompleted is emitted when a step finishes successfully.
type StepCompleted struct {
	Step      *StepExecution
	Duration  time.Duration
	Timestamp time.Time
}

func (*StepCompleted) eventMarker() {}

// StepFailed is emitted when a step ends FAILED or STOPPED.
type StepFailed struct {
	Step      *StepExecution
	Error     error
	Timestamp time.Time
}

func (*StepFailed) eventMarker() {}

// ChunkCommitted is emitted after the sink accepted a chunk.
type ChunkCommitted struct {
	StepExecutionID string
	StepName        string
	Chunk           int
	Items           int
	Timestamp       time.Time
}

func (*ChunkCommitted) eventMarker() {}
