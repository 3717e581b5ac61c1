package core

import (
	"context"
	"errors"
)

// BatchStatus is the lifecycle state of a job or step execution.
type BatchStatus string

const (
	StatusStarting  BatchStatus = "STARTING"
	StatusStarted   BatchStatus = "STARTED"
	StatusCompleted BatchStatus = "COMPLETED"
	StatusStopped   BatchStatus = "STOPPED"
	StatusFailed    BatchStatus = "FAILED"
)

// IsTerminal reports whether no further transition can leave s.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusFailed:
		return true
	}
	return false
}

// IsRunning reports whether an execution in state s still owns its instance.
func (s BatchStatus) IsRunning() bool {
	return s == StatusStarting || s == StatusStarted
}

func (s BatchStatus) severity() int {
	switch s {
	case StatusCompleted:
		return 0
	case StatusStarting:
		return 1
	case StatusStarted:
		return 2
	case StatusStopped:
		return 3
	case StatusFailed:
		return 4
	}
	return 5
}

// Worst returns whichever of a and b ranks worse. FAILED outranks STOPPED,
// which outranks COMPLETED.
func Worst(a, b BatchStatus) BatchStatus {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// StatusOf maps the outcome of a step or flow to its terminal status.
func StatusOf(err error) BatchStatus {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
		return StatusStopped
	default:
		return StatusFailed
	}
}
