package step

import (
	"context"

	"github.com/jdziat/pass-batch/pkg/core"
	intctx "github.com/jdziat/pass-batch/pkg/internal/context"
	"github.com/jdziat/pass-batch/pkg/security"
)

// Step is the smallest schedulable unit of a flow.
type Step interface {
	Name() string
	// Validate reports configuration errors before any step of the job runs.
	Validate() error
	// Execute runs the step, recording counters on se.
	Execute(ctx context.Context, se *core.StepExecution) error
}

// Tasklet is a single unit of work.
type Tasklet interface {
	Execute(ctx context.Context) error
}

// TaskletFunc adapts a function to Tasklet.
type TaskletFunc func(ctx context.Context) error

func (f TaskletFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// TaskletStep runs its Tasklet once.
type TaskletStep struct {
	name    string
	tasklet Tasklet
}

// NewTasklet creates a step that runs t once.
func NewTasklet(name string, t Tasklet) *TaskletStep {
	return &TaskletStep{name: name, tasklet: t}
}

func (s *TaskletStep) Name() string { return s.name }

func (s *TaskletStep) Validate() error {
	if err := security.ValidateStepName(s.name); err != nil {
		return err
	}
	if s.tasklet == nil {
		return &core.StepError{Step: s.name, Phase: core.PhaseTasklet, Err: core.ErrInvalidFlow}
	}
	return nil
}

func (s *TaskletStep) Execute(ctx context.Context, se *core.StepExecution) error {
	ctx = intctx.WithStepExecution(ctx, se)
	if err := s.tasklet.Execute(ctx); err != nil {
		return &core.StepError{Step: s.name, Phase: core.PhaseTasklet, Err: err}
	}
	return nil
}
