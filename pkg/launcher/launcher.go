package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/flow"
	intctx "github.com/jdziat/pass-batch/pkg/internal/context"
	"github.com/jdziat/pass-batch/pkg/params"
	"github.com/jdziat/pass-batch/pkg/security"
	"github.com/jdziat/pass-batch/pkg/step"
)

// Job is a named top-level flow and the parameters it reads.
type Job struct {
	Name       string
	Flow       *flow.Flow
	Parameters params.Spec
}

// Launcher manages job registration and runs job executions.
type Launcher struct {
	repo   core.JobRepository
	config Config
	logger *slog.Logger

	jobs map[string]*Job
	mu   sync.RWMutex

	// Serializes instance resolution so two triggers of the same
	// parameters in this process cannot both start.
	launchMu sync.Mutex

	// Hooks
	onStart    []func(context.Context, *core.JobExecution)
	onComplete []func(context.Context, *core.JobExecution)
	onFail     []func(context.Context, *core.JobExecution, error)

	// Event stream
	eventSubs []chan core.Event

	// Running execution cancellation registry
	running   map[string]context.CancelFunc
	runningMu sync.Mutex
}

// New creates a Launcher backed by repo.
func New(repo core.JobRepository, opts ...Option) *Launcher {
	config := Config{
		Logger:          slog.Default(),
		RepositoryRetry: DefaultRetryConfig(),
		Clock:           time.Now,
	}
	for _, opt := range opts {
		opt.Apply(&config)
	}

	return &Launcher{
		repo:    repo,
		config:  config,
		logger:  config.Logger,
		jobs:    make(map[string]*Job),
		running: make(map[string]context.CancelFunc),
	}
}

// Register adds a job. It panics when the job name or flow is invalid.
// Job names must be alphanumeric (starting with a letter), max 255 chars.
func (l *Launcher) Register(job *Job) {
	if job == nil {
		panic("batch: nil job")
	}
	if err := security.ValidateJobName(job.Name); err != nil {
		panic(fmt.Sprintf("batch: invalid job name %q: %v", job.Name, err))
	}
	if job.Flow == nil {
		panic(fmt.Sprintf("batch: job %q has no flow", job.Name))
	}
	if err := job.Flow.Validate(); err != nil {
		panic(fmt.Sprintf("batch: job %q: %v", job.Name, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs[job.Name] = job
}

// Job returns a registered job by name.
func (l *Launcher) Job(name string) (*Job, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	j, ok := l.jobs[name]
	return j, ok
}

// JobNames returns the registered job names in sorted order.
func (l *Launcher) JobNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.jobs))
	for name := range l.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Repository returns the underlying job repository.
func (l *Launcher) Repository() core.JobRepository {
	return l.repo
}

// Run executes the named job with p and blocks until it reaches a terminal
// status.
//
// A non-nil error means nothing ran: the job is unknown, the parameters are
// invalid, the instance already completed or is running, or the repository
// failed. A job that ran and failed is reported through the returned
// execution's Status, ExitMessage and Failure.
func (l *Launcher) Run(ctx context.Context, name string, p params.Parameters) (*core.JobExecution, error) {
	job, ok := l.Job(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownJob, name)
	}
	if err := job.Parameters.Validate(p); err != nil {
		return nil, err
	}

	exec, err := l.createExecution(ctx, job, p)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.registerRunning(exec.ID, cancel)
	defer l.unregisterRunning(exec.ID)

	machine := newExecutionFSM(exec, l.config.Clock)
	if err := machine.Transition(ctx, eventStart); err != nil {
		err = fmt.Errorf("batch: start execution: %w", err)
		l.abandon(ctx, machine, exec, err)
		return nil, err
	}
	if err := l.saveExecution(ctx, exec); err != nil {
		l.abandon(ctx, machine, exec, err)
		return nil, err
	}

	l.logger.Info("job started", "job", job.Name, "execution_id", exec.ID, "parameters", p.Map())
	l.callStartHooks(ctx, exec)
	l.Emit(&core.JobStarted{Execution: exec, Timestamp: time.Now()})

	jobCtx := intctx.WithJobContext(runCtx, &intctx.JobContext{
		Execution:  exec,
		Parameters: p,
		Emit:       l.Emit,
	})
	runErr := l.executeFlow(jobCtx, exec, job.Flow)

	// Record the outcome even if the caller's context is gone.
	finalCtx := context.WithoutCancel(ctx)
	if err := machine.Finish(finalCtx, runErr); err != nil {
		return exec, fmt.Errorf("batch: finish execution: %w", err)
	}
	exec.Failure = runErr
	if runErr != nil {
		exec.ExitMessage = security.SanitizeErrorMessage(runErr.Error())
	}
	saveErr := l.saveExecution(finalCtx, exec)

	duration := time.Duration(0)
	if exec.StartedAt != nil && exec.EndedAt != nil {
		duration = exec.EndedAt.Sub(*exec.StartedAt)
	}

	switch exec.Status {
	case core.StatusCompleted:
		l.logger.Info("job completed", "job", job.Name, "execution_id", exec.ID, "duration", duration)
		l.callCompleteHooks(finalCtx, exec)
		l.Emit(&core.JobCompleted{Execution: exec, Duration: duration, Timestamp: time.Now()})
	case core.StatusStopped:
		l.logger.Warn("job stopped", "job", job.Name, "execution_id", exec.ID)
		l.callFailHooks(finalCtx, exec, runErr)
		l.Emit(&core.JobStopped{Execution: exec, Timestamp: time.Now()})
	default:
		l.logger.Error("job failed", "job", job.Name, "execution_id", exec.ID, "error", runErr)
		l.callFailHooks(finalCtx, exec, runErr)
		l.Emit(&core.JobFailed{Execution: exec, Error: runErr, Timestamp: time.Now()})
	}

	return exec, saveErr
}

// createExecution resolves the job instance for p and records a new
// STARTING execution for it.
func (l *Launcher) createExecution(ctx context.Context, job *Job, p params.Parameters) (*core.JobExecution, error) {
	l.launchMu.Lock()
	defer l.launchMu.Unlock()

	key := p.IdentityKey()
	instance, err := l.repo.FindJobInstance(ctx, job.Name, key)
	if err != nil {
		return nil, fmt.Errorf("batch: find job instance: %w", err)
	}

	if instance == nil {
		instance = &core.JobInstance{
			ID:         uuid.New().String(),
			JobName:    job.Name,
			JobKey:     key,
			Parameters: p.Encode(),
		}
		if err := l.repo.CreateJobInstance(ctx, instance); err != nil {
			if !errors.Is(err, core.ErrJobInstanceExists) {
				return nil, fmt.Errorf("batch: create job instance: %w", err)
			}
			// Another process created it first.
			instance, err = l.repo.FindJobInstance(ctx, job.Name, key)
			if err != nil || instance == nil {
				return nil, fmt.Errorf("batch: reload job instance: %w", errors.Join(core.ErrJobInstanceExists, err))
			}
		}
	}

	last, err := l.repo.LastJobExecution(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("batch: last job execution: %w", err)
	}
	if last != nil {
		switch {
		case last.Status == core.StatusCompleted:
			return nil, fmt.Errorf("%w: %s %s", core.ErrJobInstanceDone, job.Name, p.Encode())
		case last.Status.IsRunning():
			return nil, fmt.Errorf("%w: %s execution %s", core.ErrJobAlreadyRunning, job.Name, last.ID)
		}
	}

	exec := &core.JobExecution{
		ID:            uuid.New().String(),
		JobInstanceID: instance.ID,
		JobName:       job.Name,
		Status:        core.StatusStarting,
		Parameters:    p.Encode(),
	}
	if err := l.persist(ctx, "create job execution", func() error {
		return l.repo.CreateJobExecution(ctx, exec)
	}); err != nil {
		return nil, fmt.Errorf("batch: create job execution: %w", err)
	}
	return exec, nil
}

// abandon records an execution that never got to run as FAILED, so its
// instance is not held as running and can be launched again.
func (l *Launcher) abandon(ctx context.Context, machine *executionFSM, exec *core.JobExecution, cause error) {
	ctx = context.WithoutCancel(ctx)
	if machine.Current().IsRunning() {
		if err := machine.Transition(ctx, eventFail); err != nil {
			l.logger.Error("failed to abandon job execution", "execution_id", exec.ID, "error", err)
			return
		}
	}
	exec.Failure = cause
	exec.ExitMessage = security.SanitizeErrorMessage(cause.Error())
	if err := l.saveExecution(ctx, exec); err != nil {
		return
	}
	l.logger.Warn("job execution abandoned before start", "job", exec.JobName, "execution_id", exec.ID, "error", cause)
}

func (l *Launcher) executeFlow(ctx context.Context, exec *core.JobExecution, f *flow.Flow) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Execute(ctx, l.stepRunner(exec))
}

func (l *Launcher) saveExecution(ctx context.Context, exec *core.JobExecution) error {
	err := l.persist(ctx, "update job execution", func() error {
		return l.repo.UpdateJobExecution(ctx, exec)
	})
	if err != nil {
		l.logger.Error("failed to record job execution", "execution_id", exec.ID, "status", exec.Status, "error", err)
		return fmt.Errorf("batch: record job execution: %w", err)
	}
	return nil
}

// stepRunner returns the flow.Runner that records a StepExecution around
// every step of exec.
func (l *Launcher) stepRunner(exec *core.JobExecution) flow.Runner {
	return func(ctx context.Context, s step.Step) error {
		started := l.config.Clock()
		se := &core.StepExecution{
			ID:             uuid.New().String(),
			JobExecutionID: exec.ID,
			StepName:       s.Name(),
			Status:         core.StatusStarted,
			StartedAt:      &started,
		}
		if err := l.persist(ctx, "create step execution", func() error {
			return l.repo.CreateStepExecution(ctx, se)
		}); err != nil {
			return fmt.Errorf("batch: record step %s: %w", s.Name(), err)
		}

		l.logger.Debug("step started", "job", exec.JobName, "step", s.Name(), "execution_id", exec.ID)
		err := l.executeStep(ctx, s, se)

		ended := l.config.Clock()
		se.EndedAt = &ended
		se.Status = core.StatusOf(err)
		if err != nil {
			se.ExitMessage = security.SanitizeErrorMessage(err.Error())
		}

		finalCtx := context.WithoutCancel(ctx)
		if uerr := l.persist(finalCtx, "update step execution", func() error {
			return l.repo.UpdateStepExecution(finalCtx, se)
		}); uerr != nil {
			l.logger.Error("failed to record step execution", "step", s.Name(), "execution_id", exec.ID, "error", uerr)
			if err == nil {
				err = fmt.Errorf("batch: record step %s: %w", s.Name(), uerr)
			}
		}

		if err != nil {
			l.logger.Warn("step failed", "job", exec.JobName, "step", s.Name(), "status", se.Status,
				"read", se.ReadCount, "written", se.WriteCount, "error", err)
			l.Emit(&core.StepFailed{Step: se, Error: err, Timestamp: time.Now()})
			return err
		}
		l.logger.Info("step completed", "job", exec.JobName, "step", s.Name(),
			"read", se.ReadCount, "written", se.WriteCount, "commits", se.CommitCount)
		l.Emit(&core.StepCompleted{Step: se, Duration: ended.Sub(started), Timestamp: time.Now()})
		return nil
	}
}

func (l *Launcher) executeStep(ctx context.Context, s step.Step, se *core.StepExecution) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.StepError{Step: s.Name(), Phase: core.PhaseTasklet, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.Execute(ctx, se)
}

// Stop requests that a running execution end at the next chunk boundary.
// The execution finishes with status STOPPED.
func (l *Launcher) Stop(executionID string) error {
	l.runningMu.Lock()
	cancel, ok := l.running[executionID]
	l.runningMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrExecutionNotActive, executionID)
	}
	cancel()
	return nil
}

// Running returns the IDs of executions currently running in this process.
func (l *Launcher) Running() []string {
	l.runningMu.Lock()
	defer l.runningMu.Unlock()
	ids := make([]string, 0, len(l.running))
	for id := range l.running {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (l *Launcher) registerRunning(id string, cancel context.CancelFunc) {
	l.runningMu.Lock()
	l.running[id] = cancel
	l.runningMu.Unlock()
}

func (l *Launcher) unregisterRunning(id string) {
	l.runningMu.Lock()
	delete(l.running, id)
	l.runningMu.Unlock()
}
