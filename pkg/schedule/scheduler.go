package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/params"
)

// Runner launches a job by name. *launcher.Launcher satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, p params.Parameters) (*core.JobExecution, error)
}

// ParamsFunc builds the parameters of a triggered run from its fire time.
type ParamsFunc func(fireAt time.Time) params.Parameters

// Entry is one recurring trigger.
type Entry struct {
	Job      string
	Schedule Schedule
	Params   ParamsFunc

	next time.Time
}

// Option configures a Scheduler.
type Option interface {
	apply(*Scheduler)
}

type optionFunc func(*Scheduler)

func (f optionFunc) apply(s *Scheduler) { f(s) }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Scheduler) { s.logger = l })
}

// WithTickInterval sets how often due entries are checked. Default 1s.
func WithTickInterval(d time.Duration) Option {
	return optionFunc(func(s *Scheduler) { s.tick = d })
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(s *Scheduler) { s.now = now })
}

// Scheduler fires registered entries and runs their jobs one at a time.
// A run that is still in progress when its next fire time passes delays
// that fire rather than overlapping it.
type Scheduler struct {
	runner Runner
	logger *slog.Logger
	tick   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewScheduler creates a scheduler that launches jobs through runner.
func NewScheduler(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:  runner,
		logger:  slog.Default(),
		tick:    time.Second,
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Add registers a recurring trigger for job. A nil paramsFn runs the job
// with no parameters. Adding a job twice replaces its entry.
func (s *Scheduler) Add(job string, sched Schedule, paramsFn ParamsFunc) error {
	if job == "" {
		return fmt.Errorf("schedule: %w: empty job name", core.ErrUnknownJob)
	}
	if sched == nil {
		return fmt.Errorf("schedule: job %s: nil schedule", job)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[job] = &Entry{
		Job:      job,
		Schedule: sched,
		Params:   paramsFn,
		next:     sched.Next(s.now()),
	}
	return nil
}

// Remove drops the trigger for job.
func (s *Scheduler) Remove(job string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, job)
}

// Next returns the next fire time of job.
func (s *Scheduler) Next(job string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[job]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Jobs returns the scheduled job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start runs the scheduling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "jobs", s.Jobs())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue launches every entry whose fire time has passed and returns the
// number of runs started. Entries fire in job name order.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()
	due := s.takeDue(now)

	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		p := params.New(nil)
		if e.Params != nil {
			p = e.Params(now)
		}
		exec, err := s.runner.Run(ctx, e.Job, p)
		switch {
		case err != nil:
			s.logger.Error("scheduled job not launched", "job", e.Job, "error", err)
		case exec.Status != core.StatusCompleted:
			s.logger.Warn("scheduled job did not complete", "job", e.Job, "execution_id", exec.ID, "status", exec.Status, "exit_message", exec.ExitMessage)
		default:
			s.logger.Info("scheduled job completed", "job", e.Job, "execution_id", exec.ID)
		}
	}
	return len(due)
}

// takeDue collects due entries and advances their fire times past now.
func (s *Scheduler) takeDue(now time.Time) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Entry
	for _, e := range s.entries {
		if now.Before(e.next) {
			continue
		}
		due = append(due, e)
		next := e.Schedule.Next(now)
		if !next.After(now) {
			next = now.Add(time.Second)
		}
		e.next = next
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Job < due[j].Job })
	return due
}
