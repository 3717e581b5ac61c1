// Package batch runs chunk-oriented batch jobs built from flows of steps.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a compact API surface.
//
// Basic usage:
//
//	db, _ := batch.OpenDB(batch.DriverSQLite, "batch.db")
//	repo := batch.NewGormRepository(db)
//	repo.Migrate(ctx)
//	l := batch.New(repo)
//
//	// A chunk step: read 5, transform, write 5, repeat.
//	expire := batch.NewChunk("expireStep", 5,
//	    batch.NewGormSource[Pass](db, expiredQuery),
//	    batch.ProcessorFunc[Pass, Pass](markExpired),
//	    batch.NewGormSink[Pass](db),
//	)
//	l.Register(&batch.Job{
//	    Name: "expireJob",
//	    Flow: batch.NewFlow("expireFlow").Step(expire).MustBuild(),
//	})
//
//	exec, err := l.Run(ctx, "expireJob", batch.NewParameters(nil))
package batch

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/pass-batch/pkg/aggregate"
	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/flow"
	"github.com/jdziat/pass-batch/pkg/item"
	"github.com/jdziat/pass-batch/pkg/jobctx"
	"github.com/jdziat/pass-batch/pkg/launcher"
	"github.com/jdziat/pass-batch/pkg/params"
	"github.com/jdziat/pass-batch/pkg/schedule"
	"github.com/jdziat/pass-batch/pkg/security"
	"github.com/jdziat/pass-batch/pkg/step"
	"github.com/jdziat/pass-batch/pkg/storage"
)

// Type aliases
type (
	// JobInstance identifies a job name plus parameter identity.
	JobInstance = core.JobInstance

	// JobExecution is one attempt at running a JobInstance.
	JobExecution = core.JobExecution

	// StepExecution records one run of a step.
	StepExecution = core.StepExecution

	// BatchStatus is the status of an execution.
	BatchStatus = core.BatchStatus

	// JobRepository persists instances and executions.
	JobRepository = core.JobRepository

	// StepError reports the step, phase and chunk a failure happened in.
	StepError = core.StepError

	// Event is the interface for all execution events.
	Event = core.Event

	// JobStarted is emitted when a job execution starts.
	JobStarted = core.JobStarted

	// JobCompleted is emitted when a job execution completes.
	JobCompleted = core.JobCompleted

	// JobFailed is emitted when a job execution fails.
	JobFailed = core.JobFailed

	// JobStopped is emitted when a job execution is stopped.
	JobStopped = core.JobStopped

	// StepCompleted is emitted when a step finishes.
	StepCompleted = core.StepCompleted

	// StepFailed is emitted when a step fails or stops.
	StepFailed = core.StepFailed

	// ChunkCommitted is emitted after each chunk write.
	ChunkCommitted = core.ChunkCommitted

	// Launcher registers and runs jobs.
	Launcher = launcher.Launcher

	// Job is a named flow plus its declared parameters.
	Job = launcher.Job

	// Option configures a Launcher.
	Option = launcher.Option

	// RetryConfig governs retries of bookkeeping writes.
	RetryConfig = launcher.RetryConfig

	// Flow is an ordered composition of steps, flows and splits.
	Flow = flow.Flow

	// FlowBuilder assembles a Flow.
	FlowBuilder = flow.Builder

	// SplitError lists the failed members of a split.
	SplitError = flow.SplitError

	// Step is the smallest unit of a flow.
	Step = step.Step

	// Tasklet is a single unit of work.
	Tasklet = step.Tasklet

	// TaskletFunc adapts a function to Tasklet.
	TaskletFunc = step.TaskletFunc

	// TaskletStep runs a Tasklet once.
	TaskletStep = step.TaskletStep

	// ChunkOption configures a chunk step.
	ChunkOption = step.ChunkOption

	// Parameters is an immutable job parameter set.
	Parameters = params.Parameters

	// ParameterSpec declares the parameters a job reads.
	ParameterSpec = params.Spec

	// ParameterDefinition declares one parameter.
	ParameterDefinition = params.Definition

	// GormRepository implements JobRepository using GORM.
	GormRepository = storage.GormRepository

	// QueryFunc narrows a GormSource query.
	QueryFunc = storage.QueryFunc

	// PoolOption configures the database connection pool.
	PoolOption = storage.PoolOption

	// Schedule computes the next fire time.
	Schedule = schedule.Schedule

	// Scheduler launches jobs on schedules.
	Scheduler = schedule.Scheduler
)

// Generic aliases
type (
	Source[T any]                             = item.Source[T]
	Iterator[T any]                           = item.Iterator[T]
	Processor[I, O any]                       = item.Processor[I, O]
	ProcessorFunc[I, O any]                   = item.ProcessorFunc[I, O]
	Writer[T any]                             = item.Writer[T]
	WriterFunc[T any]                         = item.WriterFunc[T]
	ChunkStep[I, O any]                       = step.ChunkStep[I, O]
	Aggregator[R any, K comparable, A any]    = aggregate.Aggregator[R, K, A]
	AggregateStep[R any, K comparable, A any] = aggregate.Step[R, K, A]
	GormSource[T any]                         = storage.GormSource[T]
	GormSink[T any]                           = storage.GormSink[T]
)

// Status constants
const (
	StatusStarting  = core.StatusStarting
	StatusStarted   = core.StatusStarted
	StatusCompleted = core.StatusCompleted
	StatusStopped   = core.StatusStopped
	StatusFailed    = core.StatusFailed
)

// Database drivers
const (
	DriverSQLite   = storage.DriverSQLite
	DriverPostgres = storage.DriverPostgres
)

// Security limits
const (
	MaxNameLength         = security.MaxNameLength
	MaxParameters         = security.MaxParameters
	MaxChunkSize          = security.MaxChunkSize
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrUnknownJob         = core.ErrUnknownJob
	ErrInvalidParameters  = core.ErrInvalidParameters
	ErrInvalidFlow        = core.ErrInvalidFlow
	ErrInvalidChunkSize   = core.ErrInvalidChunkSize
	ErrJobInstanceDone    = core.ErrJobInstanceDone
	ErrJobAlreadyRunning  = core.ErrJobAlreadyRunning
	ErrExecutionNotActive = core.ErrExecutionNotActive
	ErrStopped            = core.ErrStopped
)

// New creates a Launcher backed by repo.
func New(repo JobRepository, opts ...Option) *Launcher {
	return launcher.New(repo, opts...)
}

// OpenDB connects to driver at dsn with a pool suited to the driver.
func OpenDB(driver, dsn string, opts ...PoolOption) (*gorm.DB, error) {
	return storage.Open(driver, dsn, logger.Warn, opts...)
}

// NewGormRepository creates a GORM-backed job repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return storage.NewGormRepository(db)
}

// NewGormSource creates a source over model T filtered by query.
func NewGormSource[T any](db *gorm.DB, query QueryFunc) *GormSource[T] {
	return storage.NewGormSource[T](db, query)
}

// NewGormSink creates a transactional sink for model T.
func NewGormSink[T any](db *gorm.DB) *GormSink[T] {
	return storage.NewGormSink[T](db)
}

// NewFlow starts building a flow.
func NewFlow(name string) *FlowBuilder {
	return flow.New(name)
}

// NewTasklet creates a step that runs t once.
func NewTasklet(name string, t Tasklet) *TaskletStep {
	return step.NewTasklet(name, t)
}

// NewChunk creates a chunk step.
func NewChunk[I, O any](name string, size int, source Source[I], processor Processor[I, O], writer Writer[O], opts ...ChunkOption) *ChunkStep[I, O] {
	return step.NewChunk(name, size, source, processor, writer, opts...)
}

// NewAggregator creates a keyed aggregator.
func NewAggregator[R any, K comparable, A any](key func(R) K, init func(K) A, merge func(A, R) A) *Aggregator[R, K, A] {
	return aggregate.New(key, init, merge)
}

// NewAggregateStep creates a step that aggregates its whole source and
// writes the results once.
func NewAggregateStep[R any, K comparable, A any](name string, source Source[R], newAgg func() *Aggregator[R, K, A], writer Writer[A]) *AggregateStep[R, K, A] {
	return aggregate.NewStep(name, source, newAgg, writer)
}

// NewParameters creates a parameter set from raw key/value pairs.
func NewParameters(raw map[string]string) Parameters {
	return params.New(raw)
}

// ParseParameters parses "key=value" arguments.
func ParseParameters(args []string) (Parameters, error) {
	return params.Parse(args)
}

// WithLogger sets the launcher's structured logger.
func WithLogger(l *slog.Logger) Option {
	return launcher.WithLogger(l)
}

// WithRepositoryRetry overrides the bookkeeping retry policy.
func WithRepositoryRetry(rc RetryConfig) Option {
	return launcher.WithRepositoryRetry(rc)
}

// StatusOf maps a run error to the status it ends an execution with.
func StatusOf(err error) BatchStatus {
	return core.StatusOf(err)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific UTC time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific UTC day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// NewScheduler creates a scheduler that launches jobs through l.
func NewScheduler(l *Launcher, opts ...schedule.Option) *Scheduler {
	return schedule.NewScheduler(l, opts...)
}

// Context helpers

// JobExecutionFromContext returns the running job execution, or nil.
func JobExecutionFromContext(ctx context.Context) *JobExecution {
	return jobctx.JobExecutionFromContext(ctx)
}

// ParametersFromContext returns the running job's parameters.
func ParametersFromContext(ctx context.Context) Parameters {
	return jobctx.ParametersFromContext(ctx)
}

// StepExecutionFromContext returns the running step execution, or nil.
func StepExecutionFromContext(ctx context.Context) *StepExecution {
	return jobctx.StepExecutionFromContext(ctx)
}

// ChunkIndex returns the 1-based index of the running chunk, or 0.
func ChunkIndex(ctx context.Context) int {
	return jobctx.ChunkIndex(ctx)
}
