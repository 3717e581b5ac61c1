package core

import (
	"context"
)

// JobRepository persists the bookkeeping of job instances and executions.
// Lookups return (nil, nil) when nothing matches.
type JobRepository interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Instances
	FindJobInstance(ctx context.Context, jobName, jobKey string) (*JobInstance, error)
	CreateJobInstance(ctx context.Context, instance *JobInstance) error

	// Job executions
	CreateJobExecution(ctx context.Context, exec *JobExecution) error
	UpdateJobExecution(ctx context.Context, exec *JobExecution) error
	GetJobExecution(ctx context.Context, id string) (*JobExecution, error)
	LastJobExecution(ctx context.Context, instanceID string) (*JobExecution, error)
	GetJobExecutionsByStatus(ctx context.Context, status BatchStatus, limit int) ([]*JobExecution, error)
	// GetJobExecutions lists executions of jobName, newest first.
	GetJobExecutions(ctx context.Context, jobName string, limit int) ([]*JobExecution, error)

	// Step executions
	CreateStepExecution(ctx context.Context, exec *StepExecution) error
	UpdateStepExecution(ctx context.Context, exec *StepExecution) error
	GetStepExecutions(ctx context.Context, jobExecutionID string) ([]*StepExecution, error)
}
