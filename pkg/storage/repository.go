// Package storage provides storage implementations for the batch engine.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/core"
)

// GormRepository implements core.JobRepository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-backed job repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// DB returns the underlying connection.
func (s *GormRepository) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormRepository) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.JobInstance{}, &core.JobExecution{}, &core.StepExecution{})
}

// FindJobInstance looks up an instance by job name and identity key.
func (s *GormRepository) FindJobInstance(ctx context.Context, jobName, jobKey string) (*core.JobInstance, error) {
	var instance core.JobInstance
	err := s.db.WithContext(ctx).
		Where("job_name = ? AND job_key = ?", jobName, jobKey).
		First(&instance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// CreateJobInstance inserts an instance. It returns core.ErrJobInstanceExists
// when the name and key pair is already taken.
func (s *GormRepository) CreateJobInstance(ctx context.Context, instance *core.JobInstance) error {
	if instance.ID == "" {
		instance.ID = uuid.New().String()
	}
	err := s.db.WithContext(ctx).Create(instance).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return core.ErrJobInstanceExists
	}
	// Not every dialect translates constraint errors; check directly.
	existing, findErr := s.FindJobInstance(ctx, instance.JobName, instance.JobKey)
	if findErr == nil && existing != nil && existing.ID != instance.ID {
		return core.ErrJobInstanceExists
	}
	return err
}

// CreateJobExecution inserts an execution.
func (s *GormRepository) CreateJobExecution(ctx context.Context, exec *core.JobExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.Status == "" {
		exec.Status = core.StatusStarting
	}
	return s.db.WithContext(ctx).Create(exec).Error
}

// UpdateJobExecution writes every column of exec.
func (s *GormRepository) UpdateJobExecution(ctx context.Context, exec *core.JobExecution) error {
	result := s.db.WithContext(ctx).
		Model(exec).
		Select("*").
		Omit("created_at").
		Updates(exec)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrExecutionNotFound
	}
	return nil
}

// GetJobExecution retrieves an execution by ID.
func (s *GormRepository) GetJobExecution(ctx context.Context, id string) (*core.JobExecution, error) {
	var exec core.JobExecution
	err := s.db.WithContext(ctx).First(&exec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// LastJobExecution returns the most recently created execution of an instance.
func (s *GormRepository) LastJobExecution(ctx context.Context, instanceID string) (*core.JobExecution, error) {
	var exec core.JobExecution
	err := s.db.WithContext(ctx).
		Where("job_instance_id = ?", instanceID).
		Order("created_at DESC").
		First(&exec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// GetJobExecutionsByStatus retrieves executions with a given status, oldest first.
func (s *GormRepository) GetJobExecutionsByStatus(ctx context.Context, status core.BatchStatus, limit int) ([]*core.JobExecution, error) {
	var execs []*core.JobExecution
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&execs).Error
	return execs, err
}

// GetJobExecutions lists executions of jobName, newest first.
func (s *GormRepository) GetJobExecutions(ctx context.Context, jobName string, limit int) ([]*core.JobExecution, error) {
	var execs []*core.JobExecution
	err := s.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		Order("created_at DESC").
		Limit(limit).
		Find(&execs).Error
	return execs, err
}

// CreateStepExecution inserts a step execution.
func (s *GormRepository) CreateStepExecution(ctx context.Context, se *core.StepExecution) error {
	if se.ID == "" {
		se.ID = uuid.New().String()
	}
	if se.Status == "" {
		se.Status = core.StatusStarting
	}
	return s.db.WithContext(ctx).Create(se).Error
}

// UpdateStepExecution writes every column of se.
func (s *GormRepository) UpdateStepExecution(ctx context.Context, se *core.StepExecution) error {
	result := s.db.WithContext(ctx).
		Model(se).
		Select("*").
		Omit("created_at").
		Updates(se)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrExecutionNotFound
	}
	return nil
}

// GetStepExecutions lists the steps of a job execution in start order.
func (s *GormRepository) GetStepExecutions(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	var steps []*core.StepExecution
	err := s.db.WithContext(ctx).
		Where("job_execution_id = ?", jobExecutionID).
		Order("created_at ASC").
		Find(&steps).Error
	return steps, err
}

var _ core.JobRepository = (*GormRepository)(nil)
