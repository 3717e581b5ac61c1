// Package core provides the domain models and interfaces for the batch engine.
package core

import (
	"time"
)

// JobInstance identifies one logical run of a job: the job name plus the
// identity key derived from its parameters.
type JobInstance struct {
	ID         string    `gorm:"primaryKey;size:36"`
	JobName    string    `gorm:"uniqueIndex:idx_job_instances_name_key;size:255;not null"`
	JobKey     string    `gorm:"uniqueIndex:idx_job_instances_name_key;size:64;not null"`
	Parameters string    `gorm:"type:text"` // JSON encoded parameter set
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// JobExecution is a single attempt at running a JobInstance.
type JobExecution struct {
	ID            string      `gorm:"primaryKey;size:36"`
	JobInstanceID string      `gorm:"index;size:36;not null"`
	JobName       string      `gorm:"index;size:255;not null"`
	Status        BatchStatus `gorm:"index;size:20;default:'STARTING'"`
	ExitMessage   string      `gorm:"type:text"`
	Parameters    string      `gorm:"type:text"`
	StartedAt     *time.Time
	EndedAt       *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`

	// Failure holds the error that ended the execution. It is not persisted;
	// ExitMessage carries the sanitized text.
	Failure error `gorm:"-"`
}

// StepExecution records one run of a step inside a JobExecution.
type StepExecution struct {
	ID             string      `gorm:"primaryKey;size:36"`
	JobExecutionID string      `gorm:"index;size:36;not null"`
	StepName       string      `gorm:"size:255;not null"`
	Status         BatchStatus `gorm:"index;size:20;default:'STARTING'"`
	ReadCount      int         `gorm:"default:0"`
	WriteCount     int         `gorm:"default:0"`
	CommitCount    int         `gorm:"default:0"`
	RollbackCount  int         `gorm:"default:0"`
	ExitMessage    string      `gorm:"type:text"`
	StartedAt      *time.Time
	EndedAt        *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}
