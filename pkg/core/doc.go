// Package core provides the fundamental types and interfaces for the batch engine.
//
// This package contains:
//   - JobInstance, JobExecution and StepExecution models with GORM annotations
//   - BatchStatus and the worst-status ordering used when joining flows
//   - JobRepository interface defining the bookkeeping persistence contract
//   - Event types for execution monitoring
//   - Error types for configuration, step and stop failures
//
// Most users should import the root package github.com/jdziat/pass-batch
// instead of this package directly.
package core
