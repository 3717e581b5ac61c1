// Package security provides validation, sanitization, and limits for the batch engine.
//
// This package includes:
//   - Input validation for job names, step names and trigger parameters
//   - Exit message sanitization before executions are persisted
//   - Chunk size bounds
//
// Most users should import the root package github.com/jdziat/pass-batch
// which re-exports these functions.
package security
