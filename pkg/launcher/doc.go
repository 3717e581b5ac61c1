// Package launcher runs registered jobs.
//
// This package includes:
//   - Launcher: job registry, Run and Stop
//   - Job: a named flow with a declared parameter set
//   - Hooks and an event stream for execution lifecycle
//   - Instance identity: a job name plus its parameter digest
//
// Most users should import the root package github.com/jdziat/pass-batch
// which re-exports these types.
package launcher
