// Package step provides the two kinds of step a flow executes.
//
// A TaskletStep runs one callable exactly once. A ChunkStep drives a
// read, process and write loop over an item.Source and item.Writer with a
// fixed chunk size; each chunk is handed to the writer as one batch and a
// rejected batch ends the step without attempting further chunks.
//
// Steps record read, write, commit and rollback counts on the
// core.StepExecution passed to Execute. Persisting that record is the
// caller's job.
package step
