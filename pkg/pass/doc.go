// Package pass holds the pass domain and its two batch jobs.
//
// expirePassesJob sweeps passes whose period has ended and marks them
// EXPIRED, one chunk at a time. addPassesJob expands bulk pass templates
// into one pass per member of the template's user group.
//
// Bulk expansion writes a template's passes and then marks the template
// COMPLETED as two separate writes. A run that fails between them leaves
// the template READY, and the next run expands it again, duplicating the
// passes already written.
package pass
