// Package storage provides GORM-backed persistence for the batch engine.
//
// This package includes:
//   - GormRepository: job instance and execution bookkeeping
//   - GormSource: a chunk step reader over any GORM model
//   - GormSink: a chunk step writer that saves each batch in one transaction
//   - Open and pool configuration for SQLite and PostgreSQL
//
// The JobRepository interface is defined in pkg/core and may be
// implemented by any custom backend.
package storage
