package storage

import (
	"context"

	"gorm.io/gorm"
)

// GormSink saves each batch inside a single transaction, inserting rows
// with a zero primary key and updating the rest. A failed batch leaves no
// rows behind.
type GormSink[T any] struct {
	db *gorm.DB
}

// NewGormSink creates a sink for model T.
func NewGormSink[T any](db *gorm.DB) *GormSink[T] {
	return &GormSink[T]{db: db}
}

func (s *GormSink[T]) Write(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			if err := tx.Save(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
