package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/jdziat/pass-batch/pkg/item"
	"github.com/jdziat/pass-batch/pkg/params"
)

// DefaultPageSize is how many rows a GormSource loads per round trip.
const DefaultPageSize = 100

// QueryFunc narrows a query over the source model using the job parameters.
// It may add Where and Order clauses. Without an Order clause records are
// served in primary key order.
type QueryFunc func(db *gorm.DB, p params.Parameters) (*gorm.DB, error)

// GormSource reads records of model T.
//
// Open runs the query once and keeps only the matching primary keys; rows
// are then loaded page by page by key. Rows that start matching after Open
// are never seen, and rows deleted after Open are skipped. T must have an
// integer primary key.
type GormSource[T any] struct {
	db       *gorm.DB
	query    QueryFunc
	pageSize int
}

// NewGormSource creates a source over T filtered by query.
func NewGormSource[T any](db *gorm.DB, query QueryFunc) *GormSource[T] {
	return &GormSource[T]{db: db, query: query, pageSize: DefaultPageSize}
}

// WithPageSize sets the number of rows loaded per round trip.
func (s *GormSource[T]) WithPageSize(n int) *GormSource[T] {
	if n > 0 {
		s.pageSize = n
	}
	return s
}

// Open snapshots the keys of every row matching the query.
func (s *GormSource[T]) Open(ctx context.Context, p params.Parameters) (item.Iterator[T], error) {
	pk, err := primaryKeyField[T](s.db)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(new(T))
	if s.query != nil {
		q, err = s.query(q, p)
		if err != nil {
			return nil, err
		}
	}
	if _, ordered := q.Statement.Clauses["ORDER BY"]; !ordered {
		q = q.Order(pk.DBName)
	}

	var keys []int64
	if err := q.Pluck(pk.DBName, &keys).Error; err != nil {
		return nil, fmt.Errorf("snapshot %s keys: %w", pk.Schema.Table, err)
	}

	return &gormIterator[T]{
		db:       s.db,
		pk:       pk,
		keys:     keys,
		pageSize: s.pageSize,
	}, nil
}

// Len returns how many rows matched when it was opened.
func (it *gormIterator[T]) Len() int {
	return len(it.keys)
}

type gormIterator[T any] struct {
	db       *gorm.DB
	pk       *schema.Field
	keys     []int64
	pageSize int
	next     int // index into keys of the next page to load
	buf      []T
	closed   bool
}

func (it *gormIterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.closed {
		return zero, false, errors.New("storage: iterator closed")
	}
	for len(it.buf) == 0 {
		if it.next >= len(it.keys) {
			return zero, false, nil
		}
		if err := it.loadPage(ctx); err != nil {
			return zero, false, err
		}
	}
	v := it.buf[0]
	it.buf = it.buf[1:]
	return v, true, nil
}

// loadPage fetches the next page of keys and restores snapshot order.
func (it *gormIterator[T]) loadPage(ctx context.Context) error {
	end := min(it.next+it.pageSize, len(it.keys))
	page := it.keys[it.next:end]
	it.next = end

	var rows []T
	if err := it.db.WithContext(ctx).Where(it.pk.DBName+" IN ?", page).Find(&rows).Error; err != nil {
		return err
	}

	byKey := make(map[int64]T, len(rows))
	for _, row := range rows {
		v, _ := it.pk.ValueOf(ctx, reflect.ValueOf(&row).Elem())
		k, ok := toInt64(v)
		if !ok {
			return fmt.Errorf("storage: primary key %s is not an integer", it.pk.Name)
		}
		byKey[k] = row
	}

	it.buf = it.buf[:0]
	for _, k := range page {
		if row, ok := byKey[k]; ok {
			it.buf = append(it.buf, row)
		}
	}
	return nil
}

func (it *gormIterator[T]) Close() error {
	it.closed = true
	it.buf = nil
	return nil
}

func primaryKeyField[T any](db *gorm.DB) (*schema.Field, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return nil, fmt.Errorf("storage: model %s has no primary key", stmt.Schema.Name)
	}
	return pk, nil
}

func toInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}
