// Package item defines the reader, processor and writer contracts a chunk
// step drives, plus small in-memory implementations.
package item

import (
	"context"
	"sync"

	"github.com/jdziat/pass-batch/pkg/params"
)

// Source opens a forward-only sequence of records. The predicate is fixed
// when Open returns; records that start qualifying later are not seen.
type Source[T any] interface {
	Open(ctx context.Context, p params.Parameters) (Iterator[T], error)
}

// Iterator yields records until ok is false. It is not restartable.
type Iterator[T any] interface {
	Next(ctx context.Context) (item T, ok bool, err error)
	Close() error
}

// Processor transforms one record.
type Processor[I, O any] interface {
	Process(ctx context.Context, in I) (O, error)
}

// Writer persists a batch. A returned error means nothing in the batch was
// persisted.
type Writer[T any] interface {
	Write(ctx context.Context, items []T) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc[I, O any] func(ctx context.Context, in I) (O, error)

func (f ProcessorFunc[I, O]) Process(ctx context.Context, in I) (O, error) {
	return f(ctx, in)
}

// WriterFunc adapts a function to Writer.
type WriterFunc[T any] func(ctx context.Context, items []T) error

func (f WriterFunc[T]) Write(ctx context.Context, items []T) error {
	return f(ctx, items)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, p params.Parameters) (Iterator[T], error)

func (f SourceFunc[T]) Open(ctx context.Context, p params.Parameters) (Iterator[T], error) {
	return f(ctx, p)
}

// Identity returns a processor that passes records through unchanged.
func Identity[T any]() Processor[T, T] {
	return ProcessorFunc[T, T](func(_ context.Context, in T) (T, error) {
		return in, nil
	})
}

// SliceSource serves a fixed slice. Each Open starts from the beginning.
type SliceSource[T any] struct {
	Items []T
}

func (s *SliceSource[T]) Open(context.Context, params.Parameters) (Iterator[T], error) {
	items := make([]T, len(s.Items))
	copy(items, s.Items)
	return &sliceIterator[T]{items: items}, nil
}

type sliceIterator[T any] struct {
	items []T
	pos   int
}

func (it *sliceIterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if it.pos >= len(it.items) {
		return zero, false, nil
	}
	v := it.items[it.pos]
	it.pos++
	return v, true, nil
}

func (it *sliceIterator[T]) Close() error { return nil }

// ListWriter keeps every written batch in memory.
type ListWriter[T any] struct {
	mu      sync.Mutex
	batches [][]T
}

func (w *ListWriter[T]) Write(_ context.Context, items []T) error {
	batch := make([]T, len(items))
	copy(batch, items)
	w.mu.Lock()
	w.batches = append(w.batches, batch)
	w.mu.Unlock()
	return nil
}

// Batches returns a copy of the batches written so far.
func (w *ListWriter[T]) Batches() [][]T {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]T, len(w.batches))
	copy(out, w.batches)
	return out
}

// Items returns every written record in write order.
func (w *ListWriter[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []T
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}
