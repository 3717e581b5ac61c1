package step

import (
	"context"
	"fmt"
	"time"

	"github.com/jdziat/pass-batch/pkg/core"
	intctx "github.com/jdziat/pass-batch/pkg/internal/context"
	"github.com/jdziat/pass-batch/pkg/item"
	"github.com/jdziat/pass-batch/pkg/jobctx"
	"github.com/jdziat/pass-batch/pkg/security"
)

// ChunkOption configures a ChunkStep.
type ChunkOption func(*chunkConfig)

type chunkConfig struct {
	now func() time.Time
}

// WithClock sets the clock used to stamp each chunk's start time.
func WithClock(now func() time.Time) ChunkOption {
	return func(c *chunkConfig) {
		c.now = now
	}
}

// ChunkStep reads up to size records, processes each, and writes the
// processed chunk as one batch, until the source is exhausted.
type ChunkStep[I, O any] struct {
	name      string
	size      int
	source    item.Source[I]
	processor item.Processor[I, O]
	writer    item.Writer[O]
	cfg       chunkConfig
}

// NewChunk creates a chunk step with a processor.
func NewChunk[I, O any](name string, size int, source item.Source[I], processor item.Processor[I, O], writer item.Writer[O], opts ...ChunkOption) *ChunkStep[I, O] {
	cfg := chunkConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ChunkStep[I, O]{
		name:      name,
		size:      size,
		source:    source,
		processor: processor,
		writer:    writer,
		cfg:       cfg,
	}
}

// NewPassThrough creates a chunk step that writes records as read.
func NewPassThrough[T any](name string, size int, source item.Source[T], writer item.Writer[T], opts ...ChunkOption) *ChunkStep[T, T] {
	return NewChunk(name, size, source, item.Identity[T](), writer, opts...)
}

func (s *ChunkStep[I, O]) Name() string { return s.name }

// ChunkSize returns the commit interval.
func (s *ChunkStep[I, O]) ChunkSize() int { return s.size }

func (s *ChunkStep[I, O]) Validate() error {
	if err := security.ValidateStepName(s.name); err != nil {
		return err
	}
	if err := security.ValidateChunkSize(s.size); err != nil {
		return fmt.Errorf("step %s: %w", s.name, err)
	}
	if s.source == nil || s.processor == nil || s.writer == nil {
		return fmt.Errorf("step %s: %w: reader, processor and writer are required", s.name, core.ErrInvalidFlow)
	}
	return nil
}

func (s *ChunkStep[I, O]) Execute(ctx context.Context, se *core.StepExecution) (err error) {
	if err := s.Validate(); err != nil {
		return err
	}
	ctx = intctx.WithStepExecution(ctx, se)

	it, err := s.source.Open(ctx, jobctx.ParametersFromContext(ctx))
	if err != nil {
		return &core.StepError{Step: s.name, Phase: core.PhaseOpen, Err: err}
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			err = &core.StepError{Step: s.name, Phase: core.PhaseRead, Err: cerr}
		}
	}()

	// A started chunk always runs to its write; stop requests are only
	// observed between chunks.
	chunkCtx := context.WithoutCancel(ctx)

	for chunk := 1; ; chunk++ {
		if ctx.Err() != nil {
			return &core.StepError{Step: s.name, Phase: core.PhaseRead, Chunk: chunk, Err: fmt.Errorf("%w: %w", core.ErrStopped, ctx.Err())}
		}

		n, done, err := s.runChunk(chunkCtx, it, se, chunk)
		if err != nil {
			se.RollbackCount++
			return err
		}
		if n > 0 {
			jobctx.Emit(ctx, &core.ChunkCommitted{
				StepExecutionID: se.ID,
				StepName:        s.name,
				Chunk:           chunk,
				Items:           n,
				Timestamp:       time.Now(),
			})
		}
		if done {
			return nil
		}
	}
}

// runChunk handles one read, process and write cycle. done is true once the
// source reported end of input.
func (s *ChunkStep[I, O]) runChunk(ctx context.Context, it item.Iterator[I], se *core.StepExecution, chunk int) (written int, done bool, err error) {
	ctx = intctx.WithChunkState(ctx, chunk, s.cfg.now())

	inputs := make([]I, 0, s.size)
	for len(inputs) < s.size {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return 0, false, &core.StepError{Step: s.name, Phase: core.PhaseRead, Chunk: chunk, Err: err}
		}
		if !ok {
			done = true
			break
		}
		inputs = append(inputs, v)
	}
	se.ReadCount += len(inputs)
	if len(inputs) == 0 {
		return 0, true, nil
	}

	outputs := make([]O, 0, len(inputs))
	for _, in := range inputs {
		out, err := s.processor.Process(ctx, in)
		if err != nil {
			return 0, false, &core.StepError{Step: s.name, Phase: core.PhaseProcess, Chunk: chunk, Err: err}
		}
		outputs = append(outputs, out)
	}

	if err := s.writer.Write(ctx, outputs); err != nil {
		return 0, false, &core.StepError{Step: s.name, Phase: core.PhaseWrite, Chunk: chunk, Err: err}
	}
	se.WriteCount += len(outputs)
	se.CommitCount++
	return len(outputs), done, nil
}
