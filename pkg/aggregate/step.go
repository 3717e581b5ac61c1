package aggregate

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

// Step reads its whole source into a fresh Aggregator and hands the
// results to the writer as one batch once input is exhausted.
type Step[R any, K comparable, A any] struct {
	name   string
	source item.Source[R]
	newAgg func() *Aggregator[R, K, A]
	writer item.Writer[A]
}

// NewStep creates an aggregation step. newAgg is called once per execution
// so reruns never see accumulators from an earlier attempt.
func NewStep[R any, K comparable, A any](name string, source item.Source[R], newAgg func() *Aggregator[R, K, A], writer item.Writer[A]) *Step[R, K, A] {
	return &Step[R, K, A]{name: name, source: source, newAgg: newAgg, writer: writer}
}

func (s *Step[R, K, A]) Name() string { return s.name }

func (s *Step[R, K, A]) Validate() error {
	if err := security.ValidateStepName(s.name); err != nil {
		return err
	}
	if s.source == nil || s.newAgg == nil || s.writer == nil {
		return fmt.Errorf("step %s: %w: source, aggregator and writer are required", s.name, core.ErrInvalidFlow)
	}
	return nil
}

func (s *Step[R, K, A]) Execute(ctx context.Context, se *core.StepExecution) (err error) {
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

	agg := s.newAgg()
	for {
		if ctx.Err() != nil {
			return &core.StepError{Step: s.name, Phase: core.PhaseRead, Err: fmt.Errorf("%w: %w", core.ErrStopped, ctx.Err())}
		}
		r, ok, err := it.Next(ctx)
		if err != nil {
			return &core.StepError{Step: s.name, Phase: core.PhaseRead, Err: err}
		}
		if !ok {
			break
		}
		se.ReadCount++
		agg.Add(r)
	}

	results := agg.Results()
	if len(results) == 0 {
		return nil
	}
	if err := s.writer.Write(ctx, results); err != nil {
		se.RollbackCount++
		return &core.StepError{Step: s.name, Phase: core.PhaseWrite, Err: err}
	}
	se.WriteCount += len(results)
	se.CommitCount++
	jobctx.Emit(ctx, &core.ChunkCommitted{
		StepExecutionID: se.ID,
		StepName:        s.name,
		Chunk:           1,
		Items:           len(results),
		Timestamp:       time.Now(),
	})
	return nil
}
