package step

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/jdziat/pass-batch/pkg/core"
	intctx "github.com/jdziat/pass-batch/pkg/internal/context"
	"github.com/jdziat/pass-batch/pkg/item"
	"github.com/jdziat/pass-batch/pkg/jobctx"
	"github.com/jdziat/pass-batch/pkg/params"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// ----------------------------------------------------------------------------
// Chunk step
// ----------------------------------------------------------------------------

func TestChunk_TwelveItemsSizeFive(t *testing.T) {
	w := &item.ListWriter[int]{}
	s := NewPassThrough("copyStep", 5, &item.SliceSource[int]{Items: seq(12)}, w)

	se := &core.StepExecution{}
	require.NoError(t, s.Execute(context.Background(), se))

	batches := w.Batches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 5)
	assert.Len(t, batches[2], 2)
	assert.Equal(t, seq(12), w.Items())

	assert.Equal(t, 12, se.ReadCount)
	assert.Equal(t, 12, se.WriteCount)
	assert.Equal(t, 3, se.CommitCount)
	assert.Equal(t, 0, se.RollbackCount)
}

func TestChunk_EmptySourceWritesNothing(t *testing.T) {
	writes := 0
	w := item.WriterFunc[int](func(context.Context, []int) error {
		writes++
		return nil
	})
	s := NewPassThrough("emptyStep", 5, &item.SliceSource[int]{}, w)

	se := &core.StepExecution{}
	require.NoError(t, s.Execute(context.Background(), se))
	assert.Equal(t, 0, writes)
	assert.Equal(t, 0, se.CommitCount)
}

func TestChunk_ExactMultiple(t *testing.T) {
	w := &item.ListWriter[int]{}
	s := NewPassThrough("exactStep", 5, &item.SliceSource[int]{Items: seq(10)}, w)

	require.NoError(t, s.Execute(context.Background(), &core.StepExecution{}))
	assert.Len(t, w.Batches(), 2)
}

func TestChunk_WriteCountProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "chunkSize")
		m := rapid.IntRange(0, 200).Draw(t, "records")

		w := &item.ListWriter[int]{}
		s := NewPassThrough("propStep", n, &item.SliceSource[int]{Items: seq(m)}, w)
		if err := s.Execute(context.Background(), &core.StepExecution{}); err != nil {
			t.Fatalf("execute: %v", err)
		}

		batches := w.Batches()
		want := (m + n - 1) / n
		if len(batches) != want {
			t.Fatalf("got %d writes, want %d", len(batches), want)
		}
		total := 0
		for _, b := range batches {
			if len(b) > n || len(b) == 0 {
				t.Fatalf("batch of size %d with chunk size %d", len(b), n)
			}
			total += len(b)
		}
		if total != m {
			t.Fatalf("committed %d records, want %d", total, m)
		}
	})
}

func TestChunk_ProcessorTransforms(t *testing.T) {
	w := &item.ListWriter[string]{}
	proc := item.ProcessorFunc[int, string](func(_ context.Context, in int) (string, error) {
		return string(rune('a' + in - 1)), nil
	})
	s := NewChunk("letters", 2, &item.SliceSource[int]{Items: seq(3)}, proc, w)

	require.NoError(t, s.Execute(context.Background(), &core.StepExecution{}))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, w.Batches())
}

func TestChunk_WriteFailureStopsLoop(t *testing.T) {
	boom := errors.New("constraint violation")
	var committed [][]int
	calls := 0
	w := item.WriterFunc[int](func(_ context.Context, items []int) error {
		calls++
		if calls == 2 {
			return boom
		}
		committed = append(committed, append([]int(nil), items...))
		return nil
	})
	s := NewPassThrough("failingWrite", 5, &item.SliceSource[int]{Items: seq(12)}, w)

	se := &core.StepExecution{}
	err := s.Execute(context.Background(), se)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var stepErr *core.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, core.PhaseWrite, stepErr.Phase)
	assert.Equal(t, 2, stepErr.Chunk)

	// First chunk stays committed, no third chunk attempted
	assert.Equal(t, 2, calls)
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, committed)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 5, se.WriteCount)
	assert.Equal(t, core.StatusFailed, core.StatusOf(err))
}

func TestChunk_ProcessFailureSkipsWrite(t *testing.T) {
	bad := errors.New("bad record")
	proc := item.ProcessorFunc[int, int](func(_ context.Context, in int) (int, error) {
		if in == 3 {
			return 0, bad
		}
		return in, nil
	})
	w := &item.ListWriter[int]{}
	s := NewChunk("failingProcess", 5, &item.SliceSource[int]{Items: seq(6)}, proc, w)

	err := s.Execute(context.Background(), &core.StepExecution{})
	assert.ErrorIs(t, err, bad)
	assert.Empty(t, w.Batches())
}

type failingSource struct {
	openErr error
	readErr error
	after   int
	closed  bool
}

func (f *failingSource) Open(context.Context, params.Parameters) (item.Iterator[int], error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f, nil
}

func (f *failingSource) Next(context.Context) (int, bool, error) {
	if f.after == 0 {
		return 0, false, f.readErr
	}
	f.after--
	return 1, true, nil
}

func (f *failingSource) Close() error {
	f.closed = true
	return nil
}

func TestChunk_SourceErrors(t *testing.T) {
	t.Run("open failure", func(t *testing.T) {
		openErr := errors.New("no such table")
		s := NewPassThrough("openFails", 5, &failingSource{openErr: openErr}, &item.ListWriter[int]{})

		err := s.Execute(context.Background(), &core.StepExecution{})
		var stepErr *core.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, core.PhaseOpen, stepErr.Phase)
		assert.ErrorIs(t, err, openErr)
	})

	t.Run("read failure keeps earlier chunks", func(t *testing.T) {
		readErr := errors.New("cursor lost")
		src := &failingSource{readErr: readErr, after: 7}
		w := &item.ListWriter[int]{}
		s := NewPassThrough("readFails", 5, src, w)

		err := s.Execute(context.Background(), &core.StepExecution{})
		assert.ErrorIs(t, err, readErr)
		assert.Len(t, w.Batches(), 1)
		assert.True(t, src.closed)
	})
}

func TestChunk_StopsBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := item.WriterFunc[int](func(context.Context, []int) error {
		cancel()
		return nil
	})
	s := NewPassThrough("stoppable", 2, &item.SliceSource[int]{Items: seq(10)}, w)

	se := &core.StepExecution{}
	err := s.Execute(ctx, se)
	assert.ErrorIs(t, err, core.ErrStopped)
	assert.Equal(t, core.StatusStopped, core.StatusOf(err))
	assert.Equal(t, 1, se.CommitCount)
}

func TestChunk_StopMidChunkStillWritesChunk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := item.ProcessorFunc[int, int](func(_ context.Context, in int) (int, error) {
		if in == 1 {
			cancel()
		}
		return in, nil
	})
	var written []int
	w := item.WriterFunc[int](func(ctx context.Context, items []int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		written = append(written, items...)
		return nil
	})
	s := NewChunk("stopMidChunk", 5, &item.SliceSource[int]{Items: seq(10)}, proc, w)

	se := &core.StepExecution{}
	err := s.Execute(ctx, se)
	assert.ErrorIs(t, err, core.ErrStopped)
	assert.Equal(t, seq(5), written)
	assert.Equal(t, 1, se.CommitCount)
	assert.Equal(t, 5, se.WriteCount)
	assert.Zero(t, se.RollbackCount)
}

func TestChunk_ChunkContext(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	var mu sync.Mutex
	seen := map[int]map[time.Time]bool{}
	proc := item.ProcessorFunc[int, int](func(ctx context.Context, in int) (int, error) {
		at, ok := jobctx.ChunkStartedAt(ctx)
		require.True(t, ok)
		mu.Lock()
		idx := jobctx.ChunkIndex(ctx)
		if seen[idx] == nil {
			seen[idx] = map[time.Time]bool{}
		}
		seen[idx][at] = true
		mu.Unlock()
		return in, nil
	})
	s := NewChunk("stamped", 2, &item.SliceSource[int]{Items: seq(5)}, proc, &item.ListWriter[int]{}, WithClock(now))

	require.NoError(t, s.Execute(context.Background(), &core.StepExecution{}))

	// Each chunk sees a single timestamp, distinct from the others
	require.Len(t, seen, 3)
	for idx, stamps := range seen {
		assert.Len(t, stamps, 1, "chunk %d", idx)
	}
}

func TestChunk_EmitsChunkCommitted(t *testing.T) {
	var events []core.Event
	ctx := intctx.WithJobContext(context.Background(), &intctx.JobContext{
		Emit: func(e core.Event) { events = append(events, e) },
	})
	s := NewPassThrough("emitting", 5, &item.SliceSource[int]{Items: seq(7)}, &item.ListWriter[int]{})

	require.NoError(t, s.Execute(ctx, &core.StepExecution{ID: "se-1"}))
	require.Len(t, events, 2)
	last := events[1].(*core.ChunkCommitted)
	assert.Equal(t, 2, last.Chunk)
	assert.Equal(t, 2, last.Items)
	assert.Equal(t, "se-1", last.StepExecutionID)
}

func TestChunk_Validate(t *testing.T) {
	src := &item.SliceSource[int]{}
	w := &item.ListWriter[int]{}

	assert.NoError(t, NewPassThrough("ok", 1, src, w).Validate())
	assert.ErrorIs(t, NewPassThrough("zero", 0, src, w).Validate(), core.ErrInvalidChunkSize)
	assert.ErrorIs(t, NewPassThrough("bad name", 1, src, w).Validate(), core.ErrInvalidStepName)
	assert.ErrorIs(t, NewPassThrough[int]("noWriter", 1, src, nil).Validate(), core.ErrInvalidFlow)

	err := NewPassThrough("zero", 0, src, w).Execute(context.Background(), &core.StepExecution{})
	assert.ErrorIs(t, err, core.ErrInvalidChunkSize)
}

// ----------------------------------------------------------------------------
// Tasklet step
// ----------------------------------------------------------------------------

func TestTasklet_RunsOnce(t *testing.T) {
	calls := 0
	s := NewTasklet("once", TaskletFunc(func(ctx context.Context) error {
		calls++
		assert.NotNil(t, jobctx.StepExecutionFromContext(ctx))
		return nil
	}))

	require.NoError(t, s.Validate())
	require.NoError(t, s.Execute(context.Background(), &core.StepExecution{}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "once", s.Name())
}

func TestTasklet_ErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	s := NewTasklet("fails", TaskletFunc(func(context.Context) error { return boom }))

	err := s.Execute(context.Background(), &core.StepExecution{})
	var stepErr *core.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, core.PhaseTasklet, stepErr.Phase)
	assert.ErrorIs(t, err, boom)
}

func TestTasklet_Validate(t *testing.T) {
	assert.ErrorIs(t, NewTasklet("nil", nil).Validate(), core.ErrInvalidFlow)
	assert.ErrorIs(t, NewTasklet("", TaskletFunc(func(context.Context) error { return nil })).Validate(), core.ErrInvalidStepName)
}
