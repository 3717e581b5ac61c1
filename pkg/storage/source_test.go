package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/item"
	"github.com/jdziat/pass-batch/pkg/params"
	"github.com/jdziat/pass-batch/pkg/step"
)

func dueBefore(db *gorm.DB, p params.Parameters) (*gorm.DB, error) {
	cutoff, err := p.Time("cutoff")
	if err != nil {
		return nil, err
	}
	return db.Where("status = ? AND due_at <= ?", "ACTIVE", cutoff), nil
}

func readAll[T any](t *testing.T, it item.Iterator[T]) []T {
	t.Helper()
	var out []T
	for {
		v, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func widgetsDue(n int, base time.Time) []widget {
	out := make([]widget, n)
	for i := range out {
		out[i] = widget{Name: fmt.Sprintf("w%02d", i), Status: "ACTIVE", DueAt: base.Add(time.Duration(i) * time.Hour)}
	}
	return out
}

// ----------------------------------------------------------------------------
// GormSource
// ----------------------------------------------------------------------------

func TestGormSource_FiltersAndPages(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ws := widgetsDue(10, base)
	ws[3].Status = "EXPIRED"
	seedWidgets(t, db, ws...)

	src := NewGormSource[widget](db, dueBefore).WithPageSize(3)
	p := params.New(map[string]string{"cutoff": "2024-01-01 06:00"})

	it, err := src.Open(context.Background(), p)
	require.NoError(t, err)
	defer it.Close()

	got := readAll(t, it)
	var names []string
	for _, w := range got {
		names = append(names, w.Name)
	}
	// w00..w06 are due, w03 is not active
	assert.Equal(t, []string{"w00", "w01", "w02", "w04", "w05", "w06"}, names)
}

func TestGormSource_PredicateFixedAtOpen(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedWidgets(t, db, widgetsDue(4, base)...)

	src := NewGormSource[widget](db, dueBefore).WithPageSize(2)
	it, err := src.Open(context.Background(), params.New(map[string]string{"cutoff": "2024-01-02 00:00"}))
	require.NoError(t, err)

	// A row that qualifies after open is not picked up
	require.NoError(t, db.Create(&widget{Name: "late", Status: "ACTIVE", DueAt: base}).Error)
	// A row deleted after open is skipped
	require.NoError(t, db.Where("name = ?", "w03").Delete(&widget{}).Error)

	got := readAll(t, it)
	require.Len(t, got, 3)
	for _, w := range got {
		assert.NotEqual(t, "late", w.Name)
	}
}

func TestGormSource_RespectsQueryOrder(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedWidgets(t, db, widgetsDue(5, base)...)

	src := NewGormSource[widget](db, func(db *gorm.DB, _ params.Parameters) (*gorm.DB, error) {
		return db.Order("due_at DESC"), nil
	}).WithPageSize(2)

	it, err := src.Open(context.Background(), params.New(nil))
	require.NoError(t, err)

	got := readAll(t, it)
	require.Len(t, got, 5)
	assert.Equal(t, "w04", got[0].Name)
	assert.Equal(t, "w00", got[4].Name)
}

func TestGormSource_QueryError(t *testing.T) {
	db := openTestDB(t)
	seedWidgets(t, db)

	src := NewGormSource[widget](db, dueBefore)
	_, err := src.Open(context.Background(), params.New(nil))
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
}

func TestGormSource_ClosedIterator(t *testing.T) {
	db := openTestDB(t)
	seedWidgets(t, db, widgetsDue(1, time.Now().UTC())...)

	it, err := NewGormSource[widget](db, nil).Open(context.Background(), params.New(nil))
	require.NoError(t, err)
	require.NoError(t, it.Close())

	_, _, err = it.Next(context.Background())
	assert.Error(t, err)
}

// ----------------------------------------------------------------------------
// GormSink
// ----------------------------------------------------------------------------

func TestGormSink_InsertsAndUpdates(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedWidgets(t, db, widget{Name: "existing", Status: "ACTIVE", DueAt: time.Now().UTC()})

	var existing widget
	require.NoError(t, db.First(&existing, "name = ?", "existing").Error)
	existing.Status = "EXPIRED"

	sink := NewGormSink[widget](db)
	require.NoError(t, sink.Write(ctx, []widget{existing, {Name: "new", Status: "ACTIVE", DueAt: time.Now().UTC()}}))

	var count int64
	require.NoError(t, db.Model(&widget{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var reloaded widget
	require.NoError(t, db.First(&reloaded, existing.ID).Error)
	assert.Equal(t, "EXPIRED", reloaded.Status)

	assert.NoError(t, sink.Write(ctx, nil))
}

func TestGormSink_BatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedWidgets(t, db, widget{Name: "taken", Status: "ACTIVE", DueAt: time.Now().UTC()})

	sink := NewGormSink[widget](db)
	err := sink.Write(ctx, []widget{
		{Name: "fresh-1", Status: "ACTIVE"},
		{Name: "taken", Status: "ACTIVE"}, // violates the unique name index
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&widget{}).Where("name = ?", "fresh-1").Count(&count).Error)
	assert.Zero(t, count)
}

// ----------------------------------------------------------------------------
// Chunk step over GORM
// ----------------------------------------------------------------------------

func TestChunkStep_OverGorm(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedWidgets(t, db, widgetsDue(12, base)...)

	expire := item.ProcessorFunc[widget, widget](func(_ context.Context, w widget) (widget, error) {
		w.Status = "EXPIRED"
		w.Version++
		return w, nil
	})

	var sizes []int
	sink := NewGormSink[widget](db)
	writer := item.WriterFunc[widget](func(ctx context.Context, ws []widget) error {
		sizes = append(sizes, len(ws))
		return sink.Write(ctx, ws)
	})

	s := step.NewChunk("expireWidgets", 5, NewGormSource[widget](db, func(db *gorm.DB, _ params.Parameters) (*gorm.DB, error) {
		return db.Where("status = ?", "ACTIVE"), nil
	}), expire, writer)

	se := &core.StepExecution{}
	require.NoError(t, s.Execute(ctx, se))
	assert.Equal(t, []int{5, 5, 2}, sizes)

	var active int64
	require.NoError(t, db.Model(&widget{}).Where("status = ?", "ACTIVE").Count(&active).Error)
	assert.Zero(t, active)
	assert.Equal(t, 12, se.WriteCount)
}

func TestChunkStep_OverGorm_WriteFailureKeepsEarlierChunks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedWidgets(t, db, widgetsDue(12, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))...)

	sink := NewGormSink[widget](db)
	calls := 0
	writer := item.WriterFunc[widget](func(ctx context.Context, ws []widget) error {
		calls++
		if calls == 2 {
			return errors.New("disk full")
		}
		return sink.Write(ctx, ws)
	})
	expire := item.ProcessorFunc[widget, widget](func(_ context.Context, w widget) (widget, error) {
		w.Status = "EXPIRED"
		return w, nil
	})

	s := step.NewChunk("expireWidgets", 5, NewGormSource[widget](db, nil), expire, writer)
	require.Error(t, s.Execute(ctx, &core.StepExecution{}))

	var expired int64
	require.NoError(t, db.Model(&widget{}).Where("status = ?", "EXPIRED").Count(&expired).Error)
	assert.Equal(t, int64(5), expired)
}
