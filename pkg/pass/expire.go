package pass

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/flow"
	"github.com/jdziat/pass-batch/pkg/item"
	"github.com/jdziat/pass-batch/pkg/jobctx"
	"github.com/jdziat/pass-batch/pkg/launcher"
	"github.com/jdziat/pass-batch/pkg/params"
	"github.com/jdziat/pass-batch/pkg/step"
	"github.com/jdziat/pass-batch/pkg/storage"
)

// ExpiredSource reads PROGRESSED passes whose period ended at or before
// the moment the source is opened.
func ExpiredSource(db *gorm.DB, now func() time.Time) *storage.GormSource[Pass] {
	return storage.NewGormSource[Pass](db, func(q *gorm.DB, _ params.Parameters) (*gorm.DB, error) {
		return q.Where("status = ? AND ended_at <= ?", StatusProgressed, now().UTC()), nil
	})
}

// Expire marks a pass EXPIRED as of the current chunk's start time.
func Expire(now func() time.Time) item.ProcessorFunc[Pass, Pass] {
	return func(ctx context.Context, p Pass) (Pass, error) {
		at, ok := jobctx.ChunkStartedAt(ctx)
		if !ok {
			at = now()
		}
		p.Status = StatusExpired
		p.ExpiredAt = &at
		return p, nil
	}
}

// NewExpirePassesStep builds the chunked expiration sweep.
func NewExpirePassesStep(db *gorm.DB, opts ...Option) *step.ChunkStep[Pass, Pass] {
	o := newOptions(opts)
	return step.NewChunk[Pass, Pass](
		ExpirePassesStepName,
		o.chunkSize,
		ExpiredSource(db, o.now),
		Expire(o.now),
		storage.NewGormSink[Pass](db),
		step.WithClock(o.now),
	)
}

// NewExpirePassesJob builds expirePassesJob.
func NewExpirePassesJob(db *gorm.DB, opts ...Option) *launcher.Job {
	return &launcher.Job{
		Name: ExpirePassesJobName,
		Flow: flow.New(ExpirePassesJobName).
			Step(NewExpirePassesStep(db, opts...)).
			MustBuild(),
	}
}
