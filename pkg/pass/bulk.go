package pass

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/flow"
	"github.com/jdziat/pass-batch/pkg/item"
	"github.com/jdziat/pass-batch/pkg/jobctx"
	"github.com/jdziat/pass-batch/pkg/launcher"
	"github.com/jdziat/pass-batch/pkg/step"
	"github.com/jdziat/pass-batch/pkg/storage"
)

// TemplateStore finds and completes bulk pass templates.
type TemplateStore interface {
	// Ready returns READY templates with from < started_at <= to, oldest first.
	Ready(ctx context.Context, from, to time.Time) ([]BulkPass, error)
	MarkCompleted(ctx context.Context, b *BulkPass) error
}

// GormTemplateStore reads templates from the bulk_passes table.
type GormTemplateStore struct {
	db *gorm.DB
}

// NewGormTemplateStore creates a template store over db.
func NewGormTemplateStore(db *gorm.DB) *GormTemplateStore {
	return &GormTemplateStore{db: db}
}

func (s *GormTemplateStore) Ready(ctx context.Context, from, to time.Time) ([]BulkPass, error) {
	var out []BulkPass
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at > ? AND started_at <= ?", BulkStatusReady, from, to).
		Order("started_at, bulk_pass_seq").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find ready bulk passes: %w", err)
	}
	return out, nil
}

func (s *GormTemplateStore) MarkCompleted(ctx context.Context, b *BulkPass) error {
	res := s.db.WithContext(ctx).
		Model(b).
		Update("status", BulkStatusCompleted)
	if res.Error != nil {
		return fmt.Errorf("complete bulk pass %d: %w", b.BulkPassSeq, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete bulk pass %d: %w", b.BulkPassSeq, gorm.ErrRecordNotFound)
	}
	return nil
}

// Expander turns bulk templates into individual passes.
type Expander struct {
	templates TemplateStore
	groups    GroupResolver
	passes    item.Writer[Pass]
	opts      options
}

// NewExpander creates an expander from its collaborators.
func NewExpander(templates TemplateStore, groups GroupResolver, passes item.Writer[Pass], opts ...Option) *Expander {
	return &Expander{templates: templates, groups: groups, passes: passes, opts: newOptions(opts)}
}

// Execute expands every template in the lookback window. Each template's
// passes go out in one write before the template is marked COMPLETED.
func (e *Expander) Execute(ctx context.Context) error {
	now := e.opts.now().UTC()
	from := now.Add(-e.opts.lookback)

	templates, err := e.templates.Ready(ctx, from, now)
	if err != nil {
		return err
	}

	se := jobctx.StepExecutionFromContext(ctx)
	total := 0
	for i := range templates {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := &templates[i]
		n, err := e.expand(ctx, b)
		if err != nil {
			return err
		}
		total += n
		if se != nil {
			se.ReadCount++
			se.WriteCount += n
			se.CommitCount++
		}
	}

	e.opts.logger.Info("bulk passes expanded",
		"templates", len(templates),
		"passes", total,
		"window_from", from,
		"window_to", now,
	)
	return nil
}

func (e *Expander) expand(ctx context.Context, b *BulkPass) (int, error) {
	members, err := e.groups.MembersOf(ctx, b.UserGroupID)
	if err != nil {
		return 0, err
	}

	passes := make([]Pass, 0, len(members))
	for _, userID := range members {
		passes = append(passes, b.ToPass(userID))
	}
	if err := e.passes.Write(ctx, passes); err != nil {
		return 0, fmt.Errorf("write passes for bulk pass %d: %w", b.BulkPassSeq, err)
	}
	if err := e.templates.MarkCompleted(ctx, b); err != nil {
		return 0, err
	}
	e.opts.logger.Debug("bulk pass expanded", "bulk_pass_seq", b.BulkPassSeq, "user_group_id", b.UserGroupID, "passes", len(passes))
	return len(passes), nil
}

// NewAddPassesStep builds the bulk expansion tasklet over db.
func NewAddPassesStep(db *gorm.DB, opts ...Option) *step.TaskletStep {
	e := NewExpander(NewGormTemplateStore(db), NewGormGroupResolver(db), storage.NewGormSink[Pass](db), opts...)
	return step.NewTasklet(AddPassesStepName, e)
}

// NewAddPassesJob builds addPassesJob.
func NewAddPassesJob(db *gorm.DB, opts ...Option) *launcher.Job {
	return &launcher.Job{
		Name: AddPassesJobName,
		Flow: flow.New(AddPassesJobName).
			Step(NewAddPassesStep(db, opts...)).
			MustBuild(),
	}
}
