package statistics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/aggregate"
	"github.com/jdziat/pass-batch/pkg/flow"
	"github.com/jdziat/pass-batch/pkg/jobctx"
	"github.com/jdziat/pass-batch/pkg/launcher"
	"github.com/jdziat/pass-batch/pkg/params"
	"github.com/jdziat/pass-batch/pkg/report"
	"github.com/jdziat/pass-batch/pkg/step"
	"github.com/jdziat/pass-batch/pkg/storage"
)

// Job, flow and step names.
const (
	JobName = "makeStatisticsJob"

	AddStatisticsFlowName        = "addStatisticsFlow"
	AddStatisticsStepName        = "addStatisticsStep"
	ParallelStatisticsFlowName   = "parallelMakeStatisticsFlow"
	MakeDailyStatisticsFlowName  = "makeDailyStatisticsFlow"
	MakeDailyStatisticsStepName  = "makeDailyStatisticsStep"
	MakeWeeklyStatisticsFlowName = "makeWeeklyStatisticsFlow"
	MakeWeeklyStatisticsStepName = "makeWeeklyStatisticsStep"
)

const (
	DailyReportKind  = "daily_statistics"
	WeeklyReportKind = "weekly_statistics"
	DefaultChunkSize = 10

	ParamFrom = "from"
	ParamTo   = "to"
)

// Parameters declares the window parameters of makeStatisticsJob.
var Parameters = params.Spec{
	{Key: ParamFrom, Type: params.TypeDateTime, Required: true},
	{Key: ParamTo, Type: params.TypeDateTime, Required: true},
}

// ReportHeader is the column row of both CSV reports.
var ReportHeader = []string{"statistics_at", "all_count", "attended_count", "cancelled_count"}

// Option configures makeStatisticsJob.
type Option func(*options)

type options struct {
	chunkSize int
	logger    *slog.Logger
}

// WithChunkSize sets how many bookings are loaded per round trip.
func WithChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Window reads the from and to parameters. The window is half-open,
// [from, to), so back-to-back windows never share an instant.
func Window(p params.Parameters) (from, to time.Time, err error) {
	if from, err = p.Time(ParamFrom); err != nil {
		return
	}
	if to, err = p.Time(ParamTo); err != nil {
		return
	}
	if to.Before(from) {
		err = &params.Error{Key: ParamTo, Reason: fmt.Sprintf("before %s", ParamFrom)}
	}
	return
}

// BookingSource reads bookings that ended inside the job's window.
func BookingSource(db *gorm.DB, pageSize int) *storage.GormSource[Booking] {
	return storage.NewGormSource[Booking](db, func(q *gorm.DB, p params.Parameters) (*gorm.DB, error) {
		from, to, err := Window(p)
		if err != nil {
			return nil, err
		}
		return q.Where("ended_at >= ? AND ended_at < ?", from, to), nil
	}).WithPageSize(pageSize)
}

// NewDailyAggregator buckets bookings into one Statistics row per day.
func NewDailyAggregator() *aggregate.Aggregator[Booking, time.Time, Statistics] {
	return aggregate.New(
		Booking.StatisticsAt,
		func(day time.Time) Statistics { return Statistics{StatisticsAt: day} },
		Statistics.Add,
	)
}

// NewAddStatisticsStep builds the booking aggregation step.
func NewAddStatisticsStep(db *gorm.DB, chunkSize int) *aggregate.Step[Booking, time.Time, Statistics] {
	return aggregate.NewStep(
		AddStatisticsStepName,
		BookingSource(db, chunkSize),
		NewDailyAggregator,
		storage.NewGormSink[Statistics](db),
	)
}

// ReportTasklet re-buckets the window's Statistics rows and writes them as
// one CSV report.
type ReportTasklet struct {
	db     *gorm.DB
	kind   string
	bucket func(time.Time) time.Time
	writer report.Writer
	logger *slog.Logger
}

// NewReportTasklet creates a report tasklet that groups rows by bucket.
func NewReportTasklet(db *gorm.DB, kind string, bucket func(time.Time) time.Time, w report.Writer, logger *slog.Logger) *ReportTasklet {
	return &ReportTasklet{db: db, kind: kind, bucket: bucket, writer: w, logger: logger}
}

func (t *ReportTasklet) Execute(ctx context.Context) error {
	from, to, err := Window(jobctx.ParametersFromContext(ctx))
	if err != nil {
		return err
	}

	var rows []Statistics
	err = t.db.WithContext(ctx).
		Where("statistics_at >= ? AND statistics_at < ?", aggregate.Day(from), to).
		Order("statistics_at, statistics_seq").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("load statistics: %w", err)
	}

	agg := aggregate.New(
		func(s Statistics) time.Time { return t.bucket(s.StatisticsAt) },
		func(k time.Time) Statistics { return Statistics{StatisticsAt: k} },
		Statistics.Merge,
	)
	for _, s := range rows {
		agg.Add(s)
	}

	r := report.Report{
		Name:   report.FileName(t.kind, from),
		Header: ReportHeader,
	}
	for _, s := range agg.Results() {
		r.Rows = append(r.Rows, []string{
			s.StatisticsAt.Format("2006-01-02"),
			strconv.Itoa(s.AllCount),
			strconv.Itoa(s.AttendedCount),
			strconv.Itoa(s.CancelledCount),
		})
	}
	if err := t.writer.WriteReport(ctx, r); err != nil {
		return err
	}

	if se := jobctx.StepExecutionFromContext(ctx); se != nil {
		se.ReadCount += len(rows)
		se.WriteCount += len(r.Rows)
		se.CommitCount++
	}
	t.logger.Info("statistics report written", "report", r.Name, "rows", len(r.Rows))
	return nil
}

// NewJob builds makeStatisticsJob: aggregation first, then the daily and
// weekly reports in parallel.
func NewJob(db *gorm.DB, w report.Writer, opts ...Option) *launcher.Job {
	o := options{chunkSize: DefaultChunkSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	addFlow := flow.New(AddStatisticsFlowName).
		Step(NewAddStatisticsStep(db, o.chunkSize)).
		MustBuild()
	dailyFlow := flow.New(MakeDailyStatisticsFlowName).
		Step(step.NewTasklet(MakeDailyStatisticsStepName, NewReportTasklet(db, DailyReportKind, aggregate.Day, w, o.logger))).
		MustBuild()
	weeklyFlow := flow.New(MakeWeeklyStatisticsFlowName).
		Step(step.NewTasklet(MakeWeeklyStatisticsStepName, NewReportTasklet(db, WeeklyReportKind, aggregate.Week, w, o.logger))).
		MustBuild()

	return &launcher.Job{
		Name: JobName,
		Flow: flow.New(JobName).
			Flow(addFlow).
			Flow(flow.New(ParallelStatisticsFlowName).Split(dailyFlow, weeklyFlow).MustBuild()).
			MustBuild(),
		Parameters: Parameters,
	}
}

