package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/jdziat/pass-batch/pkg/config"
	"github.com/jdziat/pass-batch/pkg/launcher"
	"github.com/jdziat/pass-batch/pkg/pass"
	"github.com/jdziat/pass-batch/pkg/report"
	"github.com/jdziat/pass-batch/pkg/schedule"
	"github.com/jdziat/pass-batch/pkg/statistics"
	"github.com/jdziat/pass-batch/pkg/storage"
)

// app wires configuration, storage, jobs and the launcher.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	repo     *storage.GormRepository
	launcher *launcher.Launcher
}

func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.GormLogLevel(), cfg.Database.PoolOptions()...)
	if err != nil {
		return nil, err
	}
	repo := storage.NewGormRepository(db)

	l := launcher.New(repo, launcher.WithLogger(logger))
	l.Register(pass.NewExpirePassesJob(db,
		pass.WithChunkSize(cfg.Batch.ExpireChunkSize),
		pass.WithLogger(logger),
	))
	l.Register(pass.NewAddPassesJob(db,
		pass.WithLookback(cfg.Batch.BulkLookback),
		pass.WithLogger(logger),
	))
	l.Register(statistics.NewJob(db, report.NewCSVWriter(cfg.Batch.ReportDir),
		statistics.WithChunkSize(cfg.Batch.StatisticsChunkSize),
		statistics.WithLogger(logger),
	))

	return &app{cfg: cfg, logger: logger, db: db, repo: repo, launcher: l}, nil
}

// Migrate creates the bookkeeping and domain tables.
func (a *app) Migrate(ctx context.Context) error {
	if err := a.repo.Migrate(ctx); err != nil {
		return err
	}
	models := append(pass.Models(), statistics.Models()...)
	if err := a.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("migrate domain tables: %w", err)
	}
	return nil
}

// Scheduler builds a scheduler from the configured cron expressions.
// Schedule keys match job names case-insensitively.
func (a *app) Scheduler() (*schedule.Scheduler, error) {
	s := schedule.NewScheduler(a.launcher, schedule.WithLogger(a.logger))
	for key, expr := range a.cfg.Schedules {
		job, ok := a.jobNamed(key)
		if !ok {
			return nil, fmt.Errorf("schedules.%s: no such job", key)
		}
		sched, err := schedule.ParseCron(expr)
		if err != nil {
			return nil, err
		}
		if err := s.Add(job, sched, paramsFor(job)); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *app) jobNamed(key string) (string, bool) {
	for _, name := range a.launcher.JobNames() {
		if strings.EqualFold(name, key) {
			return name, true
		}
	}
	return "", false
}

// paramsFor picks the parameters a scheduled run of job gets: the previous
// day's window for statistics, the fire time for everything else.
func paramsFor(job string) schedule.ParamsFunc {
	if job == statistics.JobName {
		return schedule.PreviousDay(statistics.ParamFrom, statistics.ParamTo)
	}
	return schedule.FireTime(runIDKey)
}

func (a *app) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
