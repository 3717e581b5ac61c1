package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next fire time strictly after from.
type Schedule interface {
	Next(from time.Time) time.Time
}

// interval fires a fixed duration after the previous fire time, so missed
// fires are never replayed.
type interval time.Duration

// Every fires every d.
func Every(d time.Duration) Schedule { return interval(d) }

func (i interval) Next(from time.Time) time.Time { return from.Add(time.Duration(i)) }

// wallClock fires at hour:minute UTC, every day or on one weekday.
type wallClock struct {
	hour, minute int
	weekday      time.Weekday
	weekly       bool
}

// Daily fires at hour:minute UTC every day.
func Daily(hour, minute int) Schedule {
	return wallClock{hour: hour, minute: minute}
}

// Weekly fires at hour:minute UTC on day.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return wallClock{hour: hour, minute: minute, weekday: day, weekly: true}
}

func (c wallClock) Next(from time.Time) time.Time {
	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), c.hour, c.minute, 0, 0, time.UTC)
	period := 1
	if c.weekly {
		next = next.AddDate(0, 0, (int(c.weekday)-int(from.Weekday())+7)%7)
		period = 7
	}
	if !next.After(from) {
		next = next.AddDate(0, 0, period)
	}
	return next
}

// cronSchedule wraps a cron expression.
type cronSchedule struct {
	expr     string
	schedule cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@daily". Expressions are evaluated in UTC unless they carry a TZ= or
// CRON_TZ= prefix.
func ParseCron(expr string) (Schedule, error) {
	spec := expr
	if !strings.HasPrefix(spec, "TZ=") && !strings.HasPrefix(spec, "CRON_TZ=") {
		spec = "TZ=UTC " + spec
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &cronSchedule{expr: expr, schedule: sched}, nil
}

// Cron is like ParseCron but panics on an invalid expression.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err.Error())
	}
	return s
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

func (s *cronSchedule) String() string { return s.expr }
