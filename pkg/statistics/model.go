package statistics

import (
	"time"

	"github.com/jdziat/pass-batch/pkg/aggregate"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingReady      BookingStatus = "READY"
	BookingProgressed BookingStatus = "PROGRESSED"
	BookingCompleted  BookingStatus = "COMPLETED"
	BookingCancelled  BookingStatus = "CANCELLED"
)

// Booking is one reserved session paid for with a pass.
type Booking struct {
	BookingSeq  int64         `gorm:"primaryKey;autoIncrement"`
	PassSeq     int64         `gorm:"index;not null"`
	UserID      string        `gorm:"size:20;index;not null"`
	Status      BookingStatus `gorm:"size:10;not null"`
	UsedPass    bool
	Attended    bool
	StartedAt   time.Time
	EndedAt     time.Time `gorm:"index"`
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatisticsAt is the day bucket the booking counts toward.
func (b Booking) StatisticsAt() time.Time {
	return aggregate.Day(b.EndedAt)
}

// Statistics holds booking counts for one bucket.
type Statistics struct {
	StatisticsSeq  int64     `gorm:"primaryKey;autoIncrement"`
	StatisticsAt   time.Time `gorm:"index;not null"`
	AllCount       int
	AttendedCount  int
	CancelledCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Add counts one booking.
func (s Statistics) Add(b Booking) Statistics {
	s.AllCount++
	if b.Attended {
		s.AttendedCount++
	}
	if b.Status == BookingCancelled {
		s.CancelledCount++
	}
	return s
}

// Merge adds another bucket's counts.
func (s Statistics) Merge(o Statistics) Statistics {
	s.AllCount += o.AllCount
	s.AttendedCount += o.AttendedCount
	s.CancelledCount += o.CancelledCount
	return s
}

// Models lists every table of the statistics domain, for migration.
func Models() []any {
	return []any{&Booking{}, &Statistics{}}
}
