package pass

import (
	"time"
)

// Status is the lifecycle state of a pass.
type Status string

const (
	StatusReady      Status = "READY"
	StatusProgressed Status = "PROGRESSED"
	StatusExpired    Status = "EXPIRED"
)

// BulkStatus is the lifecycle state of a bulk pass template.
type BulkStatus string

const (
	BulkStatusReady     BulkStatus = "READY"
	BulkStatusCompleted BulkStatus = "COMPLETED"
)

// Package is a purchasable pass product.
type Package struct {
	PackageSeq  int64  `gorm:"primaryKey;autoIncrement"`
	PackageName string `gorm:"size:50;not null"`
	Count       *int
	Period      *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Pass entitles one user to a number of sessions over a period.
type Pass struct {
	PassSeq        int64  `gorm:"primaryKey;autoIncrement"`
	PackageSeq     int64  `gorm:"index;not null"`
	UserID         string `gorm:"size:20;index;not null"`
	Status         Status `gorm:"size:10;index;not null"`
	RemainingCount *int
	StartedAt      time.Time
	EndedAt        *time.Time `gorm:"index"`
	ExpiredAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BulkPass is a template that grants a pass to every member of a group.
type BulkPass struct {
	BulkPassSeq int64      `gorm:"primaryKey;autoIncrement"`
	PackageSeq  int64      `gorm:"index;not null"`
	UserGroupID string     `gorm:"size:20;index;not null"`
	Status      BulkStatus `gorm:"size:10;index;not null"`
	Count       *int
	StartedAt   time.Time `gorm:"index"`
	EndedAt     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserGroupMapping places a user in a group.
type UserGroupMapping struct {
	UserGroupID   string `gorm:"primaryKey;size:20"`
	UserID        string `gorm:"primaryKey;size:20"`
	UserGroupName string `gorm:"size:50"`
	Description   string `gorm:"size:255"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Models lists every table of the pass domain, for migration.
func Models() []any {
	return []any{&Package{}, &Pass{}, &BulkPass{}, &UserGroupMapping{}}
}

// ToPass builds the pass a template grants to userID. The remaining
// count and period are copied from the template.
func (b *BulkPass) ToPass(userID string) Pass {
	p := Pass{
		PackageSeq: b.PackageSeq,
		UserID:     userID,
		Status:     StatusReady,
		StartedAt:  b.StartedAt,
	}
	if b.Count != nil {
		n := *b.Count
		p.RemainingCount = &n
	}
	if b.EndedAt != nil {
		e := *b.EndedAt
		p.EndedAt = &e
	}
	return p
}
