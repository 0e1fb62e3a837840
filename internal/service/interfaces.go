package service

import (
	"context"
	"time"

	"habit-updater/internal/model"
)

// HabitStore is the part of the habit table the updater reads and writes.
type HabitStore interface {
	ListAll(ctx context.Context) ([]model.Habit, error)
	ListActive(ctx context.Context) ([]model.Habit, error)
	GetByID(ctx context.Context, id int) (*model.Habit, error)
	// UpdateCurDate moves the due-date pointer forward; implementations must
	// ignore writes that would move it backward.
	UpdateCurDate(ctx context.Context, id int, curDate time.Time) error
	UpdateStreak(ctx context.Context, id int, streak int) error
}

type OccurrenceStore interface {
	// Insert creates (habitID, date, completed=false) and reports whether a
	// new row was written.
	Insert(ctx context.Context, habitID int, date time.Time) (bool, error)
	// ListInRange returns occurrences of the given habits with from <= date < to.
	ListInRange(ctx context.Context, habitIDs []int, from, to time.Time) ([]model.Occurrence, error)
	HabitIDsOn(ctx context.Context, date time.Time) ([]int, error)
}

// RunLedger stores the last calendar day the updater claimed.
type RunLedger interface {
	// Claim atomically sets the ledger to day if it currently holds an
	// earlier day (or nothing). It returns the previous value and whether the
	// claim succeeded.
	Claim(ctx context.Context, day time.Time) (*time.Time, bool, error)
	LastRun(ctx context.Context) (*time.Time, error)
}

type RunHistory interface {
	Start(ctx context.Context, run *model.Run) error
	Finish(ctx context.Context, run *model.Run) error
}

type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time in Location (process local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}
