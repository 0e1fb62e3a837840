package service

import (
	"fmt"
	"time"

	"habit-updater/internal/model"
)

// ValidateSchedule checks the fields the date arithmetic divides by or
// anchors on. Habits failing it are skipped by every step of a run.
func ValidateSchedule(h model.Habit) error {
	if h.Frequency <= 0 {
		return &InvalidScheduleError{HabitID: h.ID, Reason: fmt.Sprintf("frequency must be positive, got %d", h.Frequency)}
	}
	if h.StartDate.IsZero() {
		return &InvalidScheduleError{HabitID: h.ID, Reason: "start date is missing"}
	}
	return nil
}

// NextOccurrence returns the smallest date on the lattice start + k*frequency
// that is not before today.
func NextOccurrence(start time.Time, frequency int, today time.Time) (time.Time, error) {
	if frequency <= 0 {
		return time.Time{}, fmt.Errorf("%w: frequency must be positive, got %d", ErrInvalidSchedule, frequency)
	}
	if start.IsZero() {
		return time.Time{}, fmt.Errorf("%w: start date is missing", ErrInvalidSchedule)
	}

	start, today = model.Day(start), model.Day(today)
	if today.Before(start) {
		return start, nil
	}

	offset := frequency - model.DaysBetween(start, today)%frequency
	if offset == frequency {
		return today, nil
	}
	return model.AddDays(today, offset), nil
}

// ShouldTrackOnDate reports whether date is a due date for h.
func ShouldTrackOnDate(h model.Habit, date time.Time) bool {
	date = model.Day(date)
	if h.Frequency <= 0 || h.StartDate.IsZero() {
		return false
	}
	start := model.Day(h.StartDate)
	if date.Before(start) {
		return false
	}
	if h.EndedBefore(date) {
		return false
	}
	if h.Frequency == 1 {
		return true
	}
	return model.DaysBetween(start, date)%h.Frequency == 0
}
