package service

import (
	"context"
	"time"

	"habit-updater/internal/model"
	"habit-updater/pkg/logger"

	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeInactive        Outcome = "inactive"
	OutcomeEnded           Outcome = "ended"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
	OutcomeRecorded        Outcome = "recorded"
	OutcomeNotDue          Outcome = "not_due"
	OutcomeAdvanced        Outcome = "advanced"
	OutcomeInitialized     Outcome = "initialized"
	OutcomeInvalid         Outcome = "invalid"
	OutcomeFailed          Outcome = "failed"
)

// Decision is what the advancer did with one habit.
type Decision struct {
	Outcome  Outcome
	NextDate *time.Time // set when the pointer moved
	Recorded bool       // an occurrence for today was inserted
}

// HabitAdvancer moves a habit's due-date pointer and marks it due today.
type HabitAdvancer struct {
	habits   HabitStore
	recorder *OccurrenceRecorder
	logger   *zap.Logger
}

func NewHabitAdvancer(habits HabitStore, recorder *OccurrenceRecorder, logger *zap.Logger) *HabitAdvancer {
	return &HabitAdvancer{
		habits:   habits,
		recorder: recorder,
		logger:   logger,
	}
}

// Advance applies the daily decision to h:
//
//	inactive or past end date  -> nothing
//	pointer == today           -> record today
//	pointer  > today           -> nothing
//	pointer  < today (or nil)  -> jump pointer to the next due date >= today,
//	                              record today if that is today
//
// Due dates skipped by the jump are not backfilled. A habit with no pointer
// is initialized here on purpose rather than skipped, so habits created
// without a cur_date still start receiving occurrences.
func (a *HabitAdvancer) Advance(ctx context.Context, h model.Habit, today time.Time) (Decision, error) {
	today = model.Day(today)

	if !h.Active {
		return Decision{Outcome: OutcomeInactive}, nil
	}
	if h.EndedBefore(today) {
		return Decision{Outcome: OutcomeEnded}, nil
	}
	if err := ValidateSchedule(h); err != nil {
		return Decision{Outcome: OutcomeInvalid}, err
	}

	switch {
	case h.CurDate == nil:
		// never scheduled: initialize from the start-date lattice
		return a.moveTo(ctx, h, today, OutcomeInitialized)
	case model.SameDay(*h.CurDate, today):
		inserted, err := a.recorder.Record(ctx, h.ID, today)
		if err != nil {
			return Decision{Outcome: OutcomeFailed}, err
		}
		return Decision{Outcome: OutcomeRecorded, Recorded: inserted}, nil
	case model.Day(*h.CurDate).After(today):
		return Decision{Outcome: OutcomeNotDue}, nil
	default:
		return a.moveTo(ctx, h, today, OutcomeAdvanced)
	}
}

func (a *HabitAdvancer) moveTo(ctx context.Context, h model.Habit, today time.Time, outcome Outcome) (Decision, error) {
	next, err := NextOccurrence(h.StartDate, h.Frequency, today)
	if err != nil {
		return Decision{Outcome: OutcomeInvalid}, &InvalidScheduleError{HabitID: h.ID, Reason: err.Error()}
	}

	if err := a.habits.UpdateCurDate(ctx, h.ID, next); err != nil {
		return Decision{Outcome: OutcomeFailed}, storageErr("update cur_date", err)
	}

	log := logger.WithTrace(ctx, a.logger)
	fields := []zap.Field{
		zap.Int("habit_id", h.ID),
		zap.String("next_date", model.FormatDay(next)),
	}
	if h.CurDate != nil {
		fields = append(fields, zap.String("previous_date", model.FormatDay(*h.CurDate)))
	}
	log.Info("Advanced habit due date", fields...)

	d := Decision{Outcome: outcome, NextDate: &next}
	if !next.Equal(today) {
		return d, nil
	}

	inserted, err := a.recorder.Record(ctx, h.ID, today)
	if err != nil {
		d.Outcome = OutcomeFailed
		return d, err
	}
	d.Recorded = inserted
	return d, nil
}
