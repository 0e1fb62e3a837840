package service

import (
	"context"
	"time"

	"habit-updater/internal/model"
	"habit-updater/pkg/logger"
	"habit-updater/pkg/metrics"

	"go.uber.org/zap"
)

// StreakSummary aggregates one replay over all active habits.
type StreakSummary struct {
	From     time.Time `json:"from"`
	Habits   int       `json:"habits"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	Missed   int       `json:"missed"`
	Resets   int       `json:"resets"`
	Failures int       `json:"failures"`
}

// StreakResult is the replay of a single habit.
type StreakResult struct {
	Streak    int
	Completed int // due days found completed
	Missed    int // due days without a completed occurrence
	Resets    int // misses that dropped a positive streak to zero
}

type StreakReplayer struct {
	habits      HabitStore
	occurrences OccurrenceStore
	logger      *zap.Logger
}

func NewStreakReplayer(habits HabitStore, occurrences OccurrenceStore, logger *zap.Logger) *StreakReplayer {
	return &StreakReplayer{
		habits:      habits,
		occurrences: occurrences,
		logger:      logger,
	}
}

// Replay folds every fully elapsed day in [lastRun, today) into the streak of
// each habit. A nil lastRun (first run ever) replays only yesterday. Today is
// left for the next run because its completion state is not final yet.
func (r *StreakReplayer) Replay(ctx context.Context, habits []model.Habit, lastRun *time.Time, today time.Time) (StreakSummary, error) {
	today = model.Day(today)
	from := model.AddDays(today, -1)
	if lastRun != nil {
		from = model.Day(*lastRun)
	}

	log := logger.WithTrace(ctx, r.logger)
	summary := StreakSummary{From: from, Habits: len(habits)}

	log.Info("Updating streaks",
		zap.String("from", model.FormatDay(from)),
		zap.String("to", model.FormatDay(today)),
		zap.Int("habits", len(habits)),
	)

	if len(habits) == 0 {
		log.Info("No active habits found. Skipping streak update.")
		return summary, nil
	}

	ids := make([]int, 0, len(habits))
	for _, h := range habits {
		ids = append(ids, h.ID)
	}

	// One day earlier than the window so yesterday's state is on hand.
	occs, err := r.occurrences.ListInRange(ctx, ids, model.AddDays(from, -1), today)
	if err != nil {
		return summary, storageErr("list occurrences", err)
	}
	completed := indexCompleted(occs)

	for _, h := range habits {
		if !h.Active {
			summary.Skipped++
			continue
		}
		if err := ValidateSchedule(h); err != nil {
			summary.Failures++
			metrics.IncrementHabitFailure("invalid_schedule")
			log.Warn("Skipping streak for habit with invalid schedule", zap.Int("habit_id", h.ID), zap.Error(err))
			continue
		}
		if model.Day(h.StartDate).After(today) {
			summary.Skipped++
			continue
		}

		res := ReplayHabit(h, from, today, completed[h.ID])
		summary.Missed += res.Missed
		summary.Resets += res.Resets
		metrics.AddStreakResets(res.Resets)

		if res.Streak == h.Streak {
			log.Debug("Streak unchanged",
				zap.Int("habit_id", h.ID),
				zap.Int("streak", res.Streak),
			)
			continue
		}

		if err := r.habits.UpdateStreak(ctx, h.ID, res.Streak); err != nil {
			summary.Failures++
			log.Error("Failed to update streak",
				zap.Int("habit_id", h.ID),
				zap.Int("streak", res.Streak),
				zap.Error(err),
			)
			continue
		}

		summary.Updated++
		log.Info("Updated streak",
			zap.Int("habit_id", h.ID),
			zap.Int("previous", h.Streak),
			zap.Int("streak", res.Streak),
			zap.Int("completed_days", res.Completed),
			zap.Int("missed_days", res.Missed),
			zap.Int("resets", res.Resets),
		)
	}

	log.Info("Streak update completed for all habits",
		zap.Int("updated", summary.Updated),
		zap.Int("resets", summary.Resets),
		zap.Int("failures", summary.Failures),
	)
	return summary, nil
}

// ReplayHabit walks [from, today) starting at h.Streak. Due days with a
// completed occurrence increment the streak; any other due day sets it to 0.
// Only a miss that ends a positive streak counts as a reset.
func ReplayHabit(h model.Habit, from, today time.Time, completed map[time.Time]bool) StreakResult {
	res := StreakResult{Streak: h.Streak}
	if res.Streak < 0 {
		res.Streak = 0
	}

	today = model.Day(today)
	for d := model.Day(from); d.Before(today); d = model.AddDays(d, 1) {
		if !ShouldTrackOnDate(h, d) {
			continue
		}
		if completed[d] {
			res.Streak++
			res.Completed++
			continue
		}
		if res.Streak > 0 {
			res.Resets++
		}
		res.Streak = 0
		res.Missed++
	}
	return res
}

// indexCompleted groups completed occurrences by habit and day.
func indexCompleted(occs []model.Occurrence) map[int]map[time.Time]bool {
	idx := make(map[int]map[time.Time]bool)
	for _, o := range occs {
		if !o.Completed {
			continue
		}
		days, ok := idx[o.HabitID]
		if !ok {
			days = make(map[time.Time]bool)
			idx[o.HabitID] = days
		}
		days[model.Day(o.Date)] = true
	}
	return idx
}
