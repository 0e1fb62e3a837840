package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Runner is triggered once at startup and then daily.
type Runner interface {
	Trigger(ctx context.Context, source string)
}

const (
	TriggerStartup = "startup"
	TriggerDaily   = "daily"
)

// TimeOfDay is a wall-clock time (hour and minute) in the scheduler's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid run time %q, want HH:MM: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// NextRun returns the first instant strictly after now at which the wall
// clock in loc reads at.
func NextRun(now time.Time, at TimeOfDay, loc *time.Location) time.Time {
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, at.Hour, at.Minute, 0, 0, loc)
	}
	return next
}

type Scheduler struct {
	runner       Runner
	at           TimeOfDay
	loc          *time.Location
	runOnStartup bool
	logger       *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(runner Runner, at TimeOfDay, loc *time.Location, runOnStartup bool, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		runner:       runner,
		at:           at,
		loc:          loc,
		runOnStartup: runOnStartup,
		logger:       logger,
		now:          time.Now,
		after:        time.After,
	}
}

// Start blocks until ctx is cancelled. Triggers never overlap: each one runs
// to completion on this goroutine before the next wait begins.
func (s *Scheduler) Start(ctx context.Context) {
	if s.runOnStartup {
		s.logger.Info("Running updater on startup...", zap.Time("now", s.now().In(s.loc)))
		s.runner.Trigger(ctx, TriggerStartup)
	}

	for {
		next := NextRun(s.now(), s.at, s.loc)
		delay := next.Sub(s.now())
		if delay < 0 {
			delay = 0
		}

		s.logger.Info("Next daily update scheduled",
			zap.Time("at", next),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			s.logger.Info("Daily update scheduler stopped")
			return
		case <-s.after(delay):
			s.runner.Trigger(ctx, TriggerDaily)
		}
	}
}
