package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"habit-updater/internal/model"
	"habit-updater/pkg/logger"
	"habit-updater/pkg/metrics"
	"habit-updater/pkg/otel"
	"habit-updater/pkg/trace"
	"habit-updater/pkg/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const RunStatusSkipped = "skipped"

// RunReport summarizes one trigger of the daily update.
type RunReport struct {
	RunID               string          `json:"run_id"`
	Date                time.Time       `json:"date"`
	PreviousRun         *time.Time      `json:"previous_run,omitempty"`
	Skipped             bool            `json:"skipped"`
	Status              string          `json:"status"`
	HabitsTotal         int             `json:"habits_total"`
	Outcomes            map[Outcome]int `json:"outcomes"`
	OccurrencesRecorded int             `json:"occurrences_recorded"`
	Failures            int             `json:"failures"`
	Streaks             StreakSummary   `json:"streaks"`
	Duration            time.Duration   `json:"duration"`
	Err                 string          `json:"error,omitempty"`
}

// Orchestrator runs the daily update at most once per calendar day.
type Orchestrator struct {
	habits      HabitStore
	occurrences OccurrenceStore
	ledger      RunLedger
	history     RunHistory
	advancer    *HabitAdvancer
	streaks     *StreakReplayer
	clock       Clock
	logger      *zap.Logger

	mu sync.Mutex
}

// NewOrchestrator wires the update steps. history may be nil.
func NewOrchestrator(
	habits HabitStore,
	occurrences OccurrenceStore,
	ledger RunLedger,
	history RunHistory,
	clock Clock,
	logger *zap.Logger,
) *Orchestrator {
	if clock == nil {
		clock = SystemClock{}
	}
	recorder := NewOccurrenceRecorder(occurrences, logger)
	return &Orchestrator{
		habits:      habits,
		occurrences: occurrences,
		ledger:      ledger,
		history:     history,
		advancer:    NewHabitAdvancer(habits, recorder, logger),
		streaks:     NewStreakReplayer(habits, occurrences, logger),
		clock:       clock,
		logger:      logger,
	}
}

// Today is the calendar day the orchestrator currently operates on.
func (o *Orchestrator) Today() time.Time {
	return model.Day(o.clock.Now())
}

// HasRunToday reports whether the ledger already holds today.
func (o *Orchestrator) HasRunToday(ctx context.Context) (bool, error) {
	last, err := o.ledger.LastRun(ctx)
	if err != nil {
		return false, storageErr("read run ledger", err)
	}
	return last != nil && model.SameDay(*last, o.Today()), nil
}

// Trigger is the scheduler entry point. Errors are logged, never returned.
// A day whose run failed after the claim is not retried until the next day.
func (o *Orchestrator) Trigger(ctx context.Context, source string) {
	o.logger.Info("Running daily update", zap.String("trigger", source))

	report, err := o.RunDaily(ctx)
	if err != nil {
		_, errType := util.ClassifyError(err)
		o.logger.Error("Error during daily update",
			zap.String("trigger", source),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return
	}
	if report.Skipped {
		return
	}
	o.logger.Info("Updater ran successfully",
		zap.String("run_id", report.RunID),
		zap.String("date", model.FormatDay(report.Date)),
		zap.String("status", report.Status),
		zap.Int("habits", report.HabitsTotal),
		zap.Int("occurrences_recorded", report.OccurrencesRecorded),
		zap.Int("streaks_updated", report.Streaks.Updated),
		zap.Int("failures", report.Failures),
		zap.Duration("took", report.Duration),
	)
}

// RunDaily claims today in the ledger and, if the claim succeeds, advances
// every habit and replays streaks since the previous run. The claim happens
// before any processing; a run that fails midway is not retried the same day.
func (o *Orchestrator) RunDaily(ctx context.Context) (report *RunReport, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := time.Now()
	today := o.Today()
	runID := trace.NewRunID()
	ctx = trace.WithRunID(ctx, runID)
	log := logger.WithTrace(ctx, o.logger)

	ctx, span := otel.StartSpan(ctx, "updater.run")
	span.SetAttributes(attribute.String("updater.date", model.FormatDay(today)))
	defer span.End()

	prev, claimed, err := o.ledger.Claim(ctx, today)
	if err != nil {
		metrics.RecordRun("error", 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr("claim run ledger", err)
	}

	report = &RunReport{
		RunID:       runID,
		Date:        today,
		PreviousRun: prev,
		Outcomes:    make(map[Outcome]int),
	}

	if !claimed {
		fields := []zap.Field{zap.String("date", model.FormatDay(today))}
		if prev != nil {
			fields = append(fields, zap.String("last_run_date", model.FormatDay(*prev)))
		}
		log.Info("Updater already ran today. Skipping execution.", fields...)
		report.Skipped = true
		report.Status = RunStatusSkipped
		metrics.RecordRun(RunStatusSkipped, 0)
		return report, nil
	}

	lastRunField := zap.Skip()
	if prev != nil {
		lastRunField = zap.String("last_run_date", model.FormatDay(*prev))
	}
	log.Info("Claimed daily run", zap.String("date", model.FormatDay(today)), lastRunField)

	run := o.startHistory(ctx, report, started)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Daily update panicked", zap.Any("panic", r))
			err = fmt.Errorf("daily update panicked: %v", r)
		}
		if err != nil {
			report.Status = model.RunStatusFailed
			report.Err = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		report.Duration = time.Since(started)
		metrics.RecordRun(report.Status, report.Duration)
		o.finishHistory(ctx, run, report)
	}()

	if err := o.advanceAll(ctx, report, today); err != nil {
		return report, err
	}
	if err := o.replayStreaks(ctx, report, prev, today); err != nil {
		return report, err
	}

	report.Status = model.RunStatusSucceeded
	if report.Failures > 0 {
		report.Status = model.RunStatusPartial
	}
	return report, nil
}

func (o *Orchestrator) advanceAll(ctx context.Context, report *RunReport, today time.Time) error {
	ctx, span := otel.StartSpan(ctx, "updater.advance")
	defer span.End()
	log := logger.WithTrace(ctx, o.logger)

	habits, err := o.habits.ListAll(ctx)
	if err != nil {
		return storageErr("list habits", err)
	}
	report.HabitsTotal = len(habits)

	recordedIDs, err := o.occurrences.HabitIDsOn(ctx, today)
	if err != nil {
		return storageErr("list today's occurrences", err)
	}
	alreadyRecorded := make(map[int]bool, len(recordedIDs))
	for _, id := range recordedIDs {
		alreadyRecorded[id] = true
	}

	log.Info("Advancing habits",
		zap.Int("habits", len(habits)),
		zap.Int("already_recorded", len(alreadyRecorded)),
	)
	span.SetAttributes(attribute.Int("updater.habits", len(habits)))

	for _, h := range habits {
		if alreadyRecorded[h.ID] {
			report.count(OutcomeAlreadyRecorded)
			continue
		}

		d, err := o.advancer.Advance(ctx, h, today)
		report.count(d.Outcome)
		if d.Recorded {
			report.OccurrencesRecorded++
		}
		if err != nil {
			report.Failures++
			o.logHabitFailure(ctx, h, err)
			continue
		}
		log.Debug("Habit processed",
			zap.Int("habit_id", h.ID),
			zap.String("outcome", string(d.Outcome)),
		)
	}
	return nil
}

func (o *Orchestrator) replayStreaks(ctx context.Context, report *RunReport, prev *time.Time, today time.Time) error {
	ctx, span := otel.StartSpan(ctx, "updater.streaks")
	defer span.End()

	active, err := o.habits.ListActive(ctx)
	if err != nil {
		return storageErr("list active habits", err)
	}

	summary, err := o.streaks.Replay(ctx, active, prev, today)
	report.Streaks = summary
	report.Failures += summary.Failures
	span.SetAttributes(
		attribute.Int("updater.streaks_updated", summary.Updated),
		attribute.Int("updater.streak_resets", summary.Resets),
		attribute.Int("updater.streak_missed_days", summary.Missed),
	)
	return err
}

func (o *Orchestrator) logHabitFailure(ctx context.Context, h model.Habit, err error) {
	log := logger.WithTrace(ctx, o.logger)

	if errors.Is(err, ErrInvalidSchedule) {
		metrics.IncrementHabitFailure("invalid_schedule")
		log.Warn("Skipping habit with invalid schedule",
			zap.Int("habit_id", h.ID),
			zap.Int("frequency", h.Frequency),
			zap.Error(err),
		)
		return
	}

	retryable, errType := util.ClassifyError(err)
	metrics.IncrementHabitFailure(errType)
	log.Error("Failed to advance habit",
		zap.Int("habit_id", h.ID),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
}

func (o *Orchestrator) startHistory(ctx context.Context, report *RunReport, started time.Time) *model.Run {
	if o.history == nil {
		return nil
	}
	run := &model.Run{
		RunID:           report.RunID,
		RunDate:         report.Date,
		PreviousRunDate: report.PreviousRun,
		Status:          model.RunStatusRunning,
		StartedAt:       started,
	}
	if err := o.history.Start(ctx, run); err != nil {
		logger.WithTrace(ctx, o.logger).Warn("Failed to record run start", zap.Error(err))
		return nil
	}
	return run
}

func (o *Orchestrator) finishHistory(ctx context.Context, run *model.Run, report *RunReport) {
	if o.history == nil || run == nil {
		return
	}
	finished := time.Now()
	run.Status = report.Status
	run.HabitsTotal = report.HabitsTotal
	run.OccurrencesRecorded = report.OccurrencesRecorded
	run.StreaksUpdated = report.Streaks.Updated
	run.Failures = report.Failures
	run.Error = report.Err
	run.FinishedAt = &finished

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.history.Finish(finishCtx, run); err != nil {
		logger.WithTrace(ctx, o.logger).Warn("Failed to record run result", zap.Error(err))
	}
}

func (r *RunReport) count(outcome Outcome) {
	r.Outcomes[outcome]++
	metrics.IncrementHabitProcessed(string(outcome))
}
