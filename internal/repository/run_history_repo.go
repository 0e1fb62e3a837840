package repository

import (
	"context"
	"errors"

	"habit-updater/internal/model"
	"habit-updater/pkg/outbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const RoutingKeyUpdaterCompleted = "habit.updater.completed"

type RunHistoryRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewRunHistoryRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *RunHistoryRepository {
	return &RunHistoryRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

func (r *RunHistoryRepository) Start(ctx context.Context, run *model.Run) error {
	return r.db.QueryRow(ctx, `
        INSERT INTO run_history (run_id, run_date, previous_run_date, status, started_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `, run.RunID, model.Day(run.RunDate), run.PreviousRunDate, run.Status, run.StartedAt).Scan(&run.ID)
}

// Finish stores the result and queues a habit.updater.completed event.
func (r *RunHistoryRepository) Finish(ctx context.Context, run *model.Run) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        UPDATE run_history
        SET status = $2,
            habits_total = $3,
            occurrences_recorded = $4,
            streaks_updated = $5,
            failures = $6,
            error = $7,
            finished_at = $8
        WHERE run_id = $1
    `, run.RunID, run.Status, run.HabitsTotal, run.OccurrencesRecorded,
		run.StreaksUpdated, run.Failures, run.Error, run.FinishedAt)
	if err != nil {
		return err
	}

	if r.outboxRepo != nil {
		payload := map[string]interface{}{
			"run_id":               run.RunID,
			"date":                 model.FormatDay(run.RunDate),
			"status":               run.Status,
			"habits_total":         run.HabitsTotal,
			"occurrences_recorded": run.OccurrencesRecorded,
			"streaks_updated":      run.StreaksUpdated,
			"failures":             run.Failures,
			"trace_id":             run.RunID,
		}
		id := run.ID
		msg := outbox.Message{AggregateType: "updater_run", AggregateID: &id, RoutingKey: RoutingKeyUpdaterCompleted, Payload: payload}
		if err := r.outboxRepo.Append(ctx, tx, msg); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Latest returns the most recent run, or nil when none was recorded yet.
func (r *RunHistoryRepository) Latest(ctx context.Context) (*model.Run, error) {
	var run model.Run
	err := r.db.QueryRow(ctx, `
        SELECT id, run_id, run_date, previous_run_date, status, habits_total,
               occurrences_recorded, streaks_updated, failures, error, started_at, finished_at
        FROM run_history
        ORDER BY started_at DESC, id DESC
        LIMIT 1
    `).Scan(
		&run.ID,
		&run.RunID,
		&run.RunDate,
		&run.PreviousRunDate,
		&run.Status,
		&run.HabitsTotal,
		&run.OccurrencesRecorded,
		&run.StreaksUpdated,
		&run.Failures,
		&run.Error,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
