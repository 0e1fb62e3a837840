package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habit-updater/internal/model"
	"habit-updater/pkg/outbox"
	"habit-updater/pkg/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const RoutingKeyOccurrenceDue = "habit.occurrence.due"

type OccurrenceRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

// NewOccurrenceRepository builds the repository. With a nil outboxRepo no
// events are written.
func NewOccurrenceRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository, logger *zap.Logger) *OccurrenceRepository {
	return &OccurrenceRepository{
		db:         db,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Insert writes an uncompleted occurrence and, when the row is new, a
// habit.occurrence.due outbox event in the same transaction.
func (r *OccurrenceRepository) Insert(ctx context.Context, habitID int, date time.Time) (bool, error) {
	day := model.Day(date)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
        INSERT INTO habit_occurrences (habit_id, occurrence_date, completed)
        VALUES ($1, $2, FALSE)
        ON CONFLICT (habit_id, occurrence_date) DO NOTHING
        RETURNING id
    `, habitID, day).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if r.outboxRepo != nil {
		payload := map[string]interface{}{
			"habit_id":      habitID,
			"occurrence_id": id,
			"date":          model.FormatDay(day),
			"trace_id":      trace.RunID(ctx),
		}
		msg := outbox.Message{AggregateType: "habit", AggregateID: &id, RoutingKey: RoutingKeyOccurrenceDue, Payload: payload}
		if err := r.outboxRepo.Append(ctx, tx, msg); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit occurrence: %w", err)
	}
	return true, nil
}

func (r *OccurrenceRepository) ListInRange(ctx context.Context, habitIDs []int, from, to time.Time) ([]model.Occurrence, error) {
	if len(habitIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
        SELECT id, habit_id, occurrence_date, completed, created_at
        FROM habit_occurrences
        WHERE habit_id = ANY($1)
          AND occurrence_date >= $2
          AND occurrence_date < $3
        ORDER BY habit_id, occurrence_date
    `, habitIDs, model.Day(from), model.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Occurrence
	for rows.Next() {
		var o model.Occurrence
		if err := rows.Scan(&o.ID, &o.HabitID, &o.Date, &o.Completed, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OccurrenceRepository) HabitIDsOn(ctx context.Context, date time.Time) ([]int, error) {
	rows, err := r.db.Query(ctx, `
        SELECT DISTINCT habit_id FROM habit_occurrences WHERE occurrence_date = $1
    `, model.Day(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
