package repository

import (
	"context"
	"errors"
	"time"

	"habit-updater/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository keeps the last run date in the single-row run_ledger table.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Claim sets last_run_date to day if it is empty or earlier. The row lock
// taken by the sub-select serializes concurrent claims.
func (r *LedgerRepository) Claim(ctx context.Context, day time.Time) (*time.Time, bool, error) {
	day = model.Day(day)

	if _, err := r.db.Exec(ctx, `INSERT INTO run_ledger (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return nil, false, err
	}

	var prev *time.Time
	err := r.db.QueryRow(ctx, `
        UPDATE run_ledger AS l
        SET last_run_date = $1, updated_at = NOW()
        FROM (SELECT last_run_date FROM run_ledger WHERE id = 1 FOR UPDATE) AS prev
        WHERE l.id = 1 AND (prev.last_run_date IS NULL OR prev.last_run_date < $1)
        RETURNING prev.last_run_date
    `, day).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		last, err := r.LastRun(ctx)
		return last, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return prev, true, nil
}

func (r *LedgerRepository) LastRun(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx, `SELECT last_run_date FROM run_ledger WHERE id = 1`).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return last, nil
}
