package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habit-updater/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

type HabitRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewHabitRepository(db *pgxpool.Pool, logger *zap.Logger) *HabitRepository {
	return &HabitRepository{
		db:     db,
		logger: logger,
	}
}

const habitColumns = `id, name, frequency, start_date, cur_date, end_date, is_active, streak, longest_streak, updated_at`

func (r *HabitRepository) ListAll(ctx context.Context) ([]model.Habit, error) {
	return r.list(ctx, `SELECT `+habitColumns+` FROM habits ORDER BY id`)
}

func (r *HabitRepository) ListActive(ctx context.Context) ([]model.Habit, error) {
	return r.list(ctx, `SELECT `+habitColumns+` FROM habits WHERE is_active = TRUE ORDER BY id`)
}

func (r *HabitRepository) GetByID(ctx context.Context, id int) (*model.Habit, error) {
	row := r.db.QueryRow(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = $1`, id)
	h, err := scanHabit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("habit %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// UpdateCurDate only moves cur_date forward.
func (r *HabitRepository) UpdateCurDate(ctx context.Context, id int, curDate time.Time) error {
	query := `
        UPDATE habits
        SET cur_date = $2, updated_at = NOW()
        WHERE id = $1 AND (cur_date IS NULL OR cur_date < $2)
    `
	tag, err := r.db.Exec(ctx, query, id, model.Day(curDate))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("cur_date not moved",
			zap.Int("habit_id", id),
			zap.String("cur_date", model.FormatDay(curDate)),
		)
	}
	return nil
}

func (r *HabitRepository) UpdateStreak(ctx context.Context, id int, streak int) error {
	query := `
        UPDATE habits
        SET streak = $2,
            longest_streak = GREATEST(longest_streak, $2),
            updated_at = NOW()
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id, streak)
	return err
}

func (r *HabitRepository) list(ctx context.Context, query string) ([]model.Habit, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func scanHabit(row pgx.Row) (model.Habit, error) {
	var h model.Habit
	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.Frequency,
		&h.StartDate,
		&h.CurDate,
		&h.EndDate,
		&h.Active,
		&h.Streak,
		&h.LongestStreak,
		&h.UpdatedAt,
	)
	return h, err
}
