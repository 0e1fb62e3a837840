package service

import (
	"context"
	"errors"
	"testing"

	"habit-updater/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdvancer(habits *memHabits, occs *memOccurrences) *HabitAdvancer {
	return NewHabitAdvancer(habits, NewOccurrenceRecorder(occs, testLogger()), testLogger())
}

func TestAdvance_Decisions(t *testing.T) {
	today := day(t, "2024-01-10")

	tests := []struct {
		name        string
		habit       model.Habit
		wantOutcome Outcome
		wantCurDate string
		wantRecord  bool
	}{
		{
			name:        "inactive habit is skipped",
			habit:       model.Habit{ID: 1, Frequency: 1, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-05"), Active: false},
			wantOutcome: OutcomeInactive,
			wantCurDate: "2024-01-05",
		},
		{
			name:        "ended habit is skipped",
			habit:       model.Habit{ID: 2, Frequency: 1, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-05"), EndDate: dayPtr(t, "2024-01-09"), Active: true},
			wantOutcome: OutcomeEnded,
			wantCurDate: "2024-01-05",
		},
		{
			name:        "due today is recorded",
			habit:       model.Habit{ID: 3, Frequency: 3, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-10"), Active: true},
			wantOutcome: OutcomeRecorded,
			wantCurDate: "2024-01-10",
			wantRecord:  true,
		},
		{
			name:        "end date today still counts",
			habit:       model.Habit{ID: 4, Frequency: 1, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-10"), EndDate: dayPtr(t, "2024-01-10"), Active: true},
			wantOutcome: OutcomeRecorded,
			wantCurDate: "2024-01-10",
			wantRecord:  true,
		},
		{
			name:        "future pointer is left alone",
			habit:       model.Habit{ID: 5, Frequency: 3, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-13"), Active: true},
			wantOutcome: OutcomeNotDue,
			wantCurDate: "2024-01-13",
		},
		{
			name:        "overdue pointer lands on today",
			habit:       model.Habit{ID: 6, Frequency: 3, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-04"), Active: true},
			wantOutcome: OutcomeAdvanced,
			wantCurDate: "2024-01-10",
			wantRecord:  true,
		},
		{
			name:        "overdue pointer lands after today",
			habit:       model.Habit{ID: 7, Frequency: 4, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-05"), Active: true},
			wantOutcome: OutcomeAdvanced,
			wantCurDate: "2024-01-13",
		},
		{
			name:        "missing pointer is initialized",
			habit:       model.Habit{ID: 8, Frequency: 1, StartDate: day(t, "2024-01-01"), Active: true},
			wantOutcome: OutcomeInitialized,
			wantCurDate: "2024-01-10",
			wantRecord:  true,
		},
		{
			name:        "missing pointer with future start",
			habit:       model.Habit{ID: 9, Frequency: 2, StartDate: day(t, "2024-02-01"), Active: true},
			wantOutcome: OutcomeInitialized,
			wantCurDate: "2024-02-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			habits := newMemHabits(tt.habit)
			occs := &memOccurrences{}
			a := newAdvancer(habits, occs)

			d, err := a.Advance(context.Background(), tt.habit, today)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, d.Outcome)
			assert.Equal(t, tt.wantRecord, d.Recorded)

			got := habits.get(tt.habit.ID)
			require.NotNil(t, got.CurDate)
			assert.Equal(t, tt.wantCurDate, model.FormatDay(*got.CurDate))

			if tt.wantRecord {
				assert.Equal(t, []string{model.FormatDay(today)}, formatDays(occs.on(tt.habit.ID)))
			} else {
				assert.Empty(t, occs.on(tt.habit.ID))
			}
		})
	}
}

func TestAdvance_InvalidFrequency(t *testing.T) {
	h := model.Habit{ID: 1, Frequency: 0, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-01"), Active: true}
	habits := newMemHabits(h)
	occs := &memOccurrences{}

	d, err := newAdvancer(habits, occs).Advance(context.Background(), h, day(t, "2024-01-05"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSchedule))
	assert.Equal(t, OutcomeInvalid, d.Outcome)
	assert.Equal(t, 0, habits.writes)
	assert.Empty(t, occs.on(1))
}

func TestAdvance_StorageFailure(t *testing.T) {
	h := model.Habit{ID: 1, Frequency: 1, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-01"), Active: true}
	habits := newMemHabits(h)
	habits.failIDs[1] = errors.New("connection reset")

	d, err := newAdvancer(habits, &memOccurrences{}).Advance(context.Background(), h, day(t, "2024-01-05"))
	var storage *StorageError
	require.ErrorAs(t, err, &storage)
	assert.Equal(t, "update cur_date", storage.Op)
	assert.Equal(t, OutcomeFailed, d.Outcome)
}

func TestAdvance_RecordFailure(t *testing.T) {
	h := model.Habit{ID: 1, Frequency: 1, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-05"), Active: true}
	occs := &memOccurrences{insertErr: errors.New("disk full")}

	d, err := newAdvancer(newMemHabits(h), occs).Advance(context.Background(), h, day(t, "2024-01-05"))
	var storage *StorageError
	require.ErrorAs(t, err, &storage)
	assert.Equal(t, "insert occurrence", storage.Op)
	assert.Equal(t, OutcomeFailed, d.Outcome)
	assert.False(t, d.Recorded)
}

// The catch-up scenario: six days of downtime on an every-third-day habit
// jumps straight to the next lattice date without backfilling 01-04.
func TestAdvance_CatchUpDoesNotBackfill(t *testing.T) {
	h := model.Habit{ID: 1, Frequency: 3, StartDate: day(t, "2024-01-01"), CurDate: dayPtr(t, "2024-01-01"), Active: true}
	habits := newMemHabits(h)
	occs := &memOccurrences{}

	d, err := newAdvancer(habits, occs).Advance(context.Background(), h, day(t, "2024-01-07"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, d.Outcome)
	assert.True(t, d.Recorded)
	assert.Equal(t, "2024-01-07", model.FormatDay(*habits.get(1).CurDate))
	assert.Equal(t, []string{"2024-01-07"}, formatDays(occs.on(1)))
}
