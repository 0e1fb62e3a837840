package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"habit-updater/internal/model"

	"go.uber.org/zap"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func dayPtr(t *testing.T, s string) *time.Time {
	d := day(t, s)
	return &d
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type memHabits struct {
	mu      sync.Mutex
	habits  map[int]*model.Habit
	listErr error
	failIDs map[int]error
	writes  int
}

func newMemHabits(habits ...model.Habit) *memHabits {
	m := &memHabits{habits: make(map[int]*model.Habit), failIDs: make(map[int]error)}
	for i := range habits {
		h := habits[i]
		m.habits[h.ID] = &h
	}
	return m
}

func (m *memHabits) sorted() []model.Habit {
	ids := make([]int, 0, len(m.habits))
	for id := range m.habits {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]model.Habit, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.habits[id])
	}
	return out
}

func (m *memHabits) ListAll(ctx context.Context) ([]model.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.sorted(), nil
}

func (m *memHabits) ListActive(ctx context.Context) ([]model.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Habit
	for _, h := range m.sorted() {
		if h.Active {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memHabits) GetByID(ctx context.Context, id int) (*model.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.habits[id]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (m *memHabits) UpdateCurDate(ctx context.Context, id int, curDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIDs[id]; err != nil {
		return err
	}
	h, ok := m.habits[id]
	if !ok {
		return errors.New("habit not found")
	}
	if h.CurDate != nil && !h.CurDate.Before(curDate) {
		return nil
	}
	d := curDate
	h.CurDate = &d
	m.writes++
	return nil
}

func (m *memHabits) UpdateStreak(ctx context.Context, id int, streak int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failIDs[id]; err != nil {
		return err
	}
	h, ok := m.habits[id]
	if !ok {
		return errors.New("habit not found")
	}
	h.Streak = streak
	m.writes++
	return nil
}

func (m *memHabits) get(id int) model.Habit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.habits[id]
}

type memOccurrences struct {
	mu        sync.Mutex
	records   []model.Occurrence
	inserts   int
	insertErr error
	rangeErr  error
}

func (m *memOccurrences) Insert(ctx context.Context, habitID int, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return false, m.insertErr
	}
	m.inserts++
	for _, o := range m.records {
		if o.HabitID == habitID && o.Date.Equal(date) {
			return false, nil
		}
	}
	m.records = append(m.records, model.Occurrence{ID: int64(len(m.records) + 1), HabitID: habitID, Date: date})
	return true, nil
}

func (m *memOccurrences) ListInRange(ctx context.Context, habitIDs []int, from, to time.Time) ([]model.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rangeErr != nil {
		return nil, m.rangeErr
	}
	want := make(map[int]bool)
	for _, id := range habitIDs {
		want[id] = true
	}
	var out []model.Occurrence
	for _, o := range m.records {
		if want[o.HabitID] && !o.Date.Before(from) && o.Date.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOccurrences) HabitIDsOn(ctx context.Context, date time.Time) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for _, o := range m.records {
		if o.Date.Equal(date) {
			ids = append(ids, o.HabitID)
		}
	}
	return ids, nil
}

// complete marks (habitID, date) completed, creating the record if needed.
func (m *memOccurrences) complete(habitID int, date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].HabitID == habitID && m.records[i].Date.Equal(date) {
			m.records[i].Completed = true
			return
		}
	}
	m.records = append(m.records, model.Occurrence{HabitID: habitID, Date: date, Completed: true})
}

func (m *memOccurrences) on(habitID int) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, o := range m.records {
		if o.HabitID == habitID {
			out = append(out, o.Date)
		}
	}
	return out
}

type memLedger struct {
	mu       sync.Mutex
	last     *time.Time
	claimErr error
}

func (l *memLedger) Claim(ctx context.Context, d time.Time) (*time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return nil, false, l.claimErr
	}
	prev := l.last
	if prev != nil && !prev.Before(d) {
		return prev, false, nil
	}
	dd := d
	l.last = &dd
	return prev, true, nil
}

func (l *memLedger) LastRun(ctx context.Context) (*time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, nil
}

type memHistory struct {
	started  []model.Run
	finished []model.Run
}

func (h *memHistory) Start(ctx context.Context, run *model.Run) error {
	run.ID = int64(len(h.started) + 1)
	h.started = append(h.started, *run)
	return nil
}

func (h *memHistory) Finish(ctx context.Context, run *model.Run) error {
	h.finished = append(h.finished, *run)
	return nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func formatDays(days []time.Time) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, model.FormatDay(d))
	}
	return out
}
