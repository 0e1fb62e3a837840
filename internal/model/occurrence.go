package model

import "time"

// Occurrence marks that a habit was due on a date. Completed is flipped by the
// habit tracker UI; the updater only ever inserts Completed=false.
type Occurrence struct {
	ID        int64     `json:"id"`
	HabitID   int       `json:"habit_id"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}
