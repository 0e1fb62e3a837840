package model

import "time"

type Habit struct {
	ID            int        `json:"id"`
	Name          string     `json:"name"`
	Frequency     int        `json:"frequency"`
	StartDate     time.Time  `json:"start_date"`
	CurDate       *time.Time `json:"cur_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Active        bool       `json:"active"`
	Streak        int        `json:"streak"`
	LongestStreak int        `json:"longest_streak"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// EndedBefore reports whether the habit's end date lies strictly before day.
func (h Habit) EndedBefore(day time.Time) bool {
	return h.EndDate != nil && Day(day).After(Day(*h.EndDate))
}
