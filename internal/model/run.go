package model

import "time"

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// Run is one row of run_history: a claimed daily update and its result.
type Run struct {
	ID                  int64      `json:"id"`
	RunID               string     `json:"run_id"`
	RunDate             time.Time  `json:"run_date"`
	PreviousRunDate     *time.Time `json:"previous_run_date,omitempty"`
	Status              string     `json:"status"`
	HabitsTotal         int        `json:"habits_total"`
	OccurrencesRecorded int        `json:"occurrences_recorded"`
	StreaksUpdated      int        `json:"streaks_updated"`
	Failures            int        `json:"failures"`
	Error               string     `json:"error,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}
