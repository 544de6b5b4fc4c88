package model

import "time"

// RunStatus represents the lifecycle state of a harvest run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunStats holds the cumulative per-record counters for a run. Nothing is
// dropped without landing in one of these categories.
type RunStats struct {
	Found    int64 `json:"found"`
	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
}

// RunEntry is one row of the scrape_runs ledger.
type RunEntry struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Stats      RunStats   `json:"stats"`
	LastPage   int        `json:"last_page"`
	Error      string     `json:"error,omitempty"`
}
