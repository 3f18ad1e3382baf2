package model

import "time"

// RunStatus represents the state of a scrape run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun records one pass of the scrape-and-reconcile pipeline.
type ScrapeRun struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	RowsSeen    int        `json:"rows_seen"`
	RowsSkipped int        `json:"rows_skipped"` // rows rejected by the shape classifier
	Inserted    int        `json:"inserted"`
	Reaffirmed  int        `json:"reaffirmed"`
	Expired     int64      `json:"expired"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Counters holds the per-run statistics written back on completion.
type Counters struct {
	RowsSeen    int
	RowsSkipped int
	Inserted    int
	Reaffirmed  int
	Expired     int64
}
