package store

import "time"

// RunKind identifies the automation operation a run performed.
type RunKind string

const (
	KindTrigger     RunKind = "trigger"
	KindSaveImage   RunKind = "save_image"
	KindSaveChapter RunKind = "save_chapter"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusDone    RunStatus = "done"
	StatusFailed  RunStatus = "failed"
)

// Run is one automation operation against the browser session
type Run struct {
	ID         string     `json:"id"`
	Kind       RunKind    `json:"kind"`
	URL        string     `json:"url"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"` // nil while running
}

// Image is a file written to the data directory by a run
type Image struct {
	ID      int64     `json:"id"`
	RunID   string    `json:"run_id"`
	Slug    string    `json:"slug"`
	Chapter string    `json:"chapter"`
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Bytes   int64     `json:"bytes"`
	SavedAt time.Time `json:"saved_at"`
}
