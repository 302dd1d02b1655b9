package runner

import "time"

// RunResult is the outcome of one client run. It is created per invocation,
// surfaced through logs, the event bus, and the run-history store, and never
// consulted by the scheduler itself.
type RunResult struct {
	ClientID   string        `json:"client_id"`
	ClientName string        `json:"client_name"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`

	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Listings       int `json:"listings"`
	TargetFailures int `json:"target_failures,omitempty"`

	UpsertsOK      int `json:"upserts_ok"`
	UpsertsFailed  int `json:"upserts_failed"`
	UpsertsSkipped int `json:"upserts_skipped"`

	OutputPath string `json:"output_path,omitempty"`
}
