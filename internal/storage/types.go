package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures run-history persistence.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one persisted client run outcome.
// Keep it compact and schema-stable.
type RunRecord struct {
	ClientID    string        `json:"client_id"`
	ClientName  string        `json:"client_name"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
	OK          bool          `json:"ok"`
	Error       string        `json:"error,omitempty"`
	Listings    int           `json:"listings"`
	UpsertsOK   int           `json:"upserts_ok"`
	UpsertsFail int           `json:"upserts_failed"`
	UpsertsSkip int           `json:"upserts_skipped"`
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
