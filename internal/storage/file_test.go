package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leadsweep/pkg/logx"
)

func openTestStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func record(id string, started time.Time) RunRecord {
	return RunRecord{
		ClientID:   id,
		ClientName: id,
		Started:    started,
		Duration:   3 * time.Second,
		OK:         true,
		Listings:   12,
		UpsertsOK:  10,
	}
}

func TestFileStoreAppendAndReadBack(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"acme", "beta", "gamma"} {
		if err := s.AppendRun(ctx, record(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AppendRun error: %v", err)
		}
	}

	got, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].ClientID != "gamma" || got[2].ClientID != "acme" {
		t.Fatalf("order = [%s %s %s]", got[0].ClientID, got[1].ClientID, got[2].ClientID)
	}
	if got[0].Listings != 12 || !got[0].OK {
		t.Fatalf("record round trip lost fields: %+v", got[0])
	}
}

func TestFileStoreRecentRunsLimit(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := s.AppendRun(ctx, record("acme", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AppendRun error: %v", err)
		}
	}
	got, err := s.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if !got[0].Started.After(got[1].Started) {
		t.Fatal("limit did not keep the newest records")
	}
}

func TestFileStoreSkipsTornWrites(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendRun(ctx, record("acme", time.Now())); err != nil {
		t.Fatalf("AppendRun error: %v", err)
	}
	// Simulate a torn write at the tail.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString(`{"client_id":"tr`); err != nil {
		t.Fatalf("append torn line: %v", err)
	}
	_ = f.Close()

	got, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(got) != 1 || got[0].ClientID != "acme" {
		t.Fatalf("records = %+v, want the one intact record", got)
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		s, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || s != nil {
			t.Fatalf("Open(%q) = %v, %v, want nil, nil", driver, s, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
