package schedule

import (
	"context"
	"testing"
	"time"

	"leadsweep/pkg/logx"
)

func noLog() logx.Logger { return logx.Nop() }

func TestRegisterReplacesPreviousJob(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 7, 8, 0, 0, 0, time.Local)
	e := New(noLog())
	e.nowFn = func() time.Time { return base }

	first, err := e.Register("acme", EveryHours(6), func(context.Context) {})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	second, err := e.Register("acme", EveryHours(12), func(context.Context) {})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if e.Len() != 1 {
		t.Fatalf("Len = %d, want 1", e.Len())
	}
	if _, ok := e.NextRun(first); ok {
		t.Fatal("stale handle still resolves a next run")
	}
	if _, ok := e.NextRun(second); !ok {
		t.Fatal("current handle has no next run")
	}
}

func TestRegisterRequiresRules(t *testing.T) {
	t.Parallel()
	e := New(noLog())
	if _, err := e.Register("acme", nil, func(context.Context) {}); err == nil {
		t.Fatal("expected error for empty rule set")
	}
}

func TestDueFiresOnceAndAdvances(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 7, 8, 0, 0, 0, time.Local)
	e := New(noLog())
	e.nowFn = func() time.Time { return base }

	job, err := e.Register("acme", EveryHours(1), func(context.Context) {})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	poll := base.Add(90 * time.Minute)
	due := e.Due(poll)
	if len(due) != 1 || due[0] != job {
		t.Fatalf("Due = %v, want the registered job once", due)
	}

	// Same instant again: the rule has been advanced past poll.
	if again := e.Due(poll); len(again) != 0 {
		t.Fatalf("second Due at same instant returned %d jobs, want 0", len(again))
	}

	next, ok := e.NextRun(job)
	if !ok || !next.After(poll) {
		t.Fatalf("NextRun = %v (ok=%v), want a time after %v", next, ok, poll)
	}
}

func TestDueSkipsMissedOccurrences(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 7, 8, 0, 0, 0, time.Local)
	e := New(noLog())
	e.nowFn = func() time.Time { return base }

	job, err := e.Register("acme", EveryHours(1), func(context.Context) {})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	// A 5 hour gap covers several missed occurrences; the job still comes
	// back exactly once and its next run lands in the future.
	poll := base.Add(5 * time.Hour)
	if due := e.Due(poll); len(due) != 1 {
		t.Fatalf("Due = %d jobs, want 1", len(due))
	}
	next, _ := e.NextRun(job)
	if !next.After(poll) {
		t.Fatalf("NextRun = %v, want after %v", next, poll)
	}
}

func TestDueOrdersAscending(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 7, 8, 0, 0, 0, time.Local)
	e := New(noLog())
	e.nowFn = func() time.Time { return base }

	if _, err := e.Register("late", EveryHours(2), func(context.Context) {}); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := e.Register("early", EveryHours(1), func(context.Context) {}); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	due := e.Due(base.Add(3 * time.Hour))
	if len(due) != 2 {
		t.Fatalf("Due = %d jobs, want 2", len(due))
	}
	if due[0].ClientID() != "early" || due[1].ClientID() != "late" {
		t.Fatalf("order = [%s %s], want [early late]", due[0].ClientID(), due[1].ClientID())
	}
}

func TestUnregisterDropsLinkedRulesAtomically(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 4, 0, 0, 0, 0, time.Local) // Sunday
	e := New(noLog())
	e.nowFn = func() time.Time { return base }

	rules, _, err := Translate("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	job, err := e.Register("acme", rules, func(context.Context) {})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if got := job.Describe(); got != "weekdays at 09:00" {
		t.Fatalf("Describe = %q", got)
	}

	if !e.Unregister(job) {
		t.Fatal("Unregister returned false for a live handle")
	}
	if e.Len() != 0 {
		t.Fatalf("Len = %d after unregister, want 0", e.Len())
	}
	// No weekday rule survives: a week of polling fires nothing.
	if due := e.Due(base.Add(7 * 24 * time.Hour)); len(due) != 0 {
		t.Fatalf("Due after unregister = %d jobs, want 0", len(due))
	}

	// Stale handle: second unregister is a no-op.
	if e.Unregister(job) {
		t.Fatal("Unregister succeeded twice for the same handle")
	}
}

func TestNextRunIsMinAcrossLinkedRules(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 6, 12, 0, 0, 0, time.Local) // Tuesday noon
	e := New(noLog())
	e.nowFn = func() time.Time { return base }

	rules, _, err := Translate("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	job, err := e.Register("acme", rules, func(context.Context) {})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	next, ok := e.NextRun(job)
	if !ok {
		t.Fatal("NextRun not resolved")
	}
	// Earliest linked rule is Wednesday 09:00.
	want := time.Date(2026, 1, 7, 9, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", next, want)
	}
}
