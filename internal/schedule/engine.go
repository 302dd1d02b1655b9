package schedule

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"leadsweep/pkg/logx"
)

// Job binds a client to its rule set and unit of work. It is owned by the
// Engine for its registered lifetime; callers treat it as an opaque handle.
type Job struct {
	clientID string
	rules    []Rule
	work     func(ctx context.Context)
}

func (j *Job) ClientID() string { return j.clientID }

// Describe returns the human-readable schedule, e.g. "daily at 09:00".
// Linked rule sets share one description.
func (j *Job) Describe() string {
	if len(j.rules) == 0 {
		return ""
	}
	if len(j.rules) == 5 {
		// Weekday expansion reads better collapsed.
		return "weekdays" + strings.TrimPrefix(j.rules[0].desc, "weekly on Monday")
	}
	return j.rules[0].desc
}

// Run executes the job's unit of work inline.
func (j *Job) Run(ctx context.Context) {
	if j.work != nil {
		j.work(ctx)
	}
}

// Engine maintains the set of registered jobs and their next-run times.
//
// All mutation happens from the orchestrator's poll goroutine; the mutex
// keeps status snapshots and tests race-free.
type Engine struct {
	mu   sync.Mutex
	log  logx.Logger
	jobs map[string]*Job

	// nowFn is swapped in tests for deterministic next-run computation.
	nowFn func() time.Time
}

func New(log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		log:   log,
		jobs:  map[string]*Job{},
		nowFn: time.Now,
	}
}

var errNoRules = errors.New("at least one rule required")

// Register binds clientID to rules and work, replacing any previous job for
// the same client so a client never holds two concurrent schedules.
func (e *Engine) Register(clientID string, rules []Rule, work func(ctx context.Context)) (*Job, error) {
	if len(rules) == 0 {
		return nil, errNoRules
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.jobs[clientID]; ok && old != nil {
		delete(e.jobs, clientID)
		e.log.Debug("schedule replaced", logx.String("client", clientID))
	}

	now := e.nowFn()
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	for i := range owned {
		owned[i].next = owned[i].sched.Next(now)
	}

	j := &Job{clientID: clientID, rules: owned, work: work}
	e.jobs[clientID] = j
	return j, nil
}

// Unregister removes the job and all of its linked rules atomically. It only
// prevents future dispatch; an in-flight run is not interrupted. Stale
// handles (already replaced or removed) are ignored.
func (e *Engine) Unregister(j *Job) bool {
	if j == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.jobs[j.clientID]
	if !ok || cur != j {
		return false
	}
	delete(e.jobs, j.clientID)
	return true
}

// UnregisterAll clears the registry (clean shutdown).
func (e *Engine) UnregisterAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.jobs)
	e.jobs = map[string]*Job{}
	return n
}

// Due returns, in ascending next-run order, every job whose effective
// next-run is <= now, then advances each fired rule to its next future
// occurrence. There is no catch-up for missed intervals: occurrences that
// fell inside a missed poll window are skipped permanently.
//
// Calling Due twice without advancing now returns a job at most once.
func (e *Engine) Due(now time.Time) []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	var due []*Job
	for _, j := range e.jobs {
		if next, ok := jobNext(j); ok && !next.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		na, _ := jobNext(due[a])
		nb, _ := jobNext(due[b])
		return na.Before(nb)
	})
	for _, j := range due {
		for i := range j.rules {
			if !j.rules[i].next.After(now) {
				j.rules[i].next = j.rules[i].sched.Next(now)
			}
		}
	}
	return due
}

// NextRun reports the job's effective next-run time: the minimum across its
// linked rules. ok is false for stale handles.
func (e *Engine) NextRun(j *Job) (time.Time, bool) {
	if j == nil {
		return time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.jobs[j.clientID]; !ok || cur != j {
		return time.Time{}, false
	}
	return jobNext(j)
}

// Len reports the number of registered jobs.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.jobs)
}

func jobNext(j *Job) (time.Time, bool) {
	var min time.Time
	for _, r := range j.rules {
		if r.next.IsZero() {
			continue
		}
		if min.IsZero() || r.next.Before(min) {
			min = r.next
		}
	}
	return min, !min.IsZero()
}
