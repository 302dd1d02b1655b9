package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ClientStatus is one client's line in the status snapshot.
type ClientStatus struct {
	ID        string
	Name      string
	Enabled   bool
	Scheduled bool
	// Schedule is the human-readable trigger description,
	// e.g. "daily at 09:00" or "every 6 hours". Empty when unscheduled.
	Schedule string
	Source   string // "cron" | "interval" | "default"
	// NextRun is zero when the client is not scheduled.
	NextRun time.Time
}

type Snapshot struct {
	Total     int
	Enabled   int
	Disabled  int
	Scheduled int

	// Clients is sorted by id. NextRuns contains only scheduled clients,
	// ascending by next-run time.
	Clients  []ClientStatus
	NextRuns []ClientStatus
}

// Status reports the current schedule state. Safe to call while the poll
// loop runs.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{Total: len(o.clients), Scheduled: len(o.scheduled)}
	for id, client := range o.clients {
		cs := ClientStatus{
			ID:      id,
			Name:    client.DisplayName(),
			Enabled: client.IsEnabled(),
		}
		if cs.Enabled {
			snap.Enabled++
		} else {
			snap.Disabled++
		}
		if sj, ok := o.scheduled[id]; ok {
			cs.Scheduled = true
			cs.Schedule = sj.job.Describe()
			cs.Source = sj.source
			if next, ok := o.engine.NextRun(sj.job); ok {
				cs.NextRun = next
			}
		}
		snap.Clients = append(snap.Clients, cs)
	}

	sort.Slice(snap.Clients, func(i, j int) bool { return snap.Clients[i].ID < snap.Clients[j].ID })
	for _, cs := range snap.Clients {
		if cs.Scheduled && !cs.NextRun.IsZero() {
			snap.NextRuns = append(snap.NextRuns, cs)
		}
	}
	sort.Slice(snap.NextRuns, func(i, j int) bool { return snap.NextRuns[i].NextRun.Before(snap.NextRuns[j].NextRun) })
	return snap
}

// Render formats the snapshot for terminal output.
func (s Snapshot) Render() string {
	var b strings.Builder
	line := strings.Repeat("=", 72)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "MULTI-CLIENT SCHEDULER STATUS")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Total clients:     %d\n", s.Total)
	fmt.Fprintf(&b, "Enabled clients:   %d\n", s.Enabled)
	fmt.Fprintf(&b, "Disabled clients:  %d\n", s.Disabled)
	fmt.Fprintf(&b, "Scheduled clients: %d\n\n", s.Scheduled)

	fmt.Fprintln(&b, "CLIENT DETAILS")
	fmt.Fprintln(&b, strings.Repeat("-", 72))
	for _, c := range s.Clients {
		state := "enabled"
		if !c.Enabled {
			state = "disabled"
		}
		sched := "not scheduled"
		if c.Scheduled {
			sched = fmt.Sprintf("%s (%s)", c.Schedule, c.Source)
		}
		fmt.Fprintf(&b, "%s (%s): %s, %s\n", c.Name, c.ID, state, sched)
	}

	fmt.Fprintln(&b, "\nNEXT SCHEDULED RUNS")
	fmt.Fprintln(&b, strings.Repeat("-", 72))
	if len(s.NextRuns) == 0 {
		fmt.Fprintln(&b, "No clients scheduled")
	}
	for _, c := range s.NextRuns {
		fmt.Fprintf(&b, "%s  %s (%s)\n", c.NextRun.Format("2006-01-02 15:04:05"), c.Name, c.Source)
	}
	fmt.Fprintln(&b, line)
	return b.String()
}
