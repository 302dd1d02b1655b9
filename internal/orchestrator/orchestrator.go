// Package orchestrator owns the scheduling run loop: it binds client configs
// to trigger rules, polls for due jobs, and serves manual runs and status
// snapshots.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"leadsweep/internal/config"
	"leadsweep/internal/eventbus"
	"leadsweep/internal/runner"
	"leadsweep/internal/schedule"
	"leadsweep/internal/task"
	"leadsweep/pkg/logx"
)

var ErrClientNotFound = errors.New("client not found")

type Config struct {
	// PollInterval is the due-job check cadence. Default 60s.
	PollInterval time.Duration
	// RunOnStart fires every enabled client immediately after scheduling.
	RunOnStart bool
}

// Deps are the collaborating services. Bus and Pool may be nil in tests that
// don't exercise events or manual runs.
type Deps struct {
	Runner *runner.Runner
	Pool   *task.Pool
	Bus    eventbus.Bus
}

type scheduledJob struct {
	job    *schedule.Job
	source string // "cron" | "interval" | "default"
}

type Orchestrator struct {
	cfg    Config
	log    logx.Logger
	engine *schedule.Engine
	deps   Deps

	// mu guards clients and scheduled across config reloads and status
	// reads; the poll loop itself is single-threaded.
	mu        sync.Mutex
	clients   map[string]config.ClientConfig
	scheduled map[string]scheduledJob
}

func New(cfg Config, clients map[string]config.ClientConfig, deps Deps, log logx.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if clients == nil {
		clients = map[string]config.ClientConfig{}
	}
	return &Orchestrator{
		cfg:       cfg,
		log:       log,
		engine:    schedule.New(log),
		deps:      deps,
		clients:   clients,
		scheduled: map[string]scheduledJob{},
	}
}

// ScheduleClient registers the client's trigger rules. Disabled clients are
// skipped (scheduled=false, nil error); unknown ids are an error.
func (o *Orchestrator) ScheduleClient(id string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scheduleClientLocked(id)
}

func (o *Orchestrator) scheduleClientLocked(id string) (bool, error) {
	client, ok := o.clients[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if !client.IsEnabled() {
		o.log.Info("client disabled; skipping scheduling",
			logx.String("client", id), logx.String("name", client.DisplayName()))
		return false, nil
	}

	rules, source := o.rulesFor(client)
	work := func(ctx context.Context) { o.executeRun(ctx, client) }
	job, err := o.engine.Register(id, rules, work)
	if err != nil {
		return false, err
	}
	o.scheduled[id] = scheduledJob{job: job, source: source}

	next, _ := o.engine.NextRun(job)
	o.log.Info("client scheduled",
		logx.String("client", id),
		logx.String("name", client.DisplayName()),
		logx.String("schedule", job.Describe()),
		logx.String("source", source),
		logx.Time("next", next))
	return true, nil
}

// rulesFor resolves the client's schedule by priority: explicit cron
// expression, then the legacy fixed-hour interval, then the 24h default. A
// cron expression that fails to parse falls through to the next tier instead
// of failing the client.
func (o *Orchestrator) rulesFor(client config.ClientConfig) ([]schedule.Rule, string) {
	if client.Schedule != "" {
		rules, degraded, err := schedule.Translate(client.Schedule)
		if err == nil {
			if degraded {
				o.log.Warn("cron expression not fully supported; using degraded daily schedule",
					logx.String("client", client.ID), logx.String("schedule", client.Schedule))
			}
			return rules, "cron"
		}
		o.log.Warn("invalid cron expression; falling back",
			logx.String("client", client.ID), logx.String("schedule", client.Schedule), logx.Err(err))
	}
	if client.ScheduleIntervalHours > 0 {
		return schedule.EveryHours(client.ScheduleIntervalHours), "interval"
	}
	return schedule.DefaultRules(), "default"
}

// ScheduleAll registers every enabled client and reports how many were
// scheduled.
func (o *Orchestrator) ScheduleAll() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	scheduled, skipped := 0, 0
	for id, client := range o.clients {
		if !client.IsEnabled() {
			skipped++
			o.log.Info("skipping disabled client", logx.String("client", id))
			continue
		}
		if ok, err := o.scheduleClientLocked(id); err != nil {
			o.log.Error("failed to schedule client", logx.String("client", id), logx.Err(err))
		} else if ok {
			scheduled++
		}
	}
	o.log.Info("clients scheduled", logx.Int("scheduled", scheduled), logx.Int("skipped_disabled", skipped))
	return scheduled
}

// Unschedule removes the client's job and all linked rules.
func (o *Orchestrator) Unschedule(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	sj, ok := o.scheduled[id]
	if !ok {
		o.log.Warn("client is not scheduled", logx.String("client", id))
		return false
	}
	o.engine.Unregister(sj.job)
	delete(o.scheduled, id)
	o.log.Info("client unscheduled", logx.String("client", id))
	return true
}

// UnscheduleAll clears every registered job (clean shutdown).
func (o *Orchestrator) UnscheduleAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := o.engine.UnregisterAll()
	o.scheduled = map[string]scheduledJob{}
	if n > 0 {
		o.log.Info("all clients unscheduled", logx.Int("jobs", n))
	}
}

// RunNow executes one client outside the normal cadence, on the worker pool,
// without blocking the poll loop. The returned handle is informational;
// callers are not expected to wait on it.
func (o *Orchestrator) RunNow(id string) (*task.Handle, error) {
	o.mu.Lock()
	client, ok := o.clients[id]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if !client.IsEnabled() {
		o.log.Warn("client is disabled but running anyway (manual override)",
			logx.String("client", id), logx.String("name", client.DisplayName()))
	}
	return o.deps.Pool.Submit("run:"+id, func(ctx context.Context) {
		o.executeRun(ctx, client)
	})
}

// RunAllNow fires every enabled client immediately.
func (o *Orchestrator) RunAllNow() []*task.Handle {
	o.mu.Lock()
	ids := make([]string, 0, len(o.clients))
	for id, c := range o.clients {
		if c.IsEnabled() {
			ids = append(ids, id)
		}
	}
	o.mu.Unlock()

	handles := make([]*task.Handle, 0, len(ids))
	for _, id := range ids {
		h, err := o.RunNow(id)
		if err != nil {
			o.log.Error("immediate run rejected", logx.String("client", id), logx.Err(err))
			continue
		}
		handles = append(handles, h)
	}
	return handles
}

// Reload swaps in a freshly loaded client generation: clients that vanished
// or were disabled are unscheduled, everything enabled is (re-)registered.
func (o *Orchestrator) Reload(clients map[string]config.ClientConfig) {
	if clients == nil {
		clients = map[string]config.ClientConfig{}
	}
	o.mu.Lock()
	for id, sj := range o.scheduled {
		if c, ok := clients[id]; !ok || !c.IsEnabled() {
			o.engine.Unregister(sj.job)
			delete(o.scheduled, id)
			o.log.Info("client unscheduled by reload", logx.String("client", id))
		}
	}
	o.clients = clients
	o.mu.Unlock()

	o.ScheduleAll()
}

// executeRun is the single execution path shared by the poll loop and manual
// runs: run the client, publish lifecycle events.
func (o *Orchestrator) executeRun(ctx context.Context, client config.ClientConfig) {
	o.publish(eventbus.TypeRunStarted, runner.RunResult{
		ClientID:   client.ID,
		ClientName: client.DisplayName(),
		Started:    time.Now(),
	})
	res := o.deps.Runner.Run(ctx, client)
	o.publish(eventbus.TypeRunFinished, res)
}

func (o *Orchestrator) publish(typ string, res runner.RunResult) {
	if o.deps.Bus == nil {
		return
	}
	o.deps.Bus.Publish(eventbus.Event{Type: typ, Data: res})
}

// Run is the main loop: schedule everything, optionally fire all clients
// once, then poll for due jobs until ctx is cancelled. Due jobs execute
// inline, so one slow client delays detection of the next due job; that is
// an accepted tradeoff for a single-threaded registry.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ScheduleAll()
	if o.deps.Pool != nil {
		o.deps.Pool.Start(ctx)
	}
	if o.cfg.RunOnStart {
		o.log.Info("running all enabled clients immediately")
		o.RunAllNow()
	}

	// Best effort; no-op outside systemd units.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	o.log.Info("scheduler started; waiting for due jobs",
		logx.Duration("poll_interval", o.cfg.PollInterval))

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			o.UnscheduleAll()
			if o.deps.Pool != nil {
				o.deps.Pool.Stop()
			}
			o.log.Info("scheduler stopped")
			return nil
		case now := <-ticker.C:
			o.pollOnce(ctx, now)
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context, now time.Time) {
	for _, job := range o.engine.Due(now) {
		o.log.Info("running scheduled job", logx.String("client", job.ClientID()))
		job.Run(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}
