// Package runner executes one client's scrape-and-deliver unit of work with
// full isolation: a failing client can never abort the scheduler or its
// sibling clients.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"leadsweep/internal/config"
	"leadsweep/internal/crm"
	"leadsweep/internal/scrape"
	"leadsweep/pkg/logx"
)

type Config struct {
	// TargetDelay paces consecutive search targets of one client.
	TargetDelay time.Duration
	// DryRun skips CRM delivery entirely (results are still persisted).
	DryRun bool
	// LogLevel for per-client file logs.
	LogLevel string
	// DefaultTargets are used when a client configures no search_targets.
	DefaultTargets []string
}

// Deps are the external capabilities the runner drives. Both factories are
// invoked per run so per-client overrides (keywords, API keys) bind at the
// right time.
type Deps struct {
	FetcherFor  func(client config.ClientConfig) scrape.Fetcher
	UpserterFor func(apiKey string) crm.Upserter
}

type Runner struct {
	cfg  Config
	deps Deps
	log  logx.Logger
}

func New(cfg Config, deps Deps, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{cfg: cfg, deps: deps, log: log}
}

// Run executes one full scrape-and-deliver cycle for the client. It never
// panics or returns an error outward: every failure is logged under the
// client's identity and folded into the result.
func (r *Runner) Run(ctx context.Context, client config.ClientConfig) (res RunResult) {
	res = RunResult{
		ClientID:   client.ID,
		ClientName: client.DisplayName(),
		Started:    time.Now(),
	}
	defer func() {
		res.Duration = time.Since(res.Started)
		if p := recover(); p != nil {
			res.OK = false
			res.Error = fmt.Sprintf("panic: %v", p)
			r.log.Error("client run panicked",
				logx.String("client", client.ID),
				logx.String("name", client.DisplayName()),
				logx.Any("panic", p),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	log, closeLog := r.clientLogger(client)
	defer closeLog()

	log.Info("run started",
		logx.Int("max_pages", client.MaxPages),
		logx.Int("max_listings", client.MaxListings))

	listings := r.scrapeTargets(ctx, client, log, &res)
	res.Listings = len(listings)

	for i := range listings {
		listings[i].ClientID = client.ID
		listings[i].ClientName = client.DisplayName()
	}

	if err := writeResults(client.OutputFile, listings); err != nil {
		res.OK = false
		res.Error = fmt.Sprintf("write results: %v", err)
		log.Error("failed to persist results", logx.String("path", client.OutputFile), logx.Err(err))
		return res
	}
	res.OutputPath = client.OutputFile
	log.Info("results saved", logx.Int("listings", len(listings)), logx.String("path", client.OutputFile))

	r.deliver(ctx, client, log, listings, &res)

	res.OK = res.Error == ""
	log.Info("run finished",
		logx.Bool("ok", res.OK),
		logx.Int("listings", res.Listings),
		logx.Int("upserts_ok", res.UpsertsOK),
		logx.Int("upserts_failed", res.UpsertsFailed),
		logx.Int("upserts_skipped", res.UpsertsSkipped),
		logx.Duration("took", time.Since(res.Started)))
	return res
}

// scrapeTargets visits each configured search target sequentially. A failing
// target is logged and counted; remaining targets still run.
func (r *Runner) scrapeTargets(ctx context.Context, client config.ClientConfig, log logx.Logger, res *RunResult) []scrape.Listing {
	targets := client.SearchTargets
	if len(targets) == 0 {
		targets = r.cfg.DefaultTargets
	}
	if len(targets) == 0 {
		log.Warn("no search targets configured; nothing to scrape")
		return nil
	}

	fetcher := r.deps.FetcherFor(client)
	var all []scrape.Listing
	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}
		remaining := client.MaxListings - len(all)
		if remaining <= 0 {
			break
		}
		got, err := fetcher.FetchListings(ctx, target, client.MaxPages, remaining)
		if err != nil {
			res.TargetFailures++
			log.Error("search target failed", logx.String("target", target), logx.Err(err))
		}
		// Partial results before a failure are still leads.
		all = append(all, got...)
		log.Debug("target scraped", logx.String("target", target), logx.Int("listings", len(got)))

		if i < len(targets)-1 && r.cfg.TargetDelay > 0 {
			if !sleepCtx(ctx, r.cfg.TargetDelay) {
				break
			}
		}
	}
	return all
}

// deliver pushes listings to the CRM one by one, tallying instead of
// aborting. Skipped = missing phone number.
func (r *Runner) deliver(ctx context.Context, client config.ClientConfig, log logx.Logger, listings []scrape.Listing, res *RunResult) {
	if r.cfg.DryRun {
		log.Info("dry run; skipping CRM delivery", logx.Int("listings", len(listings)))
		return
	}
	if client.CRMAPIKey == "" {
		log.Debug("no CRM credential configured; skipping delivery")
		return
	}

	up := r.deps.UpserterFor(client.CRMAPIKey)
	for _, l := range listings {
		if l.PhoneNumber == "" {
			res.UpsertsSkipped++
			log.Warn("skipping record without phone number",
				logx.String("company", l.CompanyName), logx.String("url", l.SourceURL))
			continue
		}
		err := up.UpsertContact(ctx, crm.Contact{
			Name:        l.CompanyName,
			Phone:       l.PhoneNumber,
			Position:    l.Position,
			SourceURL:   l.SourceURL,
			CollectedAt: l.CollectedAt,
		})
		if err != nil {
			res.UpsertsFailed++
			log.Warn("contact upsert failed", logx.String("company", l.CompanyName), logx.Err(err))
			continue
		}
		res.UpsertsOK++
	}
	log.Info("CRM delivery finished",
		logx.Int("ok", res.UpsertsOK),
		logx.Int("failed", res.UpsertsFailed),
		logx.Int("skipped", res.UpsertsSkipped))
}

// clientLogger builds the per-run logging context: the shared logger tagged
// with the client identity, plus an optional per-client file sink whose
// lifetime ends with the run.
func (r *Runner) clientLogger(client config.ClientConfig) (logx.Logger, func()) {
	fields := []logx.Field{
		logx.String("client", client.ID),
		logx.String("name", client.DisplayName()),
	}
	if client.LogFile == "" {
		return r.log.With(fields...), func() {}
	}
	fileLog, closeFn, err := logx.NewWithFile(r.cfg.LogLevel, client.LogFile)
	if err != nil {
		r.log.Warn("per-client log file unavailable; using shared logger",
			logx.String("client", client.ID), logx.String("path", client.LogFile), logx.Err(err))
		return r.log.With(fields...), func() {}
	}
	return fileLog.With(fields...), func() { _ = closeFn() }
}

func writeResults(path string, listings []scrape.Listing) error {
	if listings == nil {
		listings = []scrape.Listing{}
	}
	b, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
