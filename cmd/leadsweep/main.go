package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadsweep/internal/config"
	"leadsweep/internal/crm"
	"leadsweep/internal/eventbus"
	"leadsweep/internal/orchestrator"
	"leadsweep/internal/runner"
	"leadsweep/internal/scrape"
	"leadsweep/internal/storage"
	"leadsweep/internal/task"
	"leadsweep/pkg/logx"
)

func main() {
	var (
		cfgPath    string
		showStatus bool
		clientID   string
		runAll     bool
		runOnStart bool
		dryRun     bool
		watch      bool
	)
	flag.StringVar(&cfgPath, "config", "./clients_config.json", "path to client configuration (json or yaml)")
	flag.BoolVar(&showStatus, "status", false, "print schedule status and exit")
	flag.StringVar(&clientID, "client", "", "run one client immediately and exit")
	flag.BoolVar(&runAll, "run-all", false, "run all enabled clients immediately and exit")
	flag.BoolVar(&runOnStart, "run-now", false, "run all enabled clients once when the scheduler starts")
	flag.BoolVar(&dryRun, "dry-run", false, "scrape and persist results but skip CRM delivery")
	flag.BoolVar(&watch, "watch", false, "reload config and reschedule clients on file change")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, shape, loadErr := config.Load(cfgPath)

	log, closeLog, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	if loadErr != nil {
		// The scheduler stays up with an empty client set and schedules
		// nothing until the config is fixed.
		log.Error("config load failed; continuing with empty client set",
			logx.String("path", cfgPath), logx.Err(loadErr))
	} else {
		log.Info("config loaded",
			logx.String("path", cfgPath),
			logx.String("shape", string(shape)),
			logx.Int("clients", len(cfg.Clients)))
	}

	a, err := build(cfg, log, dryRun, runOnStart)
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}
	defer a.close()

	switch {
	case showStatus:
		a.orch.ScheduleAll()
		fmt.Print(a.orch.Status().Render())

	case clientID != "":
		a.pool.Start(ctx)
		h, err := a.orch.RunNow(clientID)
		if err != nil {
			log.Error("immediate run failed", logx.String("client", clientID), logx.Err(err))
			os.Exit(1)
		}
		_ = h.Wait(ctx)

	case runAll:
		a.pool.Start(ctx)
		for _, h := range a.orch.RunAllNow() {
			_ = h.Wait(ctx)
		}

	default:
		if a.store != nil {
			go orchestrator.RecordRuns(ctx, a.bus, a.store, log)
		}
		if watch {
			go func() {
				err := config.Watch(ctx, cfgPath, log, func(next *config.Config) {
					a.orch.Reload(next.Clients)
				})
				if err != nil {
					log.Warn("config watcher unavailable", logx.Err(err))
				}
			}()
		}
		if err := a.orch.Run(ctx); err != nil {
			log.Error("scheduler stopped with error", logx.Err(err))
			os.Exit(1)
		}
	}
}

type app struct {
	orch  *orchestrator.Orchestrator
	pool  *task.Pool
	bus   eventbus.Bus
	store storage.Store
}

// build wires the service graph from config. Durations are validated here so
// a typo in one field fails fast instead of silently running with zeroes.
func build(cfg *config.Config, log logx.Logger, dryRun, runOnStart bool) (*app, error) {
	pollInterval, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, time.Minute)
	if err != nil {
		return nil, err
	}
	targetDelay, err := config.ParseDurationOrDefault("scrape.target_delay", cfg.Scrape.TargetDelay, 5*time.Second)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := config.ParseDurationOrDefault("scrape.request_timeout", cfg.Scrape.RequestTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}

	fetcher := scrape.NewClient(scrape.Config{
		UserAgent:       cfg.Scrape.UserAgent,
		RequestTimeout:  requestTimeout,
		IncludeKeywords: cfg.Scrape.IncludeKeywords,
		ExcludeKeywords: cfg.Scrape.ExcludeKeywords,
	}, log)

	run := runner.New(runner.Config{
		TargetDelay:    targetDelay,
		DryRun:         dryRun,
		LogLevel:       cfg.Logging.Level,
		DefaultTargets: cfg.Scrape.DefaultTargets,
	}, runner.Deps{
		FetcherFor: func(c config.ClientConfig) scrape.Fetcher {
			return fetcher.WithIncludeKeywords(c.SearchKeywords)
		},
		UpserterFor: func(apiKey string) crm.Upserter {
			return crm.New(crm.Config{
				BaseURL:    cfg.CRM.BaseURL,
				APIKey:     apiKey,
				RatePerSec: cfg.CRM.RatePerSec,
			}, log)
		},
	}, log)

	pool := task.New(task.Config{}, log)
	bus := eventbus.New()

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log)
	if err != nil {
		// History is an optional extra; a broken store must not take the
		// scheduler down.
		log.Warn("run history store unavailable", logx.Err(err))
		store = nil
	}

	orch := orchestrator.New(orchestrator.Config{
		PollInterval: pollInterval,
		RunOnStart:   runOnStart || cfg.Scheduler.RunOnStart,
	}, cfg.Clients, orchestrator.Deps{
		Runner: run,
		Pool:   pool,
		Bus:    bus,
	}, log)

	return &app{orch: orch, pool: pool, bus: bus, store: store}, nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
