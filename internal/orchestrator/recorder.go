package orchestrator

import (
	"context"

	"leadsweep/internal/eventbus"
	"leadsweep/internal/runner"
	"leadsweep/internal/storage"
	"leadsweep/pkg/logx"
)

// RecordRuns subscribes to run-finished events and appends them to the run
// history store. It blocks until ctx is cancelled; callers run it on its own
// goroutine. A nil store makes it a no-op.
func RecordRuns(ctx context.Context, bus eventbus.Bus, store storage.Store, log logx.Logger) {
	if bus == nil || store == nil {
		return
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	events, unsubscribe := bus.Subscribe(32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.TypeRunFinished {
				continue
			}
			res, ok := e.Data.(runner.RunResult)
			if !ok {
				continue
			}
			rec := storage.RunRecord{
				ClientID:    res.ClientID,
				ClientName:  res.ClientName,
				Started:     res.Started,
				Duration:    res.Duration,
				OK:          res.OK,
				Error:       res.Error,
				Listings:    res.Listings,
				UpsertsOK:   res.UpsertsOK,
				UpsertsFail: res.UpsertsFailed,
				UpsertsSkip: res.UpsertsSkipped,
			}
			if err := store.AppendRun(ctx, rec); err != nil {
				log.Warn("failed to record run", logx.String("client", res.ClientID), logx.Err(err))
			}
		}
	}
}
