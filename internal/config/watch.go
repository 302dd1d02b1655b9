package config

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"leadsweep/pkg/logx"
)

// Watch observes the config file and invokes onChange with each freshly
// loaded generation. Editors often emit several write events per save, so
// events are debounced and reloads with unchanged content are skipped.
//
// A reload that fails to parse is logged and dropped; the previous
// generation stays in effect.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func(cfg *Config)) error {
	if log.IsZero() {
		log = logx.Nop()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	// Watch the directory, not the file: many editors replace the file on
	// save, which drops a direct file watch.
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var lastHash uint64

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			cfg, _, err := Load(path)
			if err != nil {
				log.Warn("config reload failed; keeping previous generation",
					logx.String("path", path), logx.Err(err))
				return
			}
			h := hashConfig(cfg)
			if h != 0 && h == lastHash {
				return
			}
			lastHash = h
			log.Info("config reloaded", logx.String("path", path), logx.Int("clients", len(cfg.Clients)))
			onChange(cfg)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logx.Err(err))
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
