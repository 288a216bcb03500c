package config

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events a single editor save produces
// (truncate, write, chmod, rename) into one reload.
const reloadDelay = 100 * time.Millisecond

// Watch monitors path for changes and calls onChange with the newly loaded
// Config once the file has been quiet for a short delay. Reloads that change
// nothing are logged at debug level and do not call onChange. It runs until
// ctx is cancelled.
//
// If a reload fails (e.g., invalid YAML), the error is logged and the
// previous config remains active; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	// Baseline for the changed-section diff. A file that does not parse yet
	// leaves prev nil, so the first good reload reports every section.
	prev, _ := Load(path)

	slog.Info("config: watching for changes", "path", path)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save by rename, which surfaces as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDelay)
			fire = timer.C

		case <-fire:
			timer, fire = nil, nil

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			changed := changedSections(prev, cfg)
			if len(changed) == 0 {
				slog.Debug("config: file rewritten without changes", "path", path)
				continue
			}
			slog.Info("config: reloaded", "path", path, "changed", changed)
			prev = cfg
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// changedSections names the top-level sections that differ between prev and
// next, in file order. A nil prev differs in every section.
func changedSections(prev, next *Config) []string {
	if prev == nil {
		prev = &Config{}
	}
	sections := []struct {
		name       string
		old, fresh any
	}{
		{"server", prev.Server, next.Server},
		{"session", prev.Session, next.Session},
		{"calculator", prev.Calculator, next.Calculator},
		{"display", prev.Display, next.Display},
		{"ws", prev.WS, next.WS},
		{"log", prev.Log, next.Log},
	}
	var out []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.fresh) {
			out = append(out, s.name)
		}
	}
	return out
}
