// Package watcher reloads the record table when its storage file is changed
// by something other than the running store.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tabula/internal/debounce"
	"github.com/starford/tabula/internal/storage"
)

// Reloader re-reads its slot and reports whether anything changed.
type Reloader interface {
	Key() string
	Reload(ctx context.Context) bool
}

// Watch starts an fsnotify watcher on the storage directory and schedules a
// debounced reload whenever the slot file is created, written, renamed or
// removed. It blocks until ctx is cancelled.
//
// The directory is watched rather than the file because atomic writes
// replace the file through a rename.
func Watch(ctx context.Context, fs *storage.FS, r Reloader, logger *slog.Logger, quiet time.Duration) error {
	slot, err := fs.Path(r.Key())
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(fs.Root()); err != nil {
		return fmt.Errorf("watcher: add %s: %w", fs.Root(), err)
	}

	reload := debounce.New(quiet, func() {
		if r.Reload(ctx) {
			logger.Info("watcher: table reloaded", slog.String("path", slot))
		} else {
			logger.Debug("watcher: slot unchanged", slog.String("path", slot))
		}
	})
	defer reload.Stop()

	logger.Info("watcher: started", slog.String("path", slot))

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != slot {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				logger.Debug("watcher: slot event", slog.String("op", ev.Op.String()))
				reload.Trigger()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
