// Package configwatch reloads configuration when its file changes on disk.
package configwatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay debounces the bursts of events editors emit for one save.
const settleDelay = 200 * time.Millisecond

// ApplyFunc receives the new file contents. A returned error rejects the
// reload and leaves the previous configuration in effect.
type ApplyFunc func(data []byte) error

// Watch watches the file at path until ctx is cancelled and calls apply
// once per settled change.
//
// The parent directory is watched rather than the file itself so that
// editors replacing the file through a rename keep triggering reloads.
func Watch(ctx context.Context, path string, logger *slog.Logger, apply ApplyFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("configwatch: started", slog.String("path", abs))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(settleDelay)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("configwatch: stopped")
			return nil

		case <-reloadCh:
			reload(abs, logger, apply)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("configwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reload(path string, logger *slog.Logger, apply ApplyFunc) {
	data, err := os.ReadFile(path)
	if err != nil {
		// A rename-replace may not have landed yet; the Create will retrigger.
		logger.Warn("configwatch: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := apply(data); err != nil {
		logger.Warn("configwatch: reload rejected", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	logger.Info("configwatch: reloaded", slog.String("path", path))
}
