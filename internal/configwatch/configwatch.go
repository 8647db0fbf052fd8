// Package configwatch watches the bootstrap config file for edits. A change
// triggers a callback (the entrypoint uses it to request a connectivity
// re-check and log the new state of the file).
package configwatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses editor write bursts (truncate + write + chmod) into one
// callback invocation.
const debounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the directory holding configPath and
// fires cb after each settled change to the file until ctx is cancelled.
// Watching the directory instead of the file survives the rename-and-replace
// save strategy most editors use.
func Watch(ctx context.Context, configPath string, logger *slog.Logger, cb func()) error {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(configPath)
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

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("configwatch: stopped")
			return nil

		case <-timerCh:
			logger.Info("configwatch: config file changed", slog.String("path", abs))
			if cb != nil {
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			changed, err := filepath.Abs(ev.Name)
			if err != nil || changed != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("configwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}
