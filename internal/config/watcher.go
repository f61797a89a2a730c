package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDelay coalesces the write bursts editors produce into one reload.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the config file on change and hands valid configs to a
// callback. Invalid or unreadable files keep the previous config in effect.
type Watcher struct {
	path     string
	onChange func(Config)
	logger   *zap.Logger

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher for path. onChange runs on the watcher's
// goroutine after each successful reload.
func NewWatcher(path string, onChange func(Config), logger *zap.Logger) *Watcher {
	return &Watcher{path: path, onChange: onChange, logger: logger}
}

// Watch blocks until ctx is canceled, reloading on filesystem events. The
// parent directory is watched rather than the file so atomic-rename saves
// (vim, most editors) keep working.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}

	w.logger.Info("watching config file", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) cancelPending() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("config reloaded", zap.String("path", w.path))
	w.onChange(cfg)
}
