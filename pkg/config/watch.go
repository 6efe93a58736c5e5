package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dotsetgreg/planbot/pkg/logger"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads path whenever it is written and hands each successfully
// loaded config to onReload. Invalid edits are logged and ignored. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := LoadConfig(absPath)
		if err != nil {
			logger.WarnCF("config", "Ignoring invalid config change", map[string]interface{}{
				"path":  absPath,
				"error": err.Error(),
			})
			return
		}
		logger.InfoCF("config", "Config reloaded", map[string]interface{}{"path": absPath})
		onReload(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != absPath {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)
			timerMu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WarnCF("config", "Config watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}
