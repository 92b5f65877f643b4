package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/netserver/internal/logger"
)

// Watch reloads the configuration file whenever it changes and passes every
// valid result to onChange. The parent directory is watched so that editors
// replacing the file via rename are noticed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, defaults *Config, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadWithDefaults(absPath, defaults)
			if err != nil {
				logger.Warn("Ignoring unreadable config change in %s: %v", absPath, err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				logger.Warn("Ignoring config change in %s: %v", absPath, err)
				continue
			}
			logger.Debug("Config reloaded from %s", absPath)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error: %v", err)
		}
	}
}
