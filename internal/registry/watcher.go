package registry

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchSources watches the plugins directory for widget source changes and
// invokes onChange after a short debounce. Recompilation itself needs no
// invalidation (the bundle cache is content-addressed), so the callback is
// for logging and for pushing a refresh to connected developers.
// Blocks until the context is cancelled.
func WatchSources(ctx context.Context, dir string, logger *slog.Logger, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, dir); err != nil {
		logger.Error("failed to watch plugins directory", "dir", dir, "error", err)
		// Don't fail - continue without watching
	}

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if filepath.Ext(event.Name) != ".mdx" {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				logger.Debug("widget source changed", "file", name)
				onChange(name)
			})

		case err := <-watcher.Errors:
			logger.Error("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
