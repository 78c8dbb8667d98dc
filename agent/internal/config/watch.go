package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file at path and calls onChange with the newly
// loaded Config after every write. It runs until ctx is cancelled.
//
// The parent directory is watched instead of the file itself: editors and
// config-management tools replace the file via rename, which drops a watch
// held on the old inode. Events for other files in the directory are ignored.
//
// A reload that fails to parse or validate is logged and skipped; onChange
// only ever sees valid configs.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isReloadEvent(event, abs) {
				continue
			}
			reload(abs, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// isReloadEvent reports whether event means the file at abs has new content.
func isReloadEvent(event fsnotify.Event, abs string) bool {
	if filepath.Clean(event.Name) != abs {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}

func reload(path string, onChange func(*Config)) {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config",
			"path", path, "err", err)
		return
	}
	slog.Info("config: reloaded", "path", path, "sources", len(cfg.Agent.Sources))
	onChange(cfg)
}
