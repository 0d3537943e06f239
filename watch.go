package docgap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch runs root once, then again whenever a selected file under it
// changes, until ctx is done. Changes are debounced (see WithDebounce) and
// runs never overlap. fn receives the result of every run. Watch returns
// nil when ctx ends.
func (e *Engine) Watch(ctx context.Context, root string, fn func(*Report, error)) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()
	if err := addWatchesRecursive(fsw, absRoot, e.logger); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	e.logger.Info("watching for changes", "root", absRoot, "debounce", e.debounce)

	fn(e.Run(ctx, absRoot))

	timer := time.NewTimer(e.debounce)
	timer.Stop()
	changed := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if rel, ok := e.handleFSEvent(fsw, absRoot, event); ok {
				changed[rel] = true
				timer.Reset(e.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watcher error", "err", err)

		case <-timer.C:
			if len(changed) == 0 {
				continue
			}
			e.logger.Info("changes detected, re-running", "files", len(changed))
			clear(changed)
			fn(e.Run(ctx, absRoot))
		}
	}
}

// handleFSEvent reports whether event should trigger a run, and the
// root-relative path it concerns. New directories are watched as they
// appear.
func (e *Engine) handleFSEvent(fsw *fsnotify.Watcher, root string, event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if hasPrunedDir(rel) {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if prunedDir(filepath.Base(event.Name)) {
				return "", false
			}
			if err := addWatchesRecursive(fsw, event.Name, e.logger); err != nil {
				e.logger.Warn("failed to watch new directory", "path", rel, "err", err)
			}
			// Files may have landed before the watch was added.
			return rel, true
		}
	}
	if !e.selected(rel) {
		return "", false
	}
	e.logger.Debug("file change detected", "path", rel, "op", event.Op.String())
	return rel, true
}

// addWatchesRecursive watches dir and every directory below it that the
// walk would visit.
func addWatchesRecursive(fsw *fsnotify.Watcher, dir string, logger *slog.Logger) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && prunedDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			logger.Warn("failed to watch directory", "path", path, "err", err)
		}
		return nil
	})
}
