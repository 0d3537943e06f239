package docgap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jward/docgap/internal/store"
)

// History returns up to limit recorded runs, newest first. limit <= 0
// returns every run.
func (e *Engine) History(ctx context.Context, limit int) ([]*store.Run, error) {
	runs, err := e.store.Runs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return runs, nil
}

// CoverageTrend returns the coverage snapshots of root recorded in the last
// days days, oldest first.
func (e *Engine) CoverageTrend(ctx context.Context, root string, days int) ([]store.CoveragePoint, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("coverage trend: %w", err)
	}
	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	points, err := e.store.CoverageTrend(ctx, absRoot, since)
	if err != nil {
		return nil, fmt.Errorf("coverage trend: %w", err)
	}
	return points, nil
}

// CacheStats reports the size of the analysis and generation caches.
func (e *Engine) CacheStats(ctx context.Context) (store.CacheStats, error) {
	return e.store.Stats(ctx)
}

// ClearCache drops every cached analysis and generation. Run history is
// kept.
func (e *Engine) ClearCache(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	e.logger.Info("cache cleared")
	return nil
}

// PruneCache drops expired generations and the cached analyses of files
// under root that no longer exist or are no longer selected. It returns how
// many records were removed.
func (e *Engine) PruneCache(ctx context.Context, root string) (int, error) {
	expired, err := e.store.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	// A file below an unreadable directory would look deleted.
	var walkErrs []error
	files, err := e.listFiles(ctx, absRoot, func(rel string, err error) {
		walkErrs = append(walkErrs, fmt.Errorf("%s: %w", rel, err))
	})
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	if len(walkErrs) > 0 {
		return expired, fmt.Errorf("prune cache: %w", errors.Join(walkErrs...))
	}
	keep := make([]string, 0, len(files))
	for _, rel := range files {
		keep = append(keep, filepath.Join(absRoot, filepath.FromSlash(rel)))
	}
	// Records of other roots sharing the database are kept too.
	all, err := e.store.Paths(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	for _, p := range all {
		if !within(absRoot, p) {
			keep = append(keep, p)
		}
	}
	stale, err := e.store.PruneMissing(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	e.logger.Info("cache pruned", "expired_generations", expired, "stale_files", stale)
	return expired + stale, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
