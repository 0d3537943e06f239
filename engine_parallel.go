package docgap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jward/docgap/internal/analyzer"
	"github.com/jward/docgap/internal/metrics"
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/store"
)

// workItem holds everything a parallel analysis worker needs.
type workItem struct {
	index       int
	rel         string
	path        string
	fingerprint string
	analyzer    analyzer.Analyzer
}

// analyzeParallel analyzes files using a three-phase pipeline:
//
//	Phase A (serial):   Resolve analyzers, fingerprint, serve cache hits.
//	Phase B (parallel): Analyze misses on a worker pool.
//	Phase C (serial):   Buffer results in a store.Batch and commit once.
//
// Entities are returned in file order, as in serial mode.
func (e *Engine) analyzeParallel(ctx context.Context, p *pass, files []string) ([]model.Entity, error) {
	p.report.Stats.Files = len(files)
	perFile := make([][]model.Entity, len(files))

	// ---- Phase A: Serial preparation ----
	var items []workItem
	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, entities, skip := e.prepareFile(ctx, p, i, rel)
		if skip {
			perFile[i] = entities
			continue
		}
		items = append(items, item)
	}

	if len(items) > 0 {
		// ---- Phase B: Parallel analysis ----
		numWorkers := max(1, min(e.cfg.ParallelAnalysis, len(items)))

		workCh := make(chan workItem, len(items))
		for _, item := range items {
			workCh <- item
		}
		close(workCh)

		type result struct {
			item     workItem
			entities []model.Entity
			err      error
		}
		resultCh := make(chan result, len(items))

		var wg sync.WaitGroup
		for range numWorkers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for item := range workCh {
					if err := ctx.Err(); err != nil {
						resultCh <- result{item: item, err: err}
						continue
					}
					entities, err := item.analyzer.Analyze(ctx, item.path, p.root)
					resultCh <- result{item: item, entities: entities, err: err}
				}
			}()
		}

		go func() {
			wg.Wait()
			close(resultCh)
		}()

		// ---- Phase C: Serial commit ----
		results := make([]*result, len(files))
		for res := range resultCh {
			results[res.item.index] = &res
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch := store.NewBatch()
		for _, item := range items {
			res := results[item.index]
			if res.err != nil {
				e.recordFile(p, item.rel, metrics.FileFailed, res.err)
				continue
			}
			batch.Add(item.path, item.fingerprint, res.entities)
			perFile[item.index] = res.entities
			e.recordFile(p, item.rel, metrics.FileAnalyzed, nil)
		}
		if err := e.store.CommitBatch(ctx, batch); err != nil {
			// The entities are still valid for this run; the next run
			// analyzes these files again.
			p.diag("", StageAnalyze, err)
			e.logger.Error("analysis cache not written", "files", batch.Len(), "err", err)
		}
	}

	var all []model.Entity
	for _, entities := range perFile {
		all = append(all, entities...)
	}
	return all, nil
}

// prepareFile does Phase A work for a single file. skip=true means the file
// needs no analysis: it is unsupported, unreadable, or served from the
// cache, in which case its entities are returned.
func (e *Engine) prepareFile(ctx context.Context, p *pass, index int, rel string) (workItem, []model.Entity, bool) {
	a, ok := e.registry.Resolve(rel)
	if !ok {
		e.recordFile(p, rel, metrics.FileSkipped, nil)
		return workItem{}, nil, true
	}
	path := p.abs(rel)
	fp, err := store.FingerprintFile(path)
	if err != nil {
		e.recordFile(p, rel, metrics.FileFailed, &analyzer.ParseError{Path: rel, Err: err})
		return workItem{}, nil, true
	}

	if e.readCache(ctx, p, path) {
		rec, err := e.store.FileByPath(ctx, path)
		var corrupt *store.CacheCorruption
		switch {
		case errors.As(err, &corrupt):
			e.logger.Warn("cache record unreadable, re-analyzing", "path", rel, "err", corrupt.Err)
		case err != nil:
			e.recordFile(p, rel, metrics.FileFailed, fmt.Errorf("lookup cache: %w", err))
			return workItem{}, nil, true
		case rec != nil && rec.Fingerprint == fp:
			e.recordFile(p, rel, metrics.FileCached, nil)
			return workItem{}, rec.Entities, true
		}
	}

	return workItem{
		index:       index,
		rel:         rel,
		path:        path,
		fingerprint: fp,
		analyzer:    a,
	}, nil, false
}
