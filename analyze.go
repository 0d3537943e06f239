package docgap

import (
	"context"
	"errors"

	"github.com/jward/docgap/internal/analyzer"
	"github.com/jward/docgap/internal/metrics"
	"github.com/jward/docgap/internal/model"
	"github.com/jward/docgap/internal/store"
)

// bindRoot adapts a registry analyzer to the store's path-only interface.
func bindRoot(a analyzer.Analyzer, root string) store.Analyzer {
	return store.AnalyzerFunc(func(ctx context.Context, path string) ([]model.Entity, error) {
		return a.Analyze(ctx, path, root)
	})
}

// readCache reports whether the cached analysis of path may be used.
func (e *Engine) readCache(ctx context.Context, p *pass, path string) bool {
	if !p.resume {
		return e.cfg.Incremental
	}
	fresh, err := e.store.IsFresh(ctx, path)
	if err != nil {
		return false
	}
	return fresh
}

// analyzeSerial analyzes files one at a time through the cache store and
// returns their entities in file order.
func (e *Engine) analyzeSerial(ctx context.Context, p *pass, files []string) ([]model.Entity, error) {
	p.report.Stats.Files = len(files)
	var all []model.Entity
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		all = append(all, e.analyzeFile(ctx, p, rel)...)
	}
	return all, nil
}

func (e *Engine) analyzeFile(ctx context.Context, p *pass, rel string) []model.Entity {
	a, ok := e.registry.Resolve(rel)
	if !ok {
		e.recordFile(p, rel, metrics.FileSkipped, nil)
		return nil
	}
	path := p.abs(rel)
	bound := bindRoot(a, p.root)

	var (
		entities []model.Entity
		hit      bool
		err      error
	)
	if e.readCache(ctx, p, path) {
		entities, hit, err = e.store.GetOrAnalyze(ctx, path, bound)
	} else {
		entities, err = e.store.Reanalyze(ctx, path, bound)
	}
	switch {
	case err != nil:
		e.recordFile(p, rel, metrics.FileFailed, err)
		return nil
	case hit:
		e.recordFile(p, rel, metrics.FileCached, nil)
	default:
		e.recordFile(p, rel, metrics.FileAnalyzed, nil)
	}
	return entities
}

// recordFile counts one file outcome in the report and the metrics.
func (e *Engine) recordFile(p *pass, rel, outcome string, err error) {
	st := &p.report.Stats
	switch outcome {
	case metrics.FileAnalyzed:
		st.Analyzed++
	case metrics.FileCached:
		st.Cached++
	case metrics.FileSkipped:
		st.Skipped++
		e.logger.Debug("no analyzer for file", "path", rel)
	case metrics.FileFailed:
		st.Failed++
		p.diag(rel, StageAnalyze, err)
		var perr *analyzer.ParseError
		if errors.As(err, &perr) {
			e.logger.Warn("file could not be parsed", "path", rel, "err", perr.Err)
		} else {
			e.logger.Warn("file analysis failed", "path", rel, "err", err)
		}
	}
	e.metrics.File(outcome)
}
