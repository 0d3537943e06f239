package store

import (
	"context"
	"errors"

	"github.com/jward/docgap/internal/model"
)

// Analyzer produces the entities of one file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) ([]model.Entity, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, path string) ([]model.Entity, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, path string) ([]model.Entity, error) {
	return f(ctx, path)
}

// GetOrAnalyze returns the cached entities for path when its fingerprint is
// unchanged. Otherwise it runs a, overwrites the record and returns the fresh
// entities. hit reports whether the analyzer was skipped.
//
// Calls for the same path serialize; distinct paths proceed independently.
func (s *Store) GetOrAnalyze(ctx context.Context, path string, a Analyzer) (entities []model.Entity, hit bool, err error) {
	return s.getOrAnalyze(ctx, path, a, true)
}

// Reanalyze always runs a and overwrites the record for path.
func (s *Store) Reanalyze(ctx context.Context, path string, a Analyzer) ([]model.Entity, error) {
	entities, _, err := s.getOrAnalyze(ctx, path, a, false)
	return entities, err
}

func (s *Store) getOrAnalyze(ctx context.Context, path string, a Analyzer, readCache bool) ([]model.Entity, bool, error) {
	unlock := s.locks.Lock(path)
	defer unlock()

	fp, err := FingerprintFile(path)
	if err != nil {
		return nil, false, err
	}

	if readCache {
		rec, err := s.FileByPath(ctx, path)
		var corrupt *CacheCorruption
		switch {
		case errors.As(err, &corrupt):
			s.logger.Warn("cache record unreadable, re-analyzing", "path", path, "err", corrupt.Err)
		case err != nil:
			return nil, false, err
		case rec != nil && rec.Fingerprint == fp:
			return rec.Entities, true, nil
		}
	}

	entities, err := a.Analyze(ctx, path)
	if err != nil {
		return nil, false, err
	}
	rec := &FileRecord{Path: path, Fingerprint: fp, AnalyzedAt: s.now(), Entities: entities}
	if err := s.PutFile(ctx, rec); err != nil {
		return nil, false, err
	}
	return entities, false, nil
}
