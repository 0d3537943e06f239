package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// CommitBatch writes every buffered record into SQLite within a single
// transaction. Records are written in path order and a later record for the
// same path overwrites an earlier one. Path locks are held for the whole
// commit so concurrent GetOrAnalyze calls on those paths wait for it.
func (s *Store) CommitBatch(ctx context.Context, batch *Batch) error {
	records := batch.Records()
	if len(records) == 0 {
		return nil
	}
	slices.SortStableFunc(records, func(a, b FileRecord) int {
		return strings.Compare(a.Path, b.Path)
	})

	var paths []string
	for _, r := range records {
		if len(paths) == 0 || paths[len(paths)-1] != r.Path {
			paths = append(paths, r.Path)
		}
	}
	for _, p := range paths {
		unlock := s.locks.Lock(p)
		defer unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	for i := range records {
		r := &records[i]
		r.AnalyzedAt = now
		if err := putFile(ctx, tx, r); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	return nil
}
