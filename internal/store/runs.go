package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jward/docgap/internal/model"
)

// --- Run history ---

// RecordRun persists a finished run with its per-type gap counts and a
// coverage snapshot in one transaction.
func (s *Store) RecordRun(ctx context.Context, r *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, root, started_at, finished_at, files, analyzed, cached, skipped, failed,
		  entities, documented, gaps, generated, generation_failed, coverage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Root, toUnix(r.StartedAt), toUnix(r.FinishedAt), r.Files, r.Analyzed, r.Cached, r.Skipped, r.Failed,
		r.Entities, r.Documented, r.Gaps, r.Generated, r.GenerationFailed, r.Coverage,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}

	for _, gc := range r.GapCounts {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO gap_counts (run_id, gap_type, severity, count) VALUES (?, ?, ?, ?)",
			r.ID, string(gc.Type), string(gc.Severity), gc.Count,
		)
		if err != nil {
			return fmt.Errorf("record run %s: gap count %s/%s: %w", r.ID, gc.Type, gc.Severity, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coverage (run_id, root, recorded_at, total_entities, documented_entities, coverage_percentage)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Root, toUnix(r.FinishedAt), r.Entities, r.Documented, r.Coverage,
	)
	if err != nil {
		return fmt.Errorf("record run %s: coverage: %w", r.ID, err)
	}
	return tx.Commit()
}

// Runs returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]*Run, error) {
	q := `SELECT id, root, started_at, finished_at, files, analyzed, cached, skipped, failed,
	  entities, documented, gaps, generated, generation_failed, coverage
	  FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	byID := make(map[string]*Run)
	for rows.Next() {
		r := &Run{}
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Root, &started, &finished, &r.Files, &r.Analyzed, &r.Cached,
			&r.Skipped, &r.Failed, &r.Entities, &r.Documented, &r.Gaps, &r.Generated,
			&r.GenerationFailed, &r.Coverage); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = fromUnix(started)
		r.FinishedAt = fromUnix(finished)
		runs = append(runs, r)
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	for _, chunk := range chunks(ids, maxParams) {
		if err := s.loadGapCounts(ctx, chunk, byID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) loadGapCounts(ctx context.Context, ids []string, byID map[string]*Run) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, gap_type, severity, count FROM gap_counts WHERE run_id IN ("+placeholderList(len(ids))+
			") ORDER BY run_id, gap_type, severity",
		stringsToArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("gap counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, typ, sev string
			gc           GapCount
		)
		if err := rows.Scan(&id, &typ, &sev, &gc.Count); err != nil {
			return fmt.Errorf("scan gap count: %w", err)
		}
		gc.Type = model.GapType(typ)
		gc.Severity = model.Severity(sev)
		if r := byID[id]; r != nil {
			r.GapCounts = append(r.GapCounts, gc)
		}
	}
	return rows.Err()
}

// CoverageTrend returns the coverage snapshots of root recorded at or after
// since, oldest first.
func (s *Store) CoverageTrend(ctx context.Context, root string, since time.Time) ([]CoveragePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, root, recorded_at, total_entities, documented_entities, coverage_percentage
		FROM coverage WHERE root = ? AND recorded_at >= ?
		ORDER BY recorded_at, run_id`,
		root, toUnix(since),
	)
	if err != nil {
		return nil, fmt.Errorf("coverage trend: %w", err)
	}
	defer rows.Close()
	var out []CoveragePoint
	for rows.Next() {
		var (
			p  CoveragePoint
			at int64
		)
		if err := rows.Scan(&p.RunID, &p.Root, &at, &p.Total, &p.Documented, &p.Coverage); err != nil {
			return nil, fmt.Errorf("scan coverage: %w", err)
		}
		p.RecordedAt = fromUnix(at)
		out = append(out, p)
	}
	return out, rows.Err()
}
