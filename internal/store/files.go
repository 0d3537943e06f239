package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jward/docgap/internal/model"
)

// CacheCorruption reports a stored record that no longer decodes.
type CacheCorruption struct {
	Path string
	Err  error
}

func (e *CacheCorruption) Error() string {
	return fmt.Sprintf("cache corruption for %s: %v", e.Path, e.Err)
}

func (e *CacheCorruption) Unwrap() error { return e.Err }

// --- File operations ---

// FileByPath returns the cached record for path, or nil when there is none.
// A record whose entities cannot be decoded yields *CacheCorruption.
func (s *Store) FileByPath(ctx context.Context, path string) (*FileRecord, error) {
	var (
		f        FileRecord
		at       int64
		entities string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, path, fingerprint, analyzed_at, entities FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Fingerprint, &at, &entities)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	f.AnalyzedAt = fromUnix(at)
	if err := json.Unmarshal([]byte(entities), &f.Entities); err != nil {
		return nil, &CacheCorruption{Path: path, Err: err}
	}
	return &f, nil
}

// PutFile inserts or overwrites the record for f.Path.
func (s *Store) PutFile(ctx context.Context, f *FileRecord) error {
	return putFile(ctx, s.db, f)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putFile(ctx context.Context, db execer, f *FileRecord) error {
	entities := f.Entities
	if entities == nil {
		entities = []model.Entity{}
	}
	b, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("encode entities for %s: %w", f.Path, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO files (path, fingerprint, analyzed_at, entities) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
		  fingerprint = excluded.fingerprint,
		  analyzed_at = excluded.analyzed_at,
		  entities    = excluded.entities`,
		f.Path, f.Fingerprint, toUnix(f.AnalyzedAt), string(b),
	)
	if err != nil {
		return fmt.Errorf("put file %s: %w", f.Path, err)
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}

// Paths lists every cached path in lexical order.
func (s *Store) Paths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PruneMissing deletes records for paths not in keep and returns how many
// were removed.
func (s *Store) PruneMissing(ctx context.Context, keep []string) (int, error) {
	all, err := s.Paths(ctx)
	if err != nil {
		return 0, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}
	var gone []string
	for _, p := range all {
		if !keepSet[p] {
			gone = append(gone, p)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("prune: begin: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, chunk := range chunks(gone, maxParams) {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM files WHERE path IN ("+placeholderList(len(chunk))+")", stringsToArgs(chunk)...)
		if err != nil {
			return 0, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("prune: commit: %w", err)
	}
	return removed, nil
}

// IsFresh reports whether the cached record for path matches the file's
// current content. Missing or corrupt records are not fresh.
func (s *Store) IsFresh(ctx context.Context, path string) (bool, error) {
	fp, err := FingerprintFile(path)
	if err != nil {
		return false, err
	}
	rec, err := s.FileByPath(ctx, path)
	var corrupt *CacheCorruption
	if errors.As(err, &corrupt) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is fresh: %w", err)
	}
	return rec != nil && rec.Fingerprint == fp, nil
}
