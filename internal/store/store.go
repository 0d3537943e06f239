package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for the analysis cache, the
// generation cache and run history.
type Store struct {
	db     *sql.DB
	locks  *keyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for cache corruption warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{
		db:     db,
		locks:  newKeyedMutex(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Timestamps are stored as unix nanoseconds so range queries compare integers.
const schemaDDL = `
-- Analysis cache

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  fingerprint     TEXT NOT NULL,
  analyzed_at     INTEGER NOT NULL,
  entities        TEXT NOT NULL
);

-- Generation cache

CREATE TABLE IF NOT EXISTS generations (
  gap_fingerprint TEXT PRIMARY KEY,
  text            TEXT NOT NULL,
  confidence      REAL NOT NULL,
  reasoning       TEXT NOT NULL DEFAULT '',
  model           TEXT NOT NULL DEFAULT '',
  created_at      INTEGER NOT NULL,
  expires_at      INTEGER NOT NULL DEFAULT 0
);

-- Run history

CREATE TABLE IF NOT EXISTS runs (
  id                TEXT PRIMARY KEY,
  root              TEXT NOT NULL,
  started_at        INTEGER NOT NULL,
  finished_at       INTEGER NOT NULL,
  files             INTEGER NOT NULL DEFAULT 0,
  analyzed          INTEGER NOT NULL DEFAULT 0,
  cached            INTEGER NOT NULL DEFAULT 0,
  skipped           INTEGER NOT NULL DEFAULT 0,
  failed            INTEGER NOT NULL DEFAULT 0,
  entities          INTEGER NOT NULL DEFAULT 0,
  documented        INTEGER NOT NULL DEFAULT 0,
  gaps              INTEGER NOT NULL DEFAULT 0,
  generated         INTEGER NOT NULL DEFAULT 0,
  generation_failed INTEGER NOT NULL DEFAULT 0,
  coverage          REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS gap_counts (
  run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  gap_type        TEXT NOT NULL,
  severity        TEXT NOT NULL,
  count           INTEGER NOT NULL,
  PRIMARY KEY (run_id, gap_type, severity)
);

CREATE TABLE IF NOT EXISTS coverage (
  run_id              TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  root                TEXT NOT NULL,
  recorded_at         INTEGER NOT NULL,
  total_entities      INTEGER NOT NULL,
  documented_entities INTEGER NOT NULL,
  coverage_percentage REAL NOT NULL
);

-- Indexes

CREATE INDEX IF NOT EXISTS idx_generations_expires ON generations(expires_at);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_coverage_root ON coverage(root, recorded_at);
`

// Clear removes every analysis and generation record. Run history is kept.
// Entities already handed to callers are decoded copies and stay valid.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear: begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{"DELETE FROM files", "DELETE FROM generations"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	return tx.Commit()
}

// Stats counts cached records.
func (s *Store) Stats(ctx context.Context) (CacheStats, error) {
	var st CacheStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM files),
		  (SELECT COUNT(*) FROM generations),
		  (SELECT COUNT(*) FROM generations WHERE expires_at > 0 AND expires_at <= ?),
		  (SELECT COUNT(*) FROM runs)`,
		toUnix(s.now()),
	).Scan(&st.Files, &st.Generations, &st.ExpiredGenerations, &st.Runs)
	if err != nil {
		return CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}
