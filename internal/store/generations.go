package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// --- Generation operations ---

// CachedGeneration returns the generation stored under fp, or nil when it is
// absent or expired.
func (s *Store) CachedGeneration(ctx context.Context, fp string) (*Generation, error) {
	var (
		g                  Generation
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT text, confidence, reasoning, model, created_at, expires_at
		FROM generations WHERE gap_fingerprint = ?`, fp,
	).Scan(&g.Text, &g.Confidence, &g.Reasoning, &g.Model, &created, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cached generation: %w", err)
	}
	if expiresAt > 0 && expiresAt <= toUnix(s.now()) {
		return nil, nil
	}
	g.CreatedAt = fromUnix(created)
	g.ExpiresAt = fromUnix(expiresAt)
	return &g, nil
}

// PutGeneration stores g under fp. A ttl <= 0 keeps the record until Clear.
func (s *Store) PutGeneration(ctx context.Context, fp string, g Generation, ttl time.Duration) error {
	unlock := s.locks.Lock("gen:" + fp)
	defer unlock()

	now := s.now()
	var expires int64
	if ttl > 0 {
		expires = toUnix(now.Add(ttl))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (gap_fingerprint, text, confidence, reasoning, model, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(gap_fingerprint) DO UPDATE SET
		  text       = excluded.text,
		  confidence = excluded.confidence,
		  reasoning  = excluded.reasoning,
		  model      = excluded.model,
		  created_at = excluded.created_at,
		  expires_at = excluded.expires_at`,
		fp, g.Text, g.Confidence, g.Reasoning, g.Model, toUnix(now), expires,
	)
	if err != nil {
		return fmt.Errorf("put generation: %w", err)
	}
	return nil
}

// DeleteExpired removes expired generations and returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM generations WHERE expires_at > 0 AND expires_at <= ?", toUnix(s.now()))
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return int(n), nil
}
