package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Get returns the last-transmitted timestamp persisted for an endpoint key.
// An endpoint that has never succeeded reads as the zero time (distant past).
func (s *Store) Get(ctx context.Context, endpointKey string) (time.Time, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sent_at FROM watermarks WHERE endpoint = ?`,
		endpointKey).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("watermark get: %w", err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

// Set persists the last-transmitted timestamp for an endpoint key.
func (s *Store) Set(ctx context.Context, endpointKey string, value time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (endpoint, last_sent_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			last_sent_at = excluded.last_sent_at,
			updated_at = excluded.updated_at`,
		endpointKey, value.UnixNano(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("watermark set: %w", err)
	}
	return nil
}

// All returns every persisted watermark, keyed by endpoint.
func (s *Store) All(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, last_sent_at FROM watermarks`)
	if err != nil {
		return nil, fmt.Errorf("watermark all: %w", err)
	}
	defer func() { _ = rows.Close() }()

	marks := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var nanos int64
		if err := rows.Scan(&key, &nanos); err != nil {
			return nil, fmt.Errorf("watermark all: scan: %w", err)
		}
		marks[key] = time.Unix(0, nanos).UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("watermark all: rows: %w", err)
	}
	return marks, nil
}
