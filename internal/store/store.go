// Package store provides the SQLite-backed durable queue of location
// records and the per-endpoint delivery watermarks. Both live in one
// database file so a single handle covers the whole persistence surface.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/traverse-labs/waypost/internal/record"
)

// ErrCorruptRecord reports a persisted record whose payload no longer
// deserializes. Callers treat it as "skip", not as fatal.
var ErrCorruptRecord = errors.New("corrupt persisted record")

// Store is the SQLite persistence layer for records and watermarks.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and ensures the
// schema is current.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer at a time keeps append/prune serialization in the driver.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("applying pragma: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts records in arrival order inside one transaction.
func (s *Store) Append(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (observed_at, payload) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("append: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("append: encode record: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.Timestamp.UnixNano(), payload); err != nil {
			return fmt.Errorf("append: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

// Oldest returns the first record by insertion order. The second return is
// false when the queue is empty. A payload that no longer decodes yields
// ErrCorruptRecord.
func (s *Store) Oldest(ctx context.Context) (record.Record, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records ORDER BY id ASC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, fmt.Errorf("oldest: query: %w", err)
	}

	var rec record.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return record.Record{}, false, fmt.Errorf("oldest: %w: %v", ErrCorruptRecord, err)
	}
	return rec, true, nil
}

// AllSince returns every record strictly newer than the watermark, in
// insertion order. Rows that fail to decode are logged and skipped so one
// corrupt entry cannot wedge delivery for an endpoint.
func (s *Store) AllSince(ctx context.Context, watermark time.Time) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM records WHERE observed_at > ? ORDER BY id ASC`,
		watermark.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("all since: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []record.Record
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("all since: scan: %w", err)
		}
		var rec record.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			s.logger.Warn("skipping corrupt record",
				zap.Int64("id", id),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("all since: rows: %w", err)
	}
	return records, nil
}

// DeleteBefore removes records observed strictly before the cutoff and
// reports how many were removed.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE observed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete before: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete before: rows affected: %w", err)
	}
	return n, nil
}

// Clear removes every buffered record.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Count returns the number of buffered records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
