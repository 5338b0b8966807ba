package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "waypost.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(ms int64) record.Record {
	return record.Record{
		Timestamp: time.UnixMilli(ms).UTC(),
		Context:   record.ContextPassive,
		Fields:    map[string]any{"latitude": 1.0},
	}
}

func TestAppendAndOldest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Oldest(ctx); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	if err := s.Append(ctx, []record.Record{rec(3000), rec(1000), rec(2000)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Oldest is by insertion order, not timestamp.
	oldest, ok, err := s.Oldest(ctx)
	if err != nil || !ok {
		t.Fatalf("oldest: ok=%v err=%v", ok, err)
	}
	if oldest.Timestamp.UnixMilli() != 3000 {
		t.Errorf("expected first-inserted record, got %d", oldest.Timestamp.UnixMilli())
	}

	count, err := s.Count(ctx)
	if err != nil || count != 3 {
		t.Errorf("expected count 3, got %d (%v)", count, err)
	}
}

func TestAllSinceIsStrict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, []record.Record{rec(1000), rec(2000), rec(3000)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.AllSince(ctx, time.UnixMilli(2000))
	if err != nil {
		t.Fatalf("all since: %v", err)
	}
	if len(got) != 1 || got[0].Timestamp.UnixMilli() != 3000 {
		t.Errorf("expected only the record strictly after the watermark, got %d records", len(got))
	}

	// Distant past returns everything.
	all, err := s.AllSince(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 records from distant past, got %d", len(all))
	}

	// Idempotent with no intervening writes.
	again, err := s.AllSince(ctx, time.UnixMilli(2000))
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != len(got) || !again[0].Timestamp.Equal(got[0].Timestamp) {
		t.Error("repeated query returned a different sequence")
	}
}

func TestDeleteBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, []record.Record{rec(1000), rec(2000), rec(3000)}); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteBefore(ctx, time.UnixMilli(2000))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	// The cutoff record itself is retained.
	remaining, err := s.AllSince(ctx, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 || remaining[0].Timestamp.UnixMilli() != 2000 {
		t.Errorf("expected records at 2000 and 3000 retained, got %d", len(remaining))
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, []record.Record{rec(1000)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	count, err := s.Count(ctx)
	if err != nil || count != 0 {
		t.Errorf("expected empty store after clear, got %d (%v)", count, err)
	}
}

func TestOldestCorruptRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (observed_at, payload) VALUES (?, ?)`,
		time.Now().UnixNano(), []byte(`{not json`))
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = s.Oldest(ctx)
	if !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestAllSinceSkipsCorruptRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, []record.Record{rec(1000)}); err != nil {
		t.Fatal(err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (observed_at, payload) VALUES (?, ?)`,
		time.UnixMilli(2000).UnixNano(), []byte(`{not json`))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, []record.Record{rec(3000)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.AllSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("all since: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected corrupt row skipped, got %d records", len(got))
	}
}

func TestWatermarkDefaultsToDistantPast(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	wm, err := s.Get(ctx, "https://api.example.com/locations")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !wm.IsZero() {
		t.Errorf("expected zero time for unknown endpoint, got %v", wm)
	}
}

func TestWatermarkSetGetAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.UnixMilli(1700000000000).UTC()
	if err := s.Set(ctx, "https://a.example.com", ts); err != nil {
		t.Fatalf("set: %v", err)
	}

	wm, err := s.Get(ctx, "https://a.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !wm.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, wm)
	}

	// Upsert replaces.
	later := ts.Add(time.Minute)
	if err := s.Set(ctx, "https://a.example.com", later); err != nil {
		t.Fatal(err)
	}
	wm, _ = s.Get(ctx, "https://a.example.com")
	if !wm.Equal(later) {
		t.Errorf("expected updated watermark %v, got %v", later, wm)
	}

	if err := s.Set(ctx, "https://b.example.com", ts); err != nil {
		t.Fatal(err)
	}
	marks, err := s.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 2 {
		t.Errorf("expected 2 watermarks, got %d", len(marks))
	}
}

func TestWatermarkSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waypost.db")
	ctx := context.Background()

	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ts := time.UnixMilli(42000).UTC()
	if err := s.Set(ctx, "https://a.example.com", ts); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s2.Close() }()

	wm, err := s2.Get(ctx, "https://a.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !wm.Equal(ts) {
		t.Errorf("watermark did not survive reopen: %v", wm)
	}
}
