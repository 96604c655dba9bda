package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prism.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWatchlistAddListRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry, err := s.AddWatch(ctx, "user-1", "tsla")
	if err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	if entry.Ticker != "TSLA" {
		t.Errorf("ticker = %q, want upper-cased TSLA", entry.Ticker)
	}
	if entry.ID == "" {
		t.Error("entry should get a generated id")
	}

	if _, err := s.AddWatch(ctx, "user-1", "AAPL"); err != nil {
		t.Fatalf("AddWatch: %v", err)
	}

	entries, err := s.ListWatchlist(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListWatchlist: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}

	if err := s.RemoveWatch(ctx, "user-1", "TSLA"); err != nil {
		t.Fatalf("RemoveWatch: %v", err)
	}
	entries, err = s.ListWatchlist(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListWatchlist: %v", err)
	}
	if len(entries) != 1 || entries[0].Ticker != "AAPL" {
		t.Errorf("entries = %+v, want only AAPL", entries)
	}
}

func TestAddWatchIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.AddWatch(ctx, "user-1", "NVDA")
	if err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	second, err := s.AddWatch(ctx, "user-1", "nvda")
	if err != nil {
		t.Fatalf("AddWatch again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-add id = %q, want the original %q", second.ID, first.ID)
	}

	entries, err := s.ListWatchlist(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListWatchlist: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len = %d, want 1 (no duplicate rows)", len(entries))
	}
}

func TestWatchlistIsolatedPerUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AddWatch(ctx, "user-1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ListWatchlist(ctx, "user-2")
	if err != nil {
		t.Fatalf("ListWatchlist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("user-2 entries = %+v, want none", entries)
	}
}

func TestRemoveWatchMissingTickerIsNoError(t *testing.T) {
	s := openTestStore(t)
	if err := s.RemoveWatch(context.Background(), "user-1", "AAPL"); err != nil {
		t.Errorf("RemoveWatch on empty table: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	if err := s.SaveSnapshot("market_movers", []byte(`{"gainers":[]}`), at); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	data, savedAt, err := s.LoadSnapshot("market_movers")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if string(data) != `{"gainers":[]}` {
		t.Errorf("payload = %s", data)
	}
	if !savedAt.Equal(at) {
		t.Errorf("saved_at = %v, want %v", savedAt, at)
	}

	// Overwrite replaces the payload in place.
	if err := s.SaveSnapshot("market_movers", []byte(`{}`), at.Add(time.Hour)); err != nil {
		t.Fatalf("SaveSnapshot overwrite: %v", err)
	}
	data, savedAt, err = s.LoadSnapshot("market_movers")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if string(data) != `{}` || !savedAt.Equal(at.Add(time.Hour)) {
		t.Errorf("payload = %s at %v after overwrite", data, savedAt)
	}
}

func TestLoadSnapshotMissingKey(t *testing.T) {
	s := openTestStore(t)
	data, _, err := s.LoadSnapshot("nope")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if data != nil {
		t.Errorf("data = %v, want nil for a missing key", data)
	}
}
