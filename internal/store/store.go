// Package store defines the persistence interfaces for watchlist entries
// and cached snapshots, with a SQLite implementation.
package store

import (
	"context"
	"time"

	"prism/pkg/prism"
)

// WatchlistStore persists per-user watchlist entries.
type WatchlistStore interface {
	// ListWatchlist returns the user's entries, newest first.
	ListWatchlist(ctx context.Context, userID string) ([]prism.WatchlistEntry, error)

	// AddWatch inserts an entry for the ticker. Adding a ticker that is
	// already present returns the existing entry.
	AddWatch(ctx context.Context, userID, ticker string) (*prism.WatchlistEntry, error)

	// RemoveWatch deletes the entry for the ticker, if any.
	RemoveWatch(ctx context.Context, userID, ticker string) error
}

// SnapshotStore persists opaque payloads keyed by name, so caches survive
// a restart.
type SnapshotStore interface {
	// LoadSnapshot returns the payload and the time it was saved. A
	// missing key returns nil data and no error.
	LoadSnapshot(key string) ([]byte, time.Time, error)

	// SaveSnapshot writes (or replaces) the payload under key.
	SaveSnapshot(key string, data []byte, at time.Time) error
}
