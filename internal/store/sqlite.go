package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"prism/internal/util"
	"prism/pkg/prism"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ WatchlistStore = (*SQLiteStore)(nil)
var _ SnapshotStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS watchlist_entries (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, ticker)
);

CREATE TABLE IF NOT EXISTS kv_snapshots (
	key      TEXT PRIMARY KEY,
	payload  BLOB NOT NULL,
	saved_at TIMESTAMP NOT NULL
);
`

// writeRetries covers transient SQLITE_BUSY errors from overlapping
// writers on the same file.
const writeRetries = 3

// SQLiteStore implements WatchlistStore and SnapshotStore backed by a
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// the schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListWatchlist returns the user's entries, newest first.
func (s *SQLiteStore) ListWatchlist(ctx context.Context, userID string) ([]prism.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, ticker, created_at FROM watchlist_entries
		 WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var entries []prism.WatchlistEntry
	for rows.Next() {
		var e prism.WatchlistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Ticker, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan watchlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddWatch inserts an entry for the ticker, upper-cased. Re-adding a
// ticker that is already present returns the existing entry unchanged.
func (s *SQLiteStore) AddWatch(ctx context.Context, userID, ticker string) (*prism.WatchlistEntry, error) {
	entry := prism.WatchlistEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Ticker:    strings.ToUpper(ticker),
		CreatedAt: time.Now().UTC(),
	}
	err := util.Retry(ctx, writeRetries, 50*time.Millisecond, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO watchlist_entries (id, user_id, ticker, created_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id, ticker) DO NOTHING`,
			entry.ID, entry.UserID, entry.Ticker, entry.CreatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add watch: %w", err)
	}

	// Read back so a conflicting insert returns the original row.
	var got prism.WatchlistEntry
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user_id, ticker, created_at FROM watchlist_entries
		 WHERE user_id = ? AND ticker = ?`, entry.UserID, entry.Ticker).
		Scan(&got.ID, &got.UserID, &got.Ticker, &got.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("read back watch: %w", err)
	}
	return &got, nil
}

// RemoveWatch deletes the entry for the ticker, if any.
func (s *SQLiteStore) RemoveWatch(ctx context.Context, userID, ticker string) error {
	err := util.Retry(ctx, writeRetries, 50*time.Millisecond, func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM watchlist_entries WHERE user_id = ? AND ticker = ?`,
			userID, strings.ToUpper(ticker))
		return err
	})
	if err != nil {
		return fmt.Errorf("remove watch: %w", err)
	}
	return nil
}

// LoadSnapshot returns the payload saved under key, or nil data when the
// key does not exist.
func (s *SQLiteStore) LoadSnapshot(key string) ([]byte, time.Time, error) {
	var payload []byte
	var savedAt time.Time
	err := s.db.QueryRow(
		`SELECT payload, saved_at FROM kv_snapshots WHERE key = ?`, key).
		Scan(&payload, &savedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	return payload, savedAt, nil
}

// SaveSnapshot writes (or replaces) the payload under key.
func (s *SQLiteStore) SaveSnapshot(key string, data []byte, at time.Time) error {
	err := util.Retry(context.Background(), writeRetries, 50*time.Millisecond, func() error {
		_, err := s.db.Exec(
			`INSERT INTO kv_snapshots (key, payload, saved_at) VALUES (?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
			key, data, at.UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return nil
}
