// Package watchlist mirrors the user's persisted watchlist in memory so
// membership checks are instant, applying changes optimistically and
// rolling them back when persistence fails.
package watchlist

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"prism/internal/store"
	"prism/pkg/prism"
)

// Syncer holds the in-memory mirror for the current user. An empty user
// id means a guest session: membership checks report false and toggles
// are no-ops.
//
// All operations are serialized by one mutex, so overlapping toggles for
// the same ticker cannot interleave their store writes.
type Syncer struct {
	store store.WatchlistStore
	log   *slog.Logger

	mu      sync.Mutex
	userID  string
	loaded  bool
	entries []prism.WatchlistEntry // newest first
}

// NewSyncer creates a guest-session syncer.
func NewSyncer(st store.WatchlistStore, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{store: st, log: log}
}

// SetContext switches the syncer to the given user. The mirror is
// dropped and refetched on the next access; switching to the same user
// is a no-op.
func (s *Syncer) SetContext(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == s.userID && s.loaded {
		return
	}
	s.userID = userID
	s.entries = nil
	s.loaded = userID == "" // a guest mirror is trivially loaded
}

// IsWatchlisted reports whether the ticker is in the mirror. The check is
// case-insensitive and never touches the store.
func (s *Syncer) IsWatchlisted(ticker string) bool {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(ticker) >= 0
}

// List returns the user's entries, newest first, fetching the mirror if
// it has not been loaded yet.
func (s *Syncer) List(ctx context.Context) ([]prism.WatchlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]prism.WatchlistEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Toggle flips the ticker's membership. The mirror is updated first so
// the UI reflects the change immediately; if the store write then fails,
// the mirror is reverted and the error returned. The returned bool is
// the membership state after the toggle settles.
//
// Guest sessions ignore toggles.
func (s *Syncer) Toggle(ctx context.Context, ticker string) (bool, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return false, &prism.Error{Kind: prism.KindInput, Message: "ticker must not be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return false, nil
	}
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	if i := s.indexOf(ticker); i >= 0 {
		removed := s.entries[i]
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		if err := s.store.RemoveWatch(ctx, s.userID, ticker); err != nil {
			s.entries = append(s.entries[:i], append([]prism.WatchlistEntry{removed}, s.entries[i:]...)...)
			s.log.Warn("watchlist remove failed, reverting", "ticker", ticker, "error", err)
			return true, err
		}
		return false, nil
	}

	placeholder := prism.WatchlistEntry{UserID: s.userID, Ticker: ticker, CreatedAt: time.Now()}
	s.entries = append([]prism.WatchlistEntry{placeholder}, s.entries...)
	entry, err := s.store.AddWatch(ctx, s.userID, ticker)
	if err != nil {
		s.entries = s.entries[1:]
		s.log.Warn("watchlist add failed, reverting", "ticker", ticker, "error", err)
		return false, err
	}
	s.entries[0] = *entry
	return true, nil
}

// Refresh drops the mirror and refetches it from the store.
func (s *Syncer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = s.userID == ""
	s.entries = nil
	return s.ensureLoaded(ctx)
}

// ensureLoaded fetches the mirror if needed. Callers hold s.mu.
func (s *Syncer) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	entries, err := s.store.ListWatchlist(ctx, s.userID)
	if err != nil {
		return err
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// indexOf returns the position of ticker in the mirror, or -1. Callers
// hold s.mu.
func (s *Syncer) indexOf(ticker string) int {
	for i, e := range s.entries {
		if e.Ticker == ticker {
			return i
		}
	}
	return -1
}
