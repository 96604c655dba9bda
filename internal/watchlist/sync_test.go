package watchlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"prism/pkg/prism"
)

// fakeStore implements store.WatchlistStore in memory with switchable
// failure modes.
type fakeStore struct {
	entries map[string][]prism.WatchlistEntry // by user id
	failAdd bool
	failDel bool
	lists   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string][]prism.WatchlistEntry{}}
}

func (f *fakeStore) ListWatchlist(_ context.Context, userID string) ([]prism.WatchlistEntry, error) {
	f.lists++
	return append([]prism.WatchlistEntry(nil), f.entries[userID]...), nil
}

func (f *fakeStore) AddWatch(_ context.Context, userID, ticker string) (*prism.WatchlistEntry, error) {
	if f.failAdd {
		return nil, errors.New("insert failed")
	}
	e := prism.WatchlistEntry{ID: "id-" + ticker, UserID: userID, Ticker: ticker, CreatedAt: time.Now()}
	f.entries[userID] = append([]prism.WatchlistEntry{e}, f.entries[userID]...)
	return &e, nil
}

func (f *fakeStore) RemoveWatch(_ context.Context, userID, ticker string) error {
	if f.failDel {
		return errors.New("delete failed")
	}
	kept := f.entries[userID][:0]
	for _, e := range f.entries[userID] {
		if e.Ticker != ticker {
			kept = append(kept, e)
		}
	}
	f.entries[userID] = kept
	return nil
}

func TestToggleAddsThenRemoves(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil)
	s.SetContext("user-1")
	ctx := context.Background()

	watched, err := s.Toggle(ctx, "tsla")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !watched {
		t.Error("first toggle should add")
	}
	if !s.IsWatchlisted("TSLA") || !s.IsWatchlisted("tsla") {
		t.Error("membership check should be case-insensitive")
	}
	if len(st.entries["user-1"]) != 1 || st.entries["user-1"][0].Ticker != "TSLA" {
		t.Errorf("store entries = %+v, want one TSLA row", st.entries["user-1"])
	}

	watched, err = s.Toggle(ctx, "TSLA")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if watched {
		t.Error("second toggle should remove")
	}
	if s.IsWatchlisted("TSLA") {
		t.Error("ticker should be gone from the mirror")
	}
	if len(st.entries["user-1"]) != 0 {
		t.Errorf("store entries = %+v, want none", st.entries["user-1"])
	}
}

func TestToggleAddFailureRollsBack(t *testing.T) {
	st := newFakeStore()
	st.failAdd = true
	s := NewSyncer(st, nil)
	s.SetContext("user-1")

	watched, err := s.Toggle(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("Toggle should surface the store error")
	}
	if watched {
		t.Error("settled state should be unwatched after rollback")
	}
	if s.IsWatchlisted("AAPL") {
		t.Error("optimistic add should have been reverted")
	}
}

func TestToggleRemoveFailureRollsBack(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil)
	s.SetContext("user-1")
	ctx := context.Background()

	if _, err := s.Toggle(ctx, "AAPL"); err != nil {
		t.Fatal(err)
	}
	st.failDel = true

	watched, err := s.Toggle(ctx, "AAPL")
	if err == nil {
		t.Fatal("Toggle should surface the store error")
	}
	if !watched {
		t.Error("settled state should still be watched after rollback")
	}
	if !s.IsWatchlisted("AAPL") {
		t.Error("optimistic remove should have been reverted")
	}
}

func TestGuestToggleIsNoOp(t *testing.T) {
	st := newFakeStore()
	s := NewSyncer(st, nil)

	watched, err := s.Toggle(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if watched {
		t.Error("guest toggle should report unwatched")
	}
	if len(st.entries) != 0 {
		t.Error("guest toggle must not write to the store")
	}
}

func TestSetContextLazyLoads(t *testing.T) {
	st := newFakeStore()
	st.entries["user-1"] = []prism.WatchlistEntry{
		{ID: "id-NVDA", UserID: "user-1", Ticker: "NVDA", CreatedAt: time.Now()},
	}
	s := NewSyncer(st, nil)
	s.SetContext("user-1")
	if st.lists != 0 {
		t.Error("SetContext should not fetch eagerly")
	}

	entries, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Ticker != "NVDA" {
		t.Errorf("entries = %+v, want persisted NVDA row", entries)
	}
	if st.lists != 1 {
		t.Errorf("store fetch count = %d, want 1", st.lists)
	}

	// A second List serves from the mirror.
	if _, err := s.List(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st.lists != 1 {
		t.Errorf("store fetch count = %d, want still 1", st.lists)
	}
}

func TestSwitchingUserDropsMirror(t *testing.T) {
	st := newFakeStore()
	st.entries["user-1"] = []prism.WatchlistEntry{
		{ID: "id-NVDA", UserID: "user-1", Ticker: "NVDA", CreatedAt: time.Now()},
	}
	s := NewSyncer(st, nil)
	s.SetContext("user-1")
	if _, err := s.List(context.Background()); err != nil {
		t.Fatal(err)
	}

	s.SetContext("user-2")
	if s.IsWatchlisted("NVDA") {
		t.Error("mirror should be dropped on user switch")
	}
	entries, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("user-2 entries = %+v, want none", entries)
	}
}
