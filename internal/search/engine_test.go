package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prism/pkg/prism"
)

type fakeSearcher struct {
	mu    sync.Mutex
	calls []string
	reply func(text string) ([]prism.Suggestion, error)
	seen  chan string
}

func newFakeSearcher(reply func(string) ([]prism.Suggestion, error)) *fakeSearcher {
	return &fakeSearcher{reply: reply, seen: make(chan string, 16)}
}

func (f *fakeSearcher) Search(_ context.Context, text string) ([]prism.Suggestion, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	f.seen <- text
	return f.reply(text)
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func oneSuggestion(text string) ([]prism.Suggestion, error) {
	return []prism.Suggestion{{Symbol: text, InstrumentName: text + " Inc"}}, nil
}

func nextResult(t *testing.T, e *Engine) Result {
	t.Helper()
	select {
	case r := <-e.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for search result")
		return Result{}
	}
}

func TestBurstOfKeystrokesIssuesOneLookup(t *testing.T) {
	f := newFakeSearcher(oneSuggestion)
	e := NewEngine(f, 20*time.Millisecond, nil)
	defer e.Close()

	for _, text := range []string{"A", "AA", "AAP", "AAPL"} {
		e.SetText(text)
	}

	r := nextResult(t, e)
	for len(r.Suggestions) == 0 {
		// The single-character clear may arrive before the lookup result.
		r = nextResult(t, e)
	}
	if r.Text != "AAPL" {
		t.Errorf("result text = %q, want %q", r.Text, "AAPL")
	}
	if len(r.Suggestions) != 1 || r.Suggestions[0].Symbol != "AAPL" {
		t.Errorf("suggestions = %+v, want one AAPL entry", r.Suggestions)
	}

	time.Sleep(60 * time.Millisecond)
	if got := f.callCount(); got != 1 {
		t.Errorf("lookup count = %d, want 1", got)
	}
}

func TestShortTextClearsWithoutLookup(t *testing.T) {
	f := newFakeSearcher(oneSuggestion)
	e := NewEngine(f, 10*time.Millisecond, nil)
	defer e.Close()

	e.SetText("AAPL")
	e.SetText("A")

	r := nextResult(t, e)
	if len(r.Suggestions) != 0 {
		t.Errorf("suggestions = %+v, want empty after clearing", r.Suggestions)
	}

	time.Sleep(40 * time.Millisecond)
	if got := f.callCount(); got != 0 {
		t.Errorf("lookup count = %d, want 0 (pending lookup should be cancelled)", got)
	}
}

func TestThresholdCountsRunesNotBytes(t *testing.T) {
	f := newFakeSearcher(oneSuggestion)
	e := NewEngine(f, 5*time.Millisecond, nil)
	defer e.Close()

	// One CJK character is multiple bytes but still a single character,
	// so it clears instead of dispatching.
	e.SetText("索")
	r := nextResult(t, e)
	if len(r.Suggestions) != 0 {
		t.Errorf("suggestions = %+v, want cleared for a single rune", r.Suggestions)
	}

	time.Sleep(40 * time.Millisecond)
	if got := f.callCount(); got != 0 {
		t.Errorf("lookup count = %d, want 0 for a single rune", got)
	}

	e.SetText("索尼")
	if r := nextResult(t, e); r.Text != "索尼" {
		t.Errorf("result text = %q, want the two-rune query dispatched", r.Text)
	}
}

func TestSupersededResponseDropped(t *testing.T) {
	release := make(chan struct{})
	f := newFakeSearcher(func(text string) ([]prism.Suggestion, error) {
		if text == "AAPL" {
			<-release
		}
		return oneSuggestion(text)
	})
	e := NewEngine(f, 5*time.Millisecond, nil)
	defer e.Close()

	e.SetText("AAPL")
	<-f.seen
	e.SetText("MSFT")
	<-f.seen

	// The older lookup completes only after the newer one has been issued.
	close(release)

	r := nextResult(t, e)
	if r.Text != "MSFT" {
		t.Fatalf("result text = %q, want MSFT", r.Text)
	}

	select {
	case r := <-e.Results():
		if r.Text == "AAPL" {
			t.Error("superseded AAPL response leaked through")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLookupFailureClearsSuggestions(t *testing.T) {
	f := newFakeSearcher(func(text string) ([]prism.Suggestion, error) {
		if text == "AAPL" {
			return nil, errors.New("connection refused")
		}
		return oneSuggestion(text)
	})
	e := NewEngine(f, 5*time.Millisecond, nil)
	defer e.Close()

	// A good lookup first, so there is a visible list to go stale.
	e.SetText("AAP")
	r := nextResult(t, e)
	if len(r.Suggestions) != 1 {
		t.Fatalf("suggestions = %+v, want one AAP entry", r.Suggestions)
	}

	e.SetText("AAPL")
	r = nextResult(t, e)
	if r.Text != "AAPL" {
		t.Fatalf("result text = %q, want AAPL", r.Text)
	}
	if len(r.Suggestions) != 0 {
		t.Errorf("suggestions = %+v, want an empty list after a failed lookup", r.Suggestions)
	}

	// The engine keeps working after a failure.
	e.SetText("MSFT")
	if r := nextResult(t, e); r.Text != "MSFT" || len(r.Suggestions) != 1 {
		t.Errorf("result = %+v, want MSFT suggestions after recovery", r)
	}
}
