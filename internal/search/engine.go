// Package search debounces free-text symbol lookups so that a burst of
// keystrokes produces a single request for the final text.
package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"prism/pkg/prism"
)

// DefaultDebounce is the quiet period after the last keystroke before a
// lookup is dispatched.
const DefaultDebounce = 300 * time.Millisecond

// Searcher performs the remote symbol lookup.
type Searcher interface {
	Search(ctx context.Context, text string) ([]prism.Suggestion, error)
}

// Result pairs a suggestion list with the text that produced it.
type Result struct {
	Text        string
	Suggestions []prism.Suggestion
}

// Engine owns one pending lookup at a time. SetText is cheap to call on
// every keystroke: a previously scheduled lookup is rescheduled, and a
// response for text the user has since typed past is dropped.
type Engine struct {
	searcher Searcher
	debounce time.Duration
	log      *slog.Logger

	mu         sync.Mutex
	timer      *time.Timer
	lastIssued string

	results chan Result
}

// NewEngine creates an idle engine. A non-positive debounce falls back to
// DefaultDebounce.
func NewEngine(s Searcher, debounce time.Duration, log *slog.Logger) *Engine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		searcher: s,
		debounce: debounce,
		log:      log,
		results:  make(chan Result, 8),
	}
}

// Results returns the channel suggestion lists arrive on. Like the
// analysis updates channel it is coalescing: a slow consumer sees the
// newest list, not every intermediate one.
func (e *Engine) Results() <-chan Result {
	return e.results
}

// SetText registers the current input text. Text of one character or
// fewer (after trimming) cancels any pending lookup and clears the
// suggestion list; anything longer restarts the quiet-period timer.
func (e *Engine) SetText(text string) {
	trimmed := strings.TrimSpace(text)

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if utf8.RuneCountInString(trimmed) <= 1 {
		e.lastIssued = ""
		e.mu.Unlock()
		e.publish(Result{Text: trimmed})
		return
	}
	e.timer = time.AfterFunc(e.debounce, func() { e.dispatch(trimmed) })
	e.mu.Unlock()
}

// Close cancels any pending lookup.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) dispatch(text string) {
	e.mu.Lock()
	e.lastIssued = text
	e.mu.Unlock()

	suggestions, err := e.searcher.Search(context.Background(), text)

	e.mu.Lock()
	stale := e.lastIssued != text
	e.mu.Unlock()
	if stale {
		e.log.Debug("dropping superseded search response", "text", text)
		return
	}
	if err != nil {
		// Lookup failures never surface as an error; the suggestion
		// list clears instead of going stale.
		e.log.Warn("symbol search failed", "text", text, "error", err)
		e.publish(Result{Text: text})
		return
	}
	e.publish(Result{Text: text, Suggestions: suggestions})
}

func (e *Engine) publish(r Result) {
	for {
		select {
		case e.results <- r:
			return
		default:
			select {
			case <-e.results:
			default:
			}
		}
	}
}
