// Package analysis sequences ticker analysis requests and exposes a single
// current result. A monotonically increasing epoch is assigned to every
// dispatched query; late responses from superseded epochs are discarded
// without touching the visible state.
package analysis

import (
	"context"
	"log/slog"
	"sync"

	"prism/pkg/prism"
)

// State is the controller's visible phase.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Fetcher is the network boundary the controller dispatches to.
type Fetcher interface {
	Analyze(ctx context.Context, q prism.Query) (*prism.AnalysisResult, error)
}

// Snapshot is an immutable view of the controller state. Result is nil
// until a query for the current ticker has succeeded; Err is the
// user-visible error slot, empty unless State is StateFailed.
type Snapshot struct {
	State       State
	Ticker      string
	CompanyName string
	Range       prism.Range
	Result      *prism.AnalysisResult
	Err         string
	Epoch       uint64
}

// Controller is the analysis request state machine. All methods are safe
// for concurrent use.
type Controller struct {
	fetcher Fetcher
	log     *slog.Logger

	mu    sync.Mutex
	epoch uint64
	snap  Snapshot

	updates chan Snapshot
}

// NewController creates a controller in StateIdle.
func NewController(f Fetcher, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		fetcher: f,
		log:     log,
		updates: make(chan Snapshot, 8),
	}
}

// Updates returns a channel carrying state snapshots. The channel is
// coalescing: if the consumer falls behind, older snapshots are dropped in
// favor of newer ones.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Submit registers a new analysis intent and dispatches its fetch. An
// invalid ticker is rejected before any state change or network call.
//
// If the ticker differs from the currently displayed one (or force is
// set), the displayed result is cleared immediately; a range change for
// the same ticker keeps the previous result on screen until the new one
// arrives.
func (c *Controller) Submit(ticker string, rng prism.Range, force bool, companyName string) error {
	q := prism.Query{Ticker: ticker, Range: rng, Force: force, CompanyName: companyName}
	if err := q.Normalize(); err != nil {
		return err
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	if q.Ticker != c.snap.Ticker || force {
		c.snap.Result = nil
	}
	c.snap.State = StateLoading
	c.snap.Ticker = q.Ticker
	c.snap.Range = q.Range
	c.snap.CompanyName = q.CompanyName
	c.snap.Err = ""
	c.snap.Epoch = epoch
	snap := c.snap
	c.mu.Unlock()

	c.publish(snap)
	c.log.Debug("dispatching analysis", "ticker", q.Ticker, "range", q.Range, "force", q.Force, "epoch", epoch)

	go func() {
		res, err := c.fetcher.Analyze(context.Background(), q)
		c.commit(epoch, res, err)
	}()
	return nil
}

// Refresh re-submits the current ticker with a forced cache bypass,
// preserving the currently selected range.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	ticker, rng, name := c.snap.Ticker, c.snap.Range, c.snap.CompanyName
	c.mu.Unlock()
	return c.Submit(ticker, rng, true, name)
}

// commit applies a fetch outcome if its epoch is still the latest. A
// superseded outcome is dropped unconditionally, success or error alike.
func (c *Controller) commit(epoch uint64, res *prism.AnalysisResult, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		latest := c.epoch
		c.mu.Unlock()
		c.log.Debug("discarding stale response", "epoch", epoch, "latest", latest)
		return
	}

	if err != nil {
		c.snap.State = StateFailed
		c.snap.Err = errorMessage(err)
	} else {
		c.snap.State = StateReady
		c.snap.Result = res
		c.snap.Err = ""
	}
	snap := c.snap
	c.mu.Unlock()

	c.publish(snap)
	if err != nil {
		c.log.Warn("analysis failed", "ticker", snap.Ticker, "range", snap.Range, "error", err)
	} else {
		c.log.Info("analysis ready", "ticker", snap.Ticker, "range", snap.Range, "bars", len(res.Series))
	}
}

// publish pushes a snapshot, dropping the oldest queued one when full.
func (c *Controller) publish(snap Snapshot) {
	for {
		select {
		case c.updates <- snap:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

func errorMessage(err error) string {
	if pe := prism.AsError(err); pe != nil {
		return pe.Message
	}
	return err.Error()
}
