// Package prism provides a Go SDK for the Prism analysis service API:
// ticker analysis, symbol search, market movers, and general news.
package prism

import (
	"fmt"
	"strings"
	"time"
)

// Range identifies a historical window for the price series.
type Range string

// Supported analysis ranges.
const (
	Range1W  Range = "1W"
	Range1M  Range = "1M"
	Range3M  Range = "3M"
	Range6M  Range = "6M"
	RangeYTD Range = "YTD"
	Range1Y  Range = "1Y"
	RangeMax Range = "MAX"
)

// DefaultRange is the window used when a caller does not choose one.
const DefaultRange = Range1W

// ParseRange validates a range token. The comparison is case-insensitive.
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToUpper(strings.TrimSpace(s))); r {
	case Range1W, Range1M, Range3M, Range6M, RangeYTD, Range1Y, RangeMax:
		return r, nil
	default:
		return "", fmt.Errorf("unknown range %q", s)
	}
}

// Signal is the derived buy/sell classification produced by the service.
type Signal string

const (
	SignalStrongBuy  Signal = "STRONG_BUY"
	SignalBuy        Signal = "BUY"
	SignalNeutral    Signal = "NEUTRAL"
	SignalSell       Signal = "SELL"
	SignalStrongSell Signal = "STRONG_SELL"
)

// ParseSignal normalizes the service's human spellings ("Strong Buy") into
// Signal constants. Unrecognized values map to SignalNeutral.
func ParseSignal(s string) Signal {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) {
	case "STRONG_BUY":
		return SignalStrongBuy
	case "BUY":
		return SignalBuy
	case "SELL":
		return SignalSell
	case "STRONG_SELL":
		return SignalStrongSell
	default:
		return SignalNeutral
	}
}

// Query identifies one desired analysis result. Two queries are equivalent
// iff ticker and range match; Force and CompanyName affect cache behavior
// only.
type Query struct {
	Ticker      string
	Range       Range
	Force       bool
	CompanyName string
}

// Normalize trims and upper-cases the ticker and fills in the default
// range. It returns an input error for an empty ticker.
func (q *Query) Normalize() error {
	q.Ticker = strings.ToUpper(strings.TrimSpace(q.Ticker))
	if q.Ticker == "" {
		return &Error{Kind: KindInput, Message: "ticker must not be empty"}
	}
	if q.Range == "" {
		q.Range = DefaultRange
	}
	if _, err := ParseRange(string(q.Range)); err != nil {
		return &Error{Kind: KindInput, Message: err.Error()}
	}
	return nil
}

// Equivalent reports whether two queries name the same analysis result.
func (q Query) Equivalent(o Query) bool {
	return q.Ticker == o.Ticker && q.Range == o.Range
}

// OhlcvPoint is one daily bar of the price series. Date is a calendar date
// in YYYY-MM-DD form. Price mirrors Close for chart consumers.
type OhlcvPoint struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// Time parses the bar's calendar date.
func (p OhlcvPoint) Time() (time.Time, error) {
	return time.Parse("2006-01-02", p.Date)
}

// NewsItem is a single analyzed article. Sentiment is in [-1, 1].
type NewsItem struct {
	Title       string  `json:"title"`
	Publisher   string  `json:"publisher"`
	Link        string  `json:"link"`
	PublishedAt string  `json:"published"`
	Sentiment   float64 `json:"sentiment"`
}

// ExpertOpinion is one expert model's vote inside the quant summary.
type ExpertOpinion struct {
	Signal string  `json:"signal"`
	Score  float64 `json:"score"`
}

// QuantSummary is the composite quant result. FinalScore is in [-100, 100],
// Confidence in [0, 1].
type QuantSummary struct {
	FinalScore     float64                  `json:"final_score"`
	Signal         string                   `json:"signal"`
	Confidence     float64                  `json:"confidence"`
	ExpertOpinions map[string]ExpertOpinion `json:"expert_opinions"`
}

// DebugStats reports how the service sourced article content.
type DebugStats struct {
	Total    int `json:"total"`
	FullText int `json:"full_text"`
	Snippet  int `json:"snippet"`
	Timeouts int `json:"timeouts"`
}

// AnalysisResult is the immutable snapshot returned for one Query. A new
// query always produces a new result; results are never mutated in place.
type AnalysisResult struct {
	CurrentSentiment float64      `json:"current_sentiment"`
	Series           []OhlcvPoint `json:"graph_data"`
	News             []NewsItem   `json:"news"`
	Quant            QuantSummary `json:"quant_analysis"`
	Debug            *DebugStats  `json:"debug,omitempty"`
	Cached           bool         `json:"cached,omitempty"`
}

// QuantSignal returns the summary's signal as a normalized constant.
func (r *AnalysisResult) QuantSignal() Signal {
	return ParseSignal(r.Quant.Signal)
}

// ValidateSeries checks the OHLCV invariants: low <= open,close <= high,
// non-negative volume, chronological order, and no duplicate dates.
func ValidateSeries(series []OhlcvPoint) error {
	var prev time.Time
	for i, p := range series {
		if p.Low > p.Open || p.Open > p.High || p.Low > p.Close || p.Close > p.High {
			return fmt.Errorf("bar %d (%s): open/close outside [low, high]", i, p.Date)
		}
		if p.Volume < 0 {
			return fmt.Errorf("bar %d (%s): negative volume", i, p.Date)
		}
		t, err := p.Time()
		if err != nil {
			return fmt.Errorf("bar %d: bad date %q", i, p.Date)
		}
		if i > 0 {
			if t.Equal(prev) {
				return fmt.Errorf("bar %d: duplicate date %s", i, p.Date)
			}
			if t.Before(prev) {
				return fmt.Errorf("bar %d: date %s out of order", i, p.Date)
			}
		}
		prev = t
	}
	return nil
}

// Suggestion is one symbol-search hit.
type Suggestion struct {
	Symbol         string `json:"symbol"`
	InstrumentName string `json:"instrument_name"`
	Exchange       string `json:"exchange"`
}

// MoverItem is one row of a movers table. Price is the display string the
// service scraped; Change is a percentage.
type MoverItem struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     string  `json:"price"`
	Change    float64 `json:"change"`
	VolumeFmt string  `json:"volume_fmt,omitempty"`
}

// Movers is the shared market-movers snapshot. There is exactly one per
// session.
type Movers struct {
	Gainers []MoverItem `json:"gainers"`
	Losers  []MoverItem `json:"losers"`
	Active  []MoverItem `json:"active"`
}

// Empty reports whether the snapshot carries no rows at all.
func (m *Movers) Empty() bool {
	return m == nil || len(m.Gainers)+len(m.Losers)+len(m.Active) == 0
}

// Headline is one general-news article for the markets view.
type Headline struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Image     string `json:"image,omitempty"`
	Publisher string `json:"publisher"`
	Published string `json:"published"`
}

// WatchlistEntry is one persisted (user, ticker) membership.
type WatchlistEntry struct {
	ID        string
	UserID    string
	Ticker    string
	CreatedAt time.Time
}
