package prism

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"prism/internal/util"
)

// Client is an HTTP client for the Prism analysis service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit paces requests to perMinute calls per minute.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) { c.limiter = util.NewRateLimiter(perMinute) }
}

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze fetches the full analysis payload for a query. Failures are
// returned as *Error with the appropriate kind; a structurally invalid
// price series is rejected as an application error rather than returned.
func (c *Client) Analyze(ctx context.Context, q Query) (*AnalysisResult, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("ticker", q.Ticker)
	params.Set("range", string(q.Range))
	params.Set("force", strconv.FormatBool(q.Force))
	if q.CompanyName != "" {
		params.Set("name", q.CompanyName)
	}

	body, err := c.get(ctx, "/api/analyze", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		AnalysisResult
		ErrMsg string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "malformed response from analysis service", cause: err}
	}
	if payload.ErrMsg != "" {
		return nil, &Error{Kind: KindApplication, Message: payload.ErrMsg}
	}
	if err := ValidateSeries(payload.Series); err != nil {
		return nil, &Error{Kind: KindApplication, Message: fmt.Sprintf("invalid price series: %v", err), cause: err}
	}

	res := payload.AnalysisResult
	return &res, nil
}

// Search looks up ticker suggestions for free text.
func (c *Client) Search(ctx context.Context, text string) ([]Suggestion, error) {
	params := url.Values{}
	params.Set("q", text)

	body, err := c.get(ctx, "/api/search", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data []Suggestion `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "malformed search response", cause: err}
	}
	return payload.Data, nil
}

// MarketMovers fetches the shared gainers/losers/active snapshot.
func (c *Client) MarketMovers(ctx context.Context) (*Movers, error) {
	body, err := c.get(ctx, "/api/market-movers", nil)
	if err != nil {
		return nil, err
	}

	var m Movers
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "malformed movers response", cause: err}
	}
	return &m, nil
}

// GeneralNews fetches curated market headlines. The timestamp param busts
// intermediate caches; force asks the service to refresh its own cache.
func (c *Client) GeneralNews(ctx context.Context, force bool) ([]Headline, error) {
	params := url.Values{}
	params.Set("t", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if force {
		params.Set("force", "true")
	}

	body, err := c.get(ctx, "/api/general-news", params)
	if err != nil {
		return nil, err
	}

	var items []Headline
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "malformed news response", cause: err}
	}
	return items, nil
}

// get performs a GET against the service and returns the response body for
// 2xx statuses. Non-2xx statuses are mapped to server errors preferring
// the body's error field, then the status text, then a generic message.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindNetwork, Message: "request cancelled", cause: err}
		}
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to build request", cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to connect to analysis service", cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to read response", cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(body, resp.StatusCode)
		c.log.Debug("server error", "path", path, "status", resp.StatusCode, "message", msg)
		return nil, &Error{Kind: KindServer, Message: msg, Status: resp.StatusCode}
	}
	return body, nil
}

func serverMessage(body []byte, status int) string {
	var payload struct {
		ErrMsg string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.ErrMsg != "" {
		return payload.ErrMsg
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("Server Error (%d)", status)
}
