package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"prism/internal/analysis"
	"prism/internal/config"
	"prism/internal/movers"
	"prism/internal/search"
	"prism/internal/store"
	"prism/internal/util"
	"prism/internal/watchlist"
	"prism/pkg/prism"
)

// Styles.
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	tickerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	watchStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	rangeOnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	selStyle       = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236"))
	signalStyles   = map[prism.Signal]lipgloss.Style{
		prism.SignalStrongBuy:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		prism.SignalBuy:        gainStyle,
		prism.SignalNeutral:    dimStyle,
		prism.SignalSell:       lossStyle,
		prism.SignalStrongSell: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

// ranges in the order the [ and ] keys cycle through.
var rangeOrder = []prism.Range{
	prism.Range1W, prism.Range1M, prism.Range3M, prism.Range6M,
	prism.RangeYTD, prism.Range1Y, prism.RangeMax,
}

// trendingLimit is how many most-active symbols the landing view shows.
const trendingLimit = 4

// Messages.
type analysisMsg analysis.Snapshot

type searchMsg search.Result

type warmupMsg struct {
	movers   prism.Movers
	trending []prism.MoverItem
	news     []prism.Headline
}

type watchToggleMsg struct {
	ticker  string
	watched bool
	err     error
}

type watchLoadedMsg struct {
	tickers []string
	err     error
}

type model struct {
	cfg    *config.Config
	logger *slog.Logger
	client *prism.Client

	ctrl   *analysis.Controller
	engine *search.Engine
	cache  *movers.Cache
	wl     *watchlist.Syncer

	input       textinput.Model
	suggestions []prism.Suggestion
	selIdx      int

	snap     analysis.Snapshot
	rng      prism.Range
	movers   prism.Movers
	trending []prism.MoverItem
	news     []prism.Headline
	watching []string
	status   string

	viewport      viewport.Model
	ready         bool
	width, height int
}

func initialModel(cfg *config.Config, logger *slog.Logger, client *prism.Client, ctrl *analysis.Controller, engine *search.Engine, cache *movers.Cache, wl *watchlist.Syncer) model {
	ti := textinput.New()
	ti.Placeholder = "search ticker or company"
	ti.Prompt = "> "
	ti.CharLimit = 40
	ti.Focus()
	return model{
		cfg:    cfg,
		logger: logger,
		client: client,
		ctrl:   ctrl,
		engine: engine,
		cache:  cache,
		wl:     wl,
		input:  ti,
		rng:    prism.DefaultRange,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.warmupCmd(false),
		waitAnalysis(m.ctrl),
		waitSearch(m.engine),
	)
}

// warmupCmd fetches the landing-page data concurrently: the movers
// snapshot and the general news feed. Either half may fail quietly; the
// landing view just renders without it. With force set both feeds bypass
// their caches.
func (m model) warmupCmd(force bool) tea.Cmd {
	cache, client, logger := m.cache, m.client, m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var msg warmupMsg
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// The landing view should not hang on a slow movers scrape.
			mctx, mcancel := context.WithTimeout(gctx, 2*time.Second)
			defer mcancel()
			msg.movers = cache.Get(mctx, force)
			msg.trending = cache.Trending(mctx, trendingLimit)
			return nil
		})
		g.Go(func() error {
			news, err := client.GeneralNews(gctx, force)
			if err != nil {
				logger.Warn("news warm-up failed", "error", err)
				return nil
			}
			msg.news = news
			return nil
		})
		_ = g.Wait() // both halves swallow their own failures
		return msg
	}
}

// waitAnalysis blocks on the controller's update stream and forwards the
// next snapshot into the program.
func waitAnalysis(ctrl *analysis.Controller) tea.Cmd {
	return func() tea.Msg {
		return analysisMsg(<-ctrl.Updates())
	}
}

func waitSearch(engine *search.Engine) tea.Cmd {
	return func() tea.Msg {
		return searchMsg(<-engine.Results())
	}
}

func loadWatchlistCmd(wl *watchlist.Syncer) tea.Cmd {
	return func() tea.Msg {
		entries, err := wl.List(context.Background())
		if err != nil {
			return watchLoadedMsg{err: err}
		}
		tickers := make([]string, len(entries))
		for i, e := range entries {
			tickers[i] = e.Ticker
		}
		return watchLoadedMsg{tickers: tickers}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.engine.Close()
			return m, tea.Quit
		case "enter":
			return m.commitSelection()
		case "up", "down":
			if len(m.suggestions) > 0 {
				if msg.String() == "up" && m.selIdx > 0 {
					m.selIdx--
				}
				if msg.String() == "down" && m.selIdx < len(m.suggestions)-1 {
					m.selIdx++
				}
				m.refreshContent()
				return m, nil
			}
			if m.ready {
				var cmd tea.Cmd
				m.viewport, cmd = m.viewport.Update(msg)
				return m, cmd
			}
			return m, nil
		case "[", "]":
			if m.snap.Ticker == "" {
				return m, nil
			}
			delta := 1
			if msg.String() == "[" {
				delta = -1
			}
			m.rng = cycleRange(m.rng, delta)
			if err := m.ctrl.Submit(m.snap.Ticker, m.rng, false, m.snap.CompanyName); err != nil {
				m.status = err.Error()
			}
			m.refreshContent()
			return m, nil
		case "ctrl+r":
			if err := m.ctrl.Refresh(); err != nil {
				m.status = err.Error()
				m.refreshContent()
			}
			return m, nil
		case "ctrl+w":
			if m.snap.Ticker == "" {
				return m, nil
			}
			return m, m.toggleWatchCmd(m.snap.Ticker)
		case "ctrl+t":
			return m, m.warmupCmd(true)
		}

		// Everything else feeds the search box.
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.engine.SetText(m.input.Value())
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerH := 3
		footerH := 1
		vpHeight := m.height - headerH - footerH
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.refreshContent()
		return m, nil

	case analysisMsg:
		m.snap = analysis.Snapshot(msg)
		if m.snap.Range != "" {
			m.rng = m.snap.Range
		}
		m.status = ""
		m.refreshContent()
		return m, waitAnalysis(m.ctrl)

	case searchMsg:
		m.suggestions = msg.Suggestions
		m.selIdx = 0
		m.refreshContent()
		return m, waitSearch(m.engine)

	case warmupMsg:
		m.movers = msg.movers
		m.trending = msg.trending
		if len(msg.news) > 0 {
			m.news = msg.news
		}
		m.refreshContent()
		return m, loadWatchlistCmd(m.wl)

	case watchLoadedMsg:
		if msg.err != nil {
			m.logger.Warn("loading watchlist", "error", msg.err)
		} else {
			m.watching = msg.tickers
		}
		m.refreshContent()
		return m, nil

	case watchToggleMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("watchlist update failed: %v", msg.err)
		}
		m.refreshContent()
		return m, loadWatchlistCmd(m.wl)
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// commitSelection turns the highlighted suggestion (or the raw input
// text) into an analysis request.
func (m model) commitSelection() (tea.Model, tea.Cmd) {
	ticker := strings.TrimSpace(m.input.Value())
	name := ""
	if len(m.suggestions) > 0 && m.selIdx < len(m.suggestions) {
		ticker = m.suggestions[m.selIdx].Symbol
		name = m.suggestions[m.selIdx].InstrumentName
	}
	if ticker == "" {
		return m, nil
	}
	if err := m.ctrl.Submit(ticker, m.rng, false, name); err != nil {
		m.status = err.Error()
		m.refreshContent()
		return m, nil
	}
	m.input.SetValue("")
	m.engine.SetText("")
	m.suggestions = nil
	m.selIdx = 0
	m.refreshContent()
	return m, nil
}

func (m model) toggleWatchCmd(ticker string) tea.Cmd {
	wl := m.wl
	return func() tea.Msg {
		watched, err := wl.Toggle(context.Background(), ticker)
		return watchToggleMsg{ticker: ticker, watched: watched, err: err}
	}
}

func cycleRange(cur prism.Range, delta int) prism.Range {
	for i, r := range rangeOrder {
		if r == cur {
			next := (i + delta + len(rangeOrder)) % len(rangeOrder)
			return rangeOrder[next]
		}
	}
	return prism.DefaultRange
}

func (m *model) refreshContent() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("prism"))
	b.WriteString(dimStyle.Render("  stock analysis terminal"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderRangeBar())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("enter analyze · [ ] range · ctrl+r refresh · ctrl+w watch · ctrl+t movers · esc quit"))
	return b.String()
}

func (m model) renderRangeBar() string {
	if m.snap.Ticker == "" {
		return ""
	}
	parts := make([]string, 0, len(rangeOrder))
	for _, r := range rangeOrder {
		label := " " + string(r) + " "
		if r == m.rng {
			parts = append(parts, rangeOnStyle.Render(label))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
	}
	return strings.Join(parts, "")
}

func (m model) renderContent() string {
	var b strings.Builder

	if m.status != "" {
		b.WriteString(errStyle.Render(m.status))
		b.WriteString("\n\n")
	}

	if len(m.suggestions) > 0 {
		for i, s := range m.suggestions {
			line := fmt.Sprintf(" %-8s %-32s %s", s.Symbol, s.InstrumentName, s.Exchange)
			if i == m.selIdx {
				b.WriteString(selStyle.Render(line))
			} else {
				b.WriteString(line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	switch m.snap.State {
	case analysis.StateLoading:
		m.renderAnalysis(&b)
		b.WriteString(dimStyle.Render(fmt.Sprintf("fetching %s %s...", m.snap.Ticker, m.snap.Range)))
		b.WriteString("\n\n")
	case analysis.StateReady:
		m.renderAnalysis(&b)
	case analysis.StateFailed:
		b.WriteString(errStyle.Render(fmt.Sprintf("%s: %s", m.snap.Ticker, m.snap.Err)))
		b.WriteString("\n\n")
	default:
		m.renderLanding(&b)
	}
	return b.String()
}

func (m model) renderLanding(b *strings.Builder) {
	top := m.trending
	if len(top) > 0 {
		b.WriteString(sectionStyle.Render(" TRENDING "))
		b.WriteString("\n")
		writeMoverRows(b, top, m.watchSet())
		b.WriteString("\n")
	}
	if len(m.movers.Gainers) > 0 {
		b.WriteString(sectionStyle.Render(" TOP GAINERS "))
		b.WriteString("\n")
		writeMoverRows(b, m.movers.Gainers, m.watchSet())
		b.WriteString("\n")
	}
	if len(m.movers.Losers) > 0 {
		b.WriteString(sectionStyle.Render(" TOP LOSERS "))
		b.WriteString("\n")
		writeMoverRows(b, m.movers.Losers, m.watchSet())
		b.WriteString("\n")
	}
	if len(m.watching) > 0 {
		b.WriteString(sectionStyle.Render(" WATCHLIST "))
		b.WriteString("\n ")
		b.WriteString(watchStyle.Render(strings.Join(m.watching, "  ")))
		b.WriteString("\n\n")
	}
	if len(m.news) > 0 {
		b.WriteString(sectionStyle.Render(" MARKET NEWS "))
		b.WriteString("\n")
		for i, h := range m.news {
			if i >= 8 {
				break
			}
			b.WriteString(fmt.Sprintf(" %s %s\n", dimStyle.Render(h.Published), h.Title))
		}
	}
	if m.movers.Empty() && len(m.news) == 0 {
		b.WriteString(dimStyle.Render("type a ticker or company name to begin"))
		b.WriteString("\n")
	}
}

func writeMoverRows(b *strings.Builder, items []prism.MoverItem, watching map[string]bool) {
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-8s %-24s %10s %8s %10s", "Symbol", "Name", "Price", "Chg%", "Volume")))
	b.WriteString("\n")
	for _, it := range items {
		mark := " "
		if watching[it.Symbol] {
			mark = "*"
		}
		chg := fmt.Sprintf("%+.2f", it.Change)
		styled := gainStyle
		if it.Change < 0 {
			styled = lossStyle
		}
		b.WriteString(fmt.Sprintf(" %s%-8s %-24s %10s ", mark, it.Symbol, truncate(it.Name, 24), it.Price))
		b.WriteString(styled.Render(fmt.Sprintf("%8s", chg)))
		b.WriteString(fmt.Sprintf(" %10s\n", it.VolumeFmt))
	}
}

func (m model) renderAnalysis(b *strings.Builder) {
	res := m.snap.Result
	header := m.snap.Ticker
	if m.snap.CompanyName != "" {
		header += "  " + m.snap.CompanyName
	}
	b.WriteString(tickerStyle.Render(" " + header + " "))
	if m.wl.IsWatchlisted(m.snap.Ticker) {
		b.WriteString(watchStyle.Render("★"))
	}
	b.WriteString("\n\n")
	if res == nil {
		return
	}

	if n := len(res.Series); n > 0 {
		last := res.Series[n-1]
		first := res.Series[0]
		change := 0.0
		if first.Close != 0 {
			change = (last.Close - first.Close) / first.Close * 100
		}
		chStyle := gainStyle
		if change < 0 {
			chStyle = lossStyle
		}
		b.WriteString(fmt.Sprintf(" close %s  vol %s  ", util.FormatPrice(last.Close), util.FormatVolume(last.Volume)))
		b.WriteString(chStyle.Render(fmt.Sprintf("%+.2f%% over %s", change, m.snap.Range)))
		if res.Cached {
			b.WriteString(dimStyle.Render("  (cached)"))
		}
		b.WriteString("\n")
		b.WriteString(renderSparkline(res.Series))
		b.WriteString("\n\n")
	}

	sig := res.QuantSignal()
	sigStyle, ok := signalStyles[sig]
	if !ok {
		sigStyle = dimStyle
	}
	b.WriteString(fmt.Sprintf(" quant %s  score %.1f  confidence %.0f%%  sentiment %+.2f\n",
		sigStyle.Render(string(sig)), res.Quant.FinalScore, res.Quant.Confidence*100, res.CurrentSentiment))
	if d := res.Debug; d != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" articles %s  full %s  snippets %s  timeouts %s",
			util.FormatInt(d.Total), util.FormatInt(d.FullText), util.FormatInt(d.Snippet), util.FormatInt(d.Timeouts))))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(res.News) > 0 {
		b.WriteString(sectionStyle.Render(" NEWS "))
		b.WriteString("\n")
		for i, n := range res.News {
			if i >= 6 {
				break
			}
			sent := fmt.Sprintf("%+.2f", n.Sentiment)
			sStyle := dimStyle
			if n.Sentiment > 0.1 {
				sStyle = gainStyle
			} else if n.Sentiment < -0.1 {
				sStyle = lossStyle
			}
			b.WriteString(fmt.Sprintf(" %s %s %s\n", dimStyle.Render(n.PublishedAt), sStyle.Render(sent), n.Title))
		}
		b.WriteString("\n")
	}
}

// renderSparkline draws the close series as a one-line block chart.
func renderSparkline(series []prism.OhlcvPoint) string {
	blocks := []rune("▁▂▃▄▅▆▇█")
	lo, hi := series[0].Close, series[0].Close
	for _, p := range series {
		if p.Close < lo {
			lo = p.Close
		}
		if p.Close > hi {
			hi = p.Close
		}
	}
	span := hi - lo
	var b strings.Builder
	b.WriteString(" ")
	for _, p := range series {
		idx := 0
		if span > 0 {
			idx = int((p.Close - lo) / span * float64(len(blocks)-1))
		}
		b.WriteRune(blocks[idx])
	}
	return b.String()
}

func (m model) watchSet() map[string]bool {
	set := make(map[string]bool, len(m.watching))
	for _, t := range m.watching {
		set[t] = true
	}
	return set
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func main() {
	cfgPath := os.Getenv("PRISM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/prism.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logPath := cfg.Logging.File
	if logPath == "" {
		logPath = fmt.Sprintf("/tmp/prism-%s.log", time.Now().Format("2006-01-02"))
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := util.NewLogger(logFile, cfg.Logging.Level, cfg.Logging.Format)

	db, err := store.NewSQLiteStore(cfg.Cache.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	client := prism.NewClient(cfg.API.BaseURL,
		prism.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout()}),
		prism.WithRateLimit(cfg.API.RateLimitPerMin),
		prism.WithLogger(logger),
	)

	ctrl := analysis.NewController(client, logger)
	engine := search.NewEngine(client, cfg.Debounce(), logger)
	cache := movers.NewCache(client,
		movers.WithTTL(cfg.MoversTTL()),
		movers.WithStore(db),
		movers.WithLogger(logger),
	)
	wl := watchlist.NewSyncer(db, logger)
	wl.SetContext(cfg.Watchlist.UserID)

	logger.Info("prism starting", "api", cfg.API.BaseURL, "db", cfg.Cache.DBPath, "user", cfg.Watchlist.UserID)

	p := tea.NewProgram(
		initialModel(cfg, logger, client, ctrl, engine, cache, wl),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
