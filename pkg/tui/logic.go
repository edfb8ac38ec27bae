package tui

import (
	"context"
	"time"

	"memefolio/pkg/feed"
	"memefolio/pkg/models"
	"memefolio/pkg/ramp"
	"memefolio/pkg/registry"
	"memefolio/pkg/swap"
	"memefolio/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
)

const requestTimeout = 15 * time.Second

// seed copies the watcher's current state so the first frame is not empty.
func (m *model) seed() {
	snap := m.watcher.Snapshot()
	m.applySnapshot(snap)
	p := m.watcher.Portfolio()
	m.holdings = p.HoldingsView()
	m.rewards = p.RewardsView()
	m.status = m.watcher.Status()
}

func (m *model) applySnapshot(snap *registry.Snapshot) {
	if snap == nil {
		return
	}
	m.coins = snap.Coins
	m.gainers = registry.TopGainers(snap, registry.DefaultGainers)
	if len(snap.Coins) > 0 {
		m.loading = false
	}
	m.clampCursor()
}

// applyEvent folds a watcher event into the model.
func (m *model) applyEvent(ev watcher.Event) {
	switch ev.Type {
	case watcher.EventCoinsUpdated:
		if snap, ok := ev.Data.(*registry.Snapshot); ok {
			m.applySnapshot(snap)
		}
	case watcher.EventHoldingsUpdated:
		if p, ok := ev.Data.(watcher.HoldingsPayload); ok {
			m.holdings = p.Holdings
			m.rewards = p.Rewards
			m.clampCursor()
		}
	case watcher.EventStatusUpdated:
		if st, ok := ev.Data.(watcher.Status); ok {
			m.status = st
		}
	case watcher.EventCoinAdmitted:
		if c, ok := ev.Data.(models.Coin); ok {
			m.statusMessage = "Added " + c.Name
		}
	}
	m.lastUpdate = time.Now()
}

func (m model) rowCount() int {
	switch m.activeTab {
	case tabCoins:
		return len(m.coins)
	case tabHoldings:
		return len(m.holdings.Holdings)
	case tabRewards:
		return len(m.rewards.Holdings)
	case tabSearch:
		return len(m.searchResults)
	}
	return 0
}

func (m *model) clampCursor() {
	n := m.rowCount()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selectedCoin returns the coin under the cursor on the coin and holdings tabs.
func (m model) selectedCoin() (models.Coin, bool) {
	switch m.activeTab {
	case tabCoins:
		if m.cursor < len(m.coins) {
			return m.coins[m.cursor], true
		}
	case tabHoldings:
		if m.cursor < len(m.holdings.Holdings) {
			return m.holdings.Holdings[m.cursor].Coin, true
		}
	case tabRewards:
		if m.cursor < len(m.rewards.Holdings) {
			return m.rewards.Holdings[m.cursor].Coin, true
		}
	}
	return models.Coin{}, false
}

func (m model) detailCoin() (models.Coin, bool) {
	for _, c := range m.coins {
		if c.ID == m.detailID {
			return c, true
		}
	}
	return models.Coin{}, false
}

// chartSeries returns the prices of points in order.
func chartSeries(points []models.PricePoint) []float64 {
	series := make([]float64, 0, len(points))
	for _, p := range points {
		series = append(series, p.Price)
	}
	return series
}

// seriesStats returns the low, the high and the percentage move from first to last value.
func seriesStats(series []float64) (low, high, change float64) {
	if len(series) == 0 {
		return 0, 0, 0
	}
	low, high = series[0], series[0]
	for _, v := range series {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	if first := series[0]; first != 0 {
		change = (series[len(series)-1] - first) / first * 100
	}
	return low, high, change
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func fetchChart(w *watcher.Watcher, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		points, err := w.Chart(ctx, id, feed.DefaultChartDays)
		return chartMsg{id: id, points: points, err: err}
	}
}

func runSearch(w *watcher.Watcher, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		results, err := w.Search(ctx, query)
		return searchResultsMsg{query: query, results: results, err: err}
	}
}

func admitResult(w *watcher.Watcher, r feed.SearchResult) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		coin, added, err := w.SelectSearchResult(ctx, r)
		return admitResultMsg{coin: coin, added: added, err: err}
	}
}

func quoteSwap(w *watcher.Watcher, id string, side swap.Side, amount decimal.Decimal) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		q, err := w.QuoteSwap(ctx, id, side, amount)
		return quoteMsg{quote: q, err: err}
	}
}

func openRamp(w *watcher.Watcher, flow ramp.Flow, chain models.ChainID) tea.Cmd {
	return func() tea.Msg {
		u, err := w.RampURL(flow, chain)
		if err == nil {
			err = openBrowser(u)
		}
		return rampMsg{url: u, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}
