package tui

import (
	"fmt"
	"strings"

	"memefolio/pkg/feed"
	"memefolio/pkg/models"
	"memefolio/pkg/swap"
	"memefolio/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.showDetail {
		return m.viewDetail()
	}

	var body string
	switch m.activeTab {
	case tabCoins:
		body = m.viewCoins()
	case tabHoldings:
		body = m.viewHoldings(m.holdings.Total, m.holdings.Holdings, "No holdings for the connected wallets.")
	case tabRewards:
		body = m.viewHoldings(m.rewards.Total, m.rewards.Holdings, "No reward-eligible holdings.")
	case tabSearch:
		body = m.viewSearch()
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.viewGainers(),
		"",
		m.viewTabs(),
		"",
		body,
	)

	h := m.height - 1
	if h < 0 {
		h = 0
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewTopBar(),
		lipgloss.Place(m.width, h, lipgloss.Center, lipgloss.Top,
			lipgloss.JoinVertical(lipgloss.Center, content, "\n", m.viewFooter()),
		),
	)
}

func (m model) viewTopBar() string {
	var prices []string
	for _, chain := range models.SupportedChains {
		p, ok := m.status.NativePrices[string(chain)]
		if !ok {
			p = "N/A"
		} else {
			p = "$" + utils.AddCommas(p)
		}
		prices = append(prices, fmt.Sprintf("%s: %s", chain.NativeSymbol(), p))
	}
	leftBlock := subtleStyle.Render(" " + strings.Join(prices, " • "))

	spinnerView := ""
	if m.loading {
		spinnerView = m.spinner.View() + " "
	}
	privacyIndicator := ""
	if m.privacyMode {
		privacyIndicator = "🔒 "
	}
	updated := "never"
	if !m.lastUpdate.IsZero() {
		updated = m.lastUpdate.Format("15:04:05")
	}
	rightBlock := subtleStyle.Render(fmt.Sprintf("%s%sLast updated: %s ", privacyIndicator, spinnerView, updated))

	gap := m.width - lipgloss.Width(leftBlock) - lipgloss.Width(rightBlock)
	if gap < 0 {
		gap = 0
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, leftBlock, strings.Repeat(" ", gap), rightBlock)
}

func (m model) viewGainers() string {
	if len(m.gainers) == 0 {
		return subtleStyle.Render("Top gainers: waiting for prices")
	}
	var parts []string
	for _, c := range m.gainers {
		parts = append(parts, fmt.Sprintf("%s %s", c.Name, changeText(c)))
	}
	return titleStyle.Render("Top Gainers") + " " + strings.Join(parts, subtleStyle.Render(" • "))
}

func (m model) viewTabs() string {
	var tabs []string
	for i, name := range tabNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if tab(i) == m.activeTab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// changeText colors a 24h change and leaves sentinels as they are.
func changeText(c models.Coin) string {
	v, ok := c.ChangeValue()
	if !ok {
		return subtleStyle.Render(c.PriceChange24h)
	}
	if v < 0 {
		return errStyle.Render(c.PriceChange24h + "%")
	}
	return infoStyle.Render("+" + c.PriceChange24h + "%")
}

func (m model) row(i int, line string) string {
	if i == m.cursor {
		return selectedStyle.Render("> " + line)
	}
	return "  " + line
}

func (m model) viewCoins() string {
	if len(m.coins) == 0 {
		if m.status.CatalogError != "" {
			return errStyle.Render("Catalog unavailable: ") + m.status.CatalogError
		}
		return m.spinner.View() + " Loading coins..."
	}
	header := tableHeaderStyle.Render(fmt.Sprintf("  %-16s %16s %10s %16s %14s %-9s", "NAME", "PRICE", "24H", "MCAP", "VOLUME", "CHAIN"))
	rows := []string{header}
	for i, c := range m.coins {
		change := c.PriceChange24h
		if _, ok := c.ChangeValue(); ok {
			change += "%"
		}
		line := fmt.Sprintf("%-16s %16s %10s %16s %14s %-9s",
			utils.TruncateString(c.Name, 16),
			"$"+c.Price,
			change,
			"$"+utils.FormatFloat(c.MarketCap, 0),
			"$"+utils.FormatFloat(c.Volume, 0),
			c.ChainID.Label(),
		)
		rows = append(rows, m.row(i, line))
	}
	return strings.Join(rows, "\n")
}

func (m model) viewHoldings(total string, items []models.Holding, empty string) string {
	totalLine := infoStyle.Bold(true).Render("Total: $" + m.maskString(m.fiatText(total)))
	if len(items) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, totalLine, "", subtleStyle.Render(empty))
	}
	header := tableHeaderStyle.Render(fmt.Sprintf("  %-16s %20s %14s %16s %10s", "NAME", "BALANCE", "VALUE", "PRICE", "24H"))
	rows := []string{totalLine, "", header}
	for i, h := range items {
		change := h.PriceChange24h
		if _, ok := h.ChangeValue(); ok {
			change += "%"
		}
		line := fmt.Sprintf("%-16s %20s %14s %16s %10s",
			utils.TruncateString(h.Name, 16),
			m.maskString(m.balanceText(h)),
			"$"+m.maskString(m.fiatText(h.UserUsdValue)),
			"$"+h.Price,
			change,
		)
		rows = append(rows, m.row(i, line))
	}
	return strings.Join(rows, "\n")
}

func (m model) viewSearch() string {
	input := m.searchInput.View()
	if !m.searching {
		input = subtleStyle.Render("Press / to search • enter adds the selected pair")
		if m.searchQuery != "" {
			input = fmt.Sprintf("Results for %q • ", m.searchQuery) + input
		}
	}
	if m.searchErr != "" {
		return lipgloss.JoinVertical(lipgloss.Left, input, "", errStyle.Render(m.searchErr))
	}
	if len(m.searchResults) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, input, "", subtleStyle.Render("No results."))
	}
	header := tableHeaderStyle.Render(fmt.Sprintf("  %-16s %-8s %16s %10s %16s %-9s", "NAME", "SYMBOL", "PRICE", "24H", "LIQUIDITY", "CHAIN"))
	rows := []string{input, "", header}
	for i, r := range m.searchResults {
		q := r.Quote()
		line := fmt.Sprintf("%-16s %-8s %16s %10s %16s %-9s",
			utils.TruncateString(r.Name, 16),
			utils.TruncateString(r.Symbol, 8),
			"$"+q.PriceString(),
			q.ChangeString(),
			"$"+utils.FormatFloat(r.LiquidityUsd, 0),
			r.ChainID.Label(),
		)
		rows = append(rows, m.row(i, line))
	}
	return strings.Join(rows, "\n")
}

func (m model) viewFooter() string {
	var line string
	switch {
	case m.searching:
		line = "enter: search • esc: cancel"
	case m.activeTab == tabSearch:
		line = "/: search • ↑/↓: select • enter: add • tab: next • ?: help • q: quit"
	default:
		line = "tab: next • ↑/↓: select • enter: chart • /: search • c: copy • P: privacy • ?: help • q: quit"
	}
	line += fmt.Sprintf(" • v%s", Version)

	footer := subtleStyle.Render(line)
	if m.width > 0 {
		footer = subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line)
	}
	if m.statusMessage != "" {
		footer = lipgloss.JoinVertical(lipgloss.Center, infoStyle.Render(m.statusMessage), footer)
	}
	return footer
}

func (m model) viewDetail() string {
	coin, ok := m.detailCoin()
	if !ok {
		return "Coin no longer tracked. Press esc to go back."
	}

	targetBoxWidth := m.width - 4
	if targetBoxWidth < 0 {
		targetBoxWidth = 0
	}

	header := titleStyle.Render(fmt.Sprintf("%s on %s", coin.Name, coin.ChainID.Label()))
	info := []string{
		fmt.Sprintf("Price: $%s  24h: %s", coin.Price, changeText(coin)),
		fmt.Sprintf("Market cap: $%s  Volume: $%s  Liquidity: $%s",
			utils.FormatFloat(coin.MarketCap, 0), utils.FormatFloat(coin.Volume, 0), utils.FormatFloat(coin.Liquidity, 0)),
		fmt.Sprintf("Token: %s", m.maskAddress(coin.TokenAddress())),
	}
	if coin.Rewards {
		info = append(info, warnStyle.Render("Rewards eligible"))
	}

	var graph string
	switch {
	case m.chartLoading:
		graph = m.spinner.View() + " Loading chart..."
	case m.chartErr != "":
		graph = errStyle.Render(m.chartErr)
	case len(m.chart) < 2:
		graph = "Not enough data to draw graph."
	default:
		series := chartSeries(m.chart)
		low, high, change := seriesStats(series)
		graphWidth := targetBoxWidth - 14
		if graphWidth < 10 {
			graphWidth = 10
		}
		graphHeight := m.height - 20
		if graphHeight < 5 {
			graphHeight = 5
		}
		graph = lipgloss.JoinVertical(lipgloss.Center,
			subtleStyle.Render(fmt.Sprintf("Low: %s • High: %s • Move: %.2f%%", utils.FormatPrice(low), utils.FormatPrice(high), change)),
			asciigraph.Plot(series,
				asciigraph.Height(graphHeight),
				asciigraph.Width(graphWidth),
				asciigraph.Precision(8),
				asciigraph.Caption(fmt.Sprintf("Price (USD), last %d days", feed.DefaultChartDays)),
			),
		)
	}

	var swapBlock string
	switch {
	case m.swapping:
		unit := coin.ChainID.NativeSymbol()
		if m.swapSide == swap.Sell {
			unit = coin.Name
		}
		swapBlock = fmt.Sprintf("%s amount (%s): %s", strings.ToUpper(string(m.swapSide)), unit, m.amountInput.View())
		if m.quoteErr != "" {
			swapBlock += "\n" + errStyle.Render(m.quoteErr)
		}
	case m.quoteErr != "":
		swapBlock = errStyle.Render(m.quoteErr)
	case m.quote != nil:
		q := m.quote
		swapBlock = infoStyle.Render(fmt.Sprintf("Quote: %s in ($%s) → %s out • slippage %d bps",
			q.AmountIn.String(), utils.FormatDecimal(q.AmountInUSD, 2), utils.FormatDecimal(q.AmountOut, 6), q.SlippageBps))
	}

	content := boxStyle.Width(targetBoxWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		header, "", strings.Join(info, "\n"), "", graph, "", swapBlock,
	))
	footer := subtleStyle.Render("b: buy • s: sell • m/M: fiat buy/sell • c: copy • esc: back")
	if m.statusMessage != "" {
		footer = lipgloss.JoinVertical(lipgloss.Center, infoStyle.Render(m.statusMessage), footer)
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	var title string
	var shortcuts []string

	if m.showDetail {
		title = "Coin Detail"
		shortcuts = []string{
			"b: Quote a Buy",
			"s: Quote a Sell",
			"m: Buy Native Coin with Fiat",
			"M: Sell Native Coin for Fiat",
			"c: Copy Token Address",
			"esc/q: Back",
		}
	} else {
		title = "Main View"
		shortcuts = []string{
			"Tab/l/Right: Next Tab",
			"S-Tab/h/Left: Prev Tab",
			"1-4: Jump to Tab",
			"↑/k ↓/j: Move Selection",
			"enter: Chart and Swap (Search tab: Add Coin)",
			"/: Search Pairs",
			"c: Copy Token Address",
			"P: Toggle Privacy",
			"q: Quit",
			"?: Toggle Help",
		}
	}

	header := titleStyle.Render(fmt.Sprintf("Help: %s", title))
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
