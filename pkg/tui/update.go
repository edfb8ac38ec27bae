package tui

import (
	"fmt"
	"strings"
	"time"

	"memefolio/pkg/ramp"
	"memefolio/pkg/swap"
	"memefolio/pkg/watcher"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.sub))
		m.applyEvent(msg)
		if msg.Type == watcher.EventCoinAdmitted {
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		}

	case searchResultsMsg:
		if msg.query != m.searchQuery {
			break
		}
		m.searchResults = msg.results
		m.searchErr = ""
		if msg.err != nil {
			m.searchErr = msg.err.Error()
		}
		m.cursor = 0

	case admitResultMsg:
		switch {
		case msg.err != nil:
			m.statusMessage = fmt.Sprintf("Could not add coin: %v", msg.err)
		case msg.added:
			m.statusMessage = fmt.Sprintf("%s added to the list", msg.coin.Name)
		default:
			m.statusMessage = fmt.Sprintf("%s is already tracked", msg.coin.Name)
		}
		cmds = append(cmds, clearStatusAfter(2*time.Second))

	case chartMsg:
		if msg.id != m.detailID {
			break
		}
		m.chartLoading = false
		m.chart = msg.points
		m.chartErr = ""
		if msg.err != nil {
			m.chartErr = msg.err.Error()
		}

	case quoteMsg:
		m.quote = msg.quote
		m.quoteErr = ""
		if msg.err != nil {
			m.quoteErr = swap.UserMessage(msg.err)
		}

	case rampMsg:
		if msg.err != nil {
			m.statusMessage = swap.UserMessage(msg.err)
			if msg.url != "" {
				m.statusMessage = fmt.Sprintf("Failed to open browser: %v", msg.err)
			}
		} else {
			m.statusMessage = "Opened MoonPay in browser"
		}
		cmds = append(cmds, clearStatusAfter(3*time.Second))

	case privacyTimeoutMsg:
		if m.config.PrivacyTimeoutSeconds <= 0 || m.privacyMode {
			break
		}
		timeout := time.Duration(m.config.PrivacyTimeoutSeconds) * time.Second
		if time.Since(m.lastInteraction) >= timeout {
			m.privacyMode = true
			m.statusMessage = "Privacy Mode enabled due to inactivity"
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		} else {
			remaining := timeout - time.Since(m.lastInteraction)
			cmds = append(cmds, tea.Tick(remaining, func(t time.Time) tea.Msg {
				return privacyTimeoutMsg{}
			}))
		}

	case tea.KeyMsg:
		m.lastInteraction = time.Now()
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		cmds = append(cmds, cmd)

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
	}

	if m.loading || m.chartLoading {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.swapping {
		return m.handleSwapKey(msg)
	}
	if m.searching {
		return m.handleSearchKey(msg)
	}

	if key == "?" {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if key == "q" || key == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	if key == "P" {
		m.privacyMode = !m.privacyMode
		if !m.privacyMode && m.config.PrivacyTimeoutSeconds > 0 {
			return m, tea.Tick(time.Duration(m.config.PrivacyTimeoutSeconds)*time.Second, func(t time.Time) tea.Msg {
				return privacyTimeoutMsg{}
			})
		}
		return m, nil
	}

	if m.showDetail {
		return m.handleDetailKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "tab", "right", "l":
		m.activeTab = (m.activeTab + 1) % tab(len(tabNames))
		m.cursor = 0
	case "shift+tab", "left", "h":
		m.activeTab = (m.activeTab + tab(len(tabNames)) - 1) % tab(len(tabNames))
		m.cursor = 0
	case "1", "2", "3", "4":
		m.activeTab = tab(key[0] - '1')
		m.cursor = 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
	case "/":
		m.activeTab = tabSearch
		m.searching = true
		m.cursor = 0
		m.searchInput.Focus()
		return m, nil
	case "enter":
		if m.activeTab == tabSearch {
			if m.cursor < len(m.searchResults) {
				return m, admitResult(m.watcher, m.searchResults[m.cursor])
			}
			return m, nil
		}
		if c, ok := m.selectedCoin(); ok {
			m.showDetail = true
			m.detailID = c.ID
			m.chart = nil
			m.chartErr = ""
			m.chartLoading = true
			m.quote = nil
			m.quoteErr = ""
			return m, tea.Batch(fetchChart(m.watcher, c.ID), m.spinner.Tick)
		}
	case "c":
		if c, ok := m.selectedCoin(); ok {
			return m.copyAddress(c.TokenAddress())
		}
	}
	return m, nil
}

func (m model) handleDetailKey(msg tea.KeyMsg) (model, tea.Cmd) {
	coin, ok := m.detailCoin()
	switch msg.String() {
	case "q", "esc", "backspace":
		m.showDetail = false
		m.chartLoading = false
		return m, nil
	case "b", "s":
		if !ok {
			return m, nil
		}
		m.swapSide = swap.Buy
		if msg.String() == "s" {
			m.swapSide = swap.Sell
		}
		m.swapping = true
		m.quote = nil
		m.quoteErr = ""
		m.amountInput.SetValue("")
		m.amountInput.Focus()
	case "c":
		if ok {
			return m.copyAddress(coin.TokenAddress())
		}
	case "m", "M":
		if ok {
			flow := ramp.FlowBuy
			if msg.String() == "M" {
				flow = ramp.FlowSell
			}
			return m, openRamp(m.watcher, flow, coin.ChainID)
		}
	}
	return m, nil
}

func (m model) handleSwapKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.swapping = false
		m.amountInput.Blur()
		return m, nil
	case "enter":
		amount, err := decimal.NewFromString(strings.TrimSpace(m.amountInput.Value()))
		if err != nil {
			m.quoteErr = swap.UserMessage(swap.ErrInvalidAmount)
			return m, nil
		}
		m.swapping = false
		m.amountInput.Blur()
		m.quote = nil
		m.quoteErr = ""
		return m, quoteSwap(m.watcher, m.detailID, m.swapSide, amount)
	}
	var cmd tea.Cmd
	m.amountInput, cmd = m.amountInput.Update(msg)
	return m, cmd
}

func (m model) handleSearchKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searching = false
		m.searchInput.Blur()
		return m, nil
	case "enter":
		m.searching = false
		m.searchInput.Blur()
		m.searchQuery = strings.TrimSpace(m.searchInput.Value())
		if m.searchQuery == "" {
			m.searchResults = nil
			return m, nil
		}
		return m, runSearch(m.watcher, m.searchQuery)
	}
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m model) copyAddress(addr string) (model, tea.Cmd) {
	if addr == "" {
		m.statusMessage = "No address to copy"
	} else if err := clipboard.WriteAll(addr); err != nil {
		m.statusMessage = "Failed to copy to clipboard"
	} else if m.privacyMode {
		m.statusMessage = "Full address copied (Privacy Mode active)!"
	} else {
		m.statusMessage = "Address copied to clipboard!"
	}
	return m, clearStatusAfter(2 * time.Second)
}
