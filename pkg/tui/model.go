package tui

import (
	"time"

	"memefolio/pkg/config"
	"memefolio/pkg/feed"
	"memefolio/pkg/holdings"
	"memefolio/pkg/models"
	"memefolio/pkg/swap"
	"memefolio/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

type tab int

const (
	tabCoins tab = iota
	tabHoldings
	tabRewards
	tabSearch
)

var tabNames = []string{"Coins", "Holdings", "Rewards", "Search"}

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time
type privacyTimeoutMsg struct{}

type searchResultsMsg struct {
	query   string
	results []feed.SearchResult
	err     error
}

type admitResultMsg struct {
	coin  models.Coin
	added bool
	err   error
}

type chartMsg struct {
	id     string
	points []models.PricePoint
	err    error
}

type quoteMsg struct {
	quote *swap.Quote
	err   error
}

type rampMsg struct {
	url string
	err error
}

// --- Model ---

type model struct {
	watcher *watcher.Watcher
	sub     watcher.Subscriber
	config  config.GlobalConfig

	width         int
	height        int
	loading       bool
	lastUpdate    time.Time
	spinner       spinner.Model
	statusMessage string

	activeTab tab
	cursor    int
	coins     []models.Coin
	gainers   []models.Coin
	holdings  holdings.View
	rewards   holdings.View
	status    watcher.Status

	searchInput   textinput.Model
	searching     bool
	searchQuery   string
	searchResults []feed.SearchResult
	searchErr     string

	showDetail   bool
	detailID     string
	chart        []models.PricePoint
	chartErr     string
	chartLoading bool

	swapping    bool
	swapSide    swap.Side
	amountInput textinput.Model
	quote       *swap.Quote
	quoteErr    string

	showHelp        bool
	privacyMode     bool
	lastInteraction time.Time
}

func initialModel(w *watcher.Watcher, globalCfg config.GlobalConfig) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	si := textinput.New()
	si.Placeholder = "Search by name or symbol"
	si.Width = 40

	ai := textinput.New()
	ai.Placeholder = "Amount"
	ai.Width = 20

	return model{
		watcher:         w,
		config:          globalCfg,
		loading:         true,
		spinner:         s,
		searchInput:     si,
		amountInput:     ai,
		lastInteraction: time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	var cmds []tea.Cmd

	cmds = append(cmds, listenForWatcher(m.sub))
	cmds = append(cmds, m.spinner.Tick)

	if m.config.PrivacyTimeoutSeconds > 0 {
		cmds = append(cmds, tea.Tick(time.Duration(m.config.PrivacyTimeoutSeconds)*time.Second, func(t time.Time) tea.Msg {
			return privacyTimeoutMsg{}
		}))
	}
	cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))
	return tea.Batch(cmds...)
}
