package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"memefolio/pkg/feed"
	"memefolio/pkg/holdings"
	"memefolio/pkg/metrics"
	"memefolio/pkg/models"
	"memefolio/pkg/ramp"
	"memefolio/pkg/registry"
	"memefolio/pkg/rpc"
	"memefolio/pkg/swap"
	"memefolio/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrCoinNotFound = errors.New("coin not found")

// MarketSource is the market data the watcher consumes. *feed.Client implements it.
type MarketSource interface {
	FetchCatalog(ctx context.Context, url string) ([]models.CatalogEntry, error)
	SafePair(ctx context.Context, chain models.ChainID, pairID string) *feed.PairQuote
	SafeMetadata(ctx context.Context, coinGeckoID string) *feed.CoinMetadata
	Search(ctx context.Context, query string) ([]feed.SearchResult, error)
	FetchMarketChart(ctx context.Context, coinGeckoID string, days int) ([]models.PricePoint, error)
}

// BalanceSource reads balances and reports failures as zero. *rpc.Resolver implements it.
type BalanceSource interface {
	Balance(ctx context.Context, chain models.ChainID, wallet, token string) decimal.Decimal
	Decimals(ctx context.Context, chain models.ChainID, token string) (int32, error)
}

// TransactionBuilder is implemented by executors that can return an unsigned transaction.
type TransactionBuilder interface {
	BuildTransaction(ctx context.Context, q *swap.Quote, wallet string) (*swap.UnsignedTx, error)
}

// Options configures a Watcher.
type Options struct {
	CatalogURL       string
	PriceInterval    time.Duration
	HoldingsInterval time.Duration
	Wallets          models.Wallets
	// ReferencePairs maps a chain to the DexScreener pair quoting its native coin in USD.
	ReferencePairs map[models.ChainID]string
	Executors      []swap.Executor
	Ramp           ramp.Config
}

const defaultInterval = 3 * time.Second

// Watcher runs the price and holdings loops over the coin registry.
type Watcher struct {
	opts      Options
	registry  *registry.Registry
	builder   *registry.Builder
	market    MarketSource
	balances  BalanceSource
	executors map[models.ChainID]swap.Executor
	log       zerolog.Logger
	metrics   *metrics.Metrics

	portfolio      holdings.Portfolio
	nativePrices   map[models.ChainID]decimal.Decimal
	nativeBalances map[models.ChainID]decimal.Decimal
	lastPriceTick  time.Time
	lastHoldings   time.Time
	catalogErr     error

	subscribers []Subscriber
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewWatcher creates a Watcher over reg. The registry writer is started by Start.
func NewWatcher(reg *registry.Registry, market MarketSource, balances BalanceSource, opts Options, log zerolog.Logger, m *metrics.Metrics) *Watcher {
	if opts.PriceInterval <= 0 {
		opts.PriceInterval = defaultInterval
	}
	if opts.HoldingsInterval <= 0 {
		opts.HoldingsInterval = defaultInterval
	}
	log = log.With().Str("component", "watcher").Logger()
	w := &Watcher{
		opts:           opts,
		registry:       reg,
		builder:        registry.NewBuilder(market, log),
		market:         market,
		balances:       balances,
		executors:      make(map[models.ChainID]swap.Executor),
		log:            log,
		metrics:        m,
		nativePrices:   make(map[models.ChainID]decimal.Decimal),
		nativeBalances: make(map[models.ChainID]decimal.Decimal),
		stopChan:       make(chan struct{}),
	}
	for _, e := range opts.Executors {
		if e != nil {
			w.executors[e.Chain()] = e
		}
	}
	reg.OnPublish(func(s *registry.Snapshot) {
		w.notify(Event{Type: EventCoinsUpdated, Data: s})
	})
	return w
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			w.log.Debug().Str("event", string(event.Type)).Msg("subscriber full, event dropped")
		}
	}
}

// Start runs the registry writer and both refresh loops until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-w.stopChan:
		case <-ctx.Done():
		}
		cancel()
	}()

	w.wg.Add(3)
	go func() {
		defer w.wg.Done()
		_ = w.registry.Run(ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.loop(ctx, "prices", w.opts.PriceInterval, w.refreshPrices)
	}()
	go func() {
		defer w.wg.Done()
		w.loop(ctx, "holdings", w.opts.HoldingsInterval, w.refreshHoldings)
	}()
}

// Stop stops the monitoring loops.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// Wait blocks until every goroutine started by Start has returned.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// loop runs tick immediately, then interval after each tick completes, so ticks never overlap.
func (w *Watcher) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context)) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			start := time.Now()
			tick(ctx)
			w.metrics.ObserveTick(name, time.Since(start).Seconds())
			timer.Reset(interval)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// bootstrap builds the registry from the catalog until one build has succeeded.
func (w *Watcher) bootstrap(ctx context.Context) error {
	if w.builder.Built() {
		return nil
	}
	catalog, err := w.market.FetchCatalog(ctx, w.opts.CatalogURL)
	w.mu.Lock()
	w.catalogErr = err
	w.mu.Unlock()
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("catalog unavailable")
		}
		return err
	}
	if _, err := w.builder.Build(ctx, w.registry, catalog); err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	w.log.Info().Int("coins", w.registry.Len()).Msg("registry built")
	return nil
}

// refreshPrices walks the coins in order, one pair request at a time, and publishes the
// collected quotes. A cancelled tick publishes nothing.
func (w *Watcher) refreshPrices(ctx context.Context) {
	if err := w.bootstrap(ctx); err != nil && w.registry.Len() == 0 {
		return
	}

	snap := w.registry.Snapshot()
	quotes := make(map[string]*feed.PairQuote, len(snap.Coins))
	for _, c := range snap.Coins {
		if ctx.Err() != nil {
			return
		}
		if c.PairID == "" || c.ChainID == "" {
			continue
		}
		if q := w.market.SafePair(ctx, c.ChainID, c.PairID); q != nil {
			quotes[c.ID] = q
		}
	}
	w.refreshNativePrices(ctx)
	if ctx.Err() != nil {
		return
	}

	_, err := w.registry.CompareAndSwap(ctx, snap.Version, applyQuotes(snap.Coins, quotes))
	if errors.Is(err, registry.ErrVersionConflict) {
		w.log.Debug().Uint64("version", snap.Version).Msg("snapshot moved during tick, reapplying quotes")
		_, err = w.registry.Update(ctx, func(coins []models.Coin) ([]models.Coin, error) {
			return applyQuotes(coins, quotes), nil
		})
	}
	if err != nil && ctx.Err() == nil {
		w.log.Warn().Err(err).Msg("price update not published")
	}

	w.mu.Lock()
	w.lastPriceTick = time.Now().UTC()
	w.mu.Unlock()
	w.notify(Event{Type: EventStatusUpdated, Data: w.Status()})
}

func applyQuotes(coins []models.Coin, quotes map[string]*feed.PairQuote) []models.Coin {
	out := make([]models.Coin, len(coins))
	copy(out, coins)
	for i := range out {
		if q, ok := quotes[out[i].ID]; ok {
			registry.ApplyQuote(&out[i], q)
		}
	}
	return out
}

func (w *Watcher) refreshNativePrices(ctx context.Context) {
	for chain, pair := range w.opts.ReferencePairs {
		if pair == "" {
			continue
		}
		q := w.market.SafePair(ctx, chain, pair)
		if q == nil || !q.HasPrice {
			continue
		}
		w.mu.Lock()
		w.nativePrices[chain] = decimal.NewFromFloat(q.PriceUsd)
		w.mu.Unlock()
	}
}

// refreshHoldings resolves every coin balance for the wallet of its chain and recomputes
// both holdings views. It never writes the registry.
func (w *Watcher) refreshHoldings(ctx context.Context) {
	snap := w.registry.Snapshot()
	balances := make(map[string]decimal.Decimal, len(snap.Coins))
	for _, c := range snap.Coins {
		if ctx.Err() != nil {
			return
		}
		wallet := w.opts.Wallets.For(c.ChainID)
		token := c.TokenAddress()
		if wallet == "" || token == "" {
			continue
		}
		balances[c.ID] = w.balances.Balance(ctx, c.ChainID, wallet, token)
	}

	natives := make(map[models.ChainID]decimal.Decimal, len(models.SupportedChains))
	for _, chain := range models.SupportedChains {
		if wallet := w.opts.Wallets.For(chain); wallet != "" {
			natives[chain] = w.balances.Balance(ctx, chain, wallet, rpc.NativeToken(chain))
		}
	}
	if ctx.Err() != nil {
		return
	}

	p := holdings.Compute(snap.Coins, balances)
	w.mu.Lock()
	w.portfolio = p
	w.nativeBalances = natives
	w.lastHoldings = time.Now().UTC()
	w.mu.Unlock()

	w.metrics.SetHoldings("all", p.Total.InexactFloat64())
	w.metrics.SetHoldings("rewards", p.RewardsTotal.InexactFloat64())
	w.notify(Event{Type: EventHoldingsUpdated, Data: HoldingsPayload{
		Holdings: p.HoldingsView(),
		Rewards:  p.RewardsView(),
	}})
}

// Snapshot returns a copy of the current registry snapshot.
func (w *Watcher) Snapshot() *registry.Snapshot {
	return w.registry.Snapshot()
}

func (w *Watcher) Coin(id string) (models.Coin, bool) {
	return w.registry.Get(id)
}

// Gainers returns the top n coins by 24h change.
func (w *Watcher) Gainers(n int) []models.Coin {
	return registry.TopGainers(w.registry.Snapshot(), n)
}

// Portfolio returns the latest holdings computation.
func (w *Watcher) Portfolio() holdings.Portfolio {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.portfolio
}

func (w *Watcher) Wallets() models.Wallets {
	return w.opts.Wallets
}

// NativePrice returns the USD price of chain's native coin and whether one is known.
func (w *Watcher) NativePrice(chain models.ChainID) (decimal.Decimal, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.nativePrices[chain]
	return p, ok
}

func (w *Watcher) Status() Status {
	snap := w.registry.Snapshot()
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := Status{
		Version:          snap.Version,
		Coins:            len(snap.Coins),
		UpdatedAt:        snap.UpdatedAt,
		NativePrices:     make(map[string]string, len(w.nativePrices)),
		NativeBalances:   make(map[string]string, len(w.nativeBalances)),
		Wallets:          make(map[string]string),
		LastPriceTick:    w.lastPriceTick,
		LastHoldingsTick: w.lastHoldings,
	}
	for chain, p := range w.nativePrices {
		st.NativePrices[string(chain)] = p.StringFixed(utils.FiatDecimals)
	}
	for chain, b := range w.nativeBalances {
		st.NativeBalances[string(chain)] = b.StringFixed(4)
	}
	for _, chain := range models.SupportedChains {
		if wallet := w.opts.Wallets.For(chain); wallet != "" {
			st.Wallets[string(chain)] = utils.ShortAddress(wallet)
		}
	}
	if w.catalogErr != nil {
		st.CatalogError = w.catalogErr.Error()
	}
	return st
}

// Search looks up tradable pairs on the supported chains.
func (w *Watcher) Search(ctx context.Context, query string) ([]feed.SearchResult, error) {
	return w.market.Search(ctx, query)
}

// SelectSearchResult admits the result as a coin. added is false when the id is already tracked.
func (w *Watcher) SelectSearchResult(ctx context.Context, r feed.SearchResult) (models.Coin, bool, error) {
	if !r.ChainID.Valid() {
		return models.Coin{}, false, fmt.Errorf("%w: %s", rpc.ErrUnsupportedChain, r.ChainID)
	}
	coin := registry.CoinFromSearch(r)
	added, err := w.registry.Admit(ctx, coin)
	if err != nil {
		return models.Coin{}, false, err
	}
	if added {
		w.log.Info().Str("id", coin.ID).Str("chain", string(coin.ChainID)).Msg("coin admitted from search")
		w.notify(Event{Type: EventCoinAdmitted, Data: coin})
	}
	return coin, added, nil
}

// Chart returns the USD price history of a tracked coin.
func (w *Watcher) Chart(ctx context.Context, id string, days int) ([]models.PricePoint, error) {
	coin, ok := w.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCoinNotFound, id)
	}
	if coin.CoinGeckoID == "" {
		return nil, fmt.Errorf("coin %s has no price history source", coin.ID)
	}
	return w.market.FetchMarketChart(ctx, coin.CoinGeckoID, days)
}

// QuoteSwap checks and prices a swap of coin id. amount is in the native coin for a buy
// and in the token for a sell.
func (w *Watcher) QuoteSwap(ctx context.Context, id string, side swap.Side, amount decimal.Decimal) (*swap.Quote, error) {
	coin, req, exec, err := w.swapRequest(ctx, id, side, amount)
	if err != nil {
		return nil, err
	}
	q, err := swap.Prepare(ctx, exec, req)
	if err != nil {
		return nil, err
	}
	q.AmountInUSD = w.spendValue(coin, side, amount)
	return q, nil
}

// BuildSwapTransaction quotes a swap and returns the unsigned transaction, where the chain supports it.
func (w *Watcher) BuildSwapTransaction(ctx context.Context, id string, side swap.Side, amount decimal.Decimal) (*swap.UnsignedTx, error) {
	_, req, exec, err := w.swapRequest(ctx, id, side, amount)
	if err != nil {
		return nil, err
	}
	builder, ok := exec.(TransactionBuilder)
	if !ok {
		return nil, fmt.Errorf("%w: %s swaps are returned as router calls", rpc.ErrUnsupportedChain, exec.Chain())
	}
	q, err := swap.Prepare(ctx, exec, req)
	if err != nil {
		return nil, err
	}
	return builder.BuildTransaction(ctx, q, req.Wallet)
}

func (w *Watcher) swapRequest(ctx context.Context, id string, side swap.Side, amount decimal.Decimal) (models.Coin, swap.Request, swap.Executor, error) {
	coin, ok := w.registry.Get(id)
	if !ok {
		return coin, swap.Request{}, nil, fmt.Errorf("%w: %s", ErrCoinNotFound, id)
	}
	exec, ok := w.executors[coin.ChainID]
	if !ok {
		return coin, swap.Request{}, nil, fmt.Errorf("%w: %s", rpc.ErrUnsupportedChain, coin.ChainID)
	}
	wallet := w.opts.Wallets.For(coin.ChainID)
	req := swap.Request{
		Wallet:       wallet,
		TokenAddress: coin.TokenAddress(),
		Side:         side,
		Amount:       amount,
	}
	if wallet != "" && req.TokenAddress != "" {
		spend := rpc.NativeToken(coin.ChainID)
		if side == swap.Sell {
			spend = req.TokenAddress
		}
		req.Balance = w.balances.Balance(ctx, coin.ChainID, wallet, spend)

		// Requests Prepare will reject never reach the chain.
		if amount.IsPositive() && amount.LessThanOrEqual(req.Balance) {
			dec, err := w.balances.Decimals(ctx, coin.ChainID, req.TokenAddress)
			if err != nil {
				return coin, req, exec, err
			}
			req.TokenDecimals = dec
		}
	}
	return coin, req, exec, nil
}

func (w *Watcher) spendValue(coin models.Coin, side swap.Side, amount decimal.Decimal) decimal.Decimal {
	if side == swap.Sell {
		return amount.Mul(coin.PriceDecimal()).Round(utils.FiatDecimals)
	}
	price, ok := w.NativePrice(coin.ChainID)
	if !ok {
		return decimal.Zero
	}
	return amount.Mul(price).Round(utils.FiatDecimals)
}

// RampURL returns the fiat widget address for the wallet of chain.
func (w *Watcher) RampURL(flow ramp.Flow, chain models.ChainID) (string, error) {
	return ramp.WidgetURL(w.opts.Ramp, flow, chain, w.opts.Wallets.For(chain))
}
