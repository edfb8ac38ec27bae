package watcher

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"memefolio/pkg/feed"
	"memefolio/pkg/models"
	"memefolio/pkg/ramp"
	"memefolio/pkg/registry"
	"memefolio/pkg/rpc"
	"memefolio/pkg/swap"

	"github.com/ethereum/go-ethereum"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	ethWallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	solWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	pepeToken = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
	bonkMint  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

type MockMarket struct {
	mock.Mock
}

func (m *MockMarket) FetchCatalog(ctx context.Context, url string) ([]models.CatalogEntry, error) {
	args := m.Called(ctx, url)
	entries, _ := args.Get(0).([]models.CatalogEntry)
	return entries, args.Error(1)
}

func (m *MockMarket) SafePair(ctx context.Context, chain models.ChainID, pairID string) *feed.PairQuote {
	args := m.Called(ctx, chain, pairID)
	q, _ := args.Get(0).(*feed.PairQuote)
	return q
}

func (m *MockMarket) SafeMetadata(ctx context.Context, id string) *feed.CoinMetadata {
	args := m.Called(ctx, id)
	meta, _ := args.Get(0).(*feed.CoinMetadata)
	return meta
}

func (m *MockMarket) Search(ctx context.Context, query string) ([]feed.SearchResult, error) {
	args := m.Called(ctx, query)
	res, _ := args.Get(0).([]feed.SearchResult)
	return res, args.Error(1)
}

func (m *MockMarket) FetchMarketChart(ctx context.Context, id string, days int) ([]models.PricePoint, error) {
	args := m.Called(ctx, id, days)
	pts, _ := args.Get(0).([]models.PricePoint)
	return pts, args.Error(1)
}

type MockBalances struct {
	mock.Mock
}

func (m *MockBalances) Balance(ctx context.Context, chain models.ChainID, wallet, token string) decimal.Decimal {
	args := m.Called(ctx, chain, wallet, token)
	return args.Get(0).(decimal.Decimal)
}

func (m *MockBalances) Decimals(ctx context.Context, chain models.ChainID, token string) (int32, error) {
	args := m.Called(ctx, chain, token)
	return args.Get(0).(int32), args.Error(1)
}

// routerCaller answers getAmountsOut with one million wei per base unit in.
type routerCaller struct{}

func (routerCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	method, err := swap.RouterABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	in := args[0].(*big.Int)
	return method.Outputs.Pack([]*big.Int{in, new(big.Int).Mul(in, big.NewInt(1_000_000))})
}

type MockExecutor struct {
	mock.Mock
	chain models.ChainID
}

func (m *MockExecutor) Chain() models.ChainID { return m.chain }

func (m *MockExecutor) Quote(ctx context.Context, req swap.Request) (*swap.Quote, error) {
	args := m.Called(ctx, req)
	q, _ := args.Get(0).(*swap.Quote)
	return q, args.Error(1)
}

func newTestWatcher(t *testing.T, market *MockMarket, balances *MockBalances, opts Options) *Watcher {
	t.Helper()
	reg := registry.New(zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = reg.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return NewWatcher(reg, market, balances, opts, zerolog.Nop(), nil)
}

// seed publishes coins as a registry whose catalog build is already done.
func seed(t *testing.T, w *Watcher, coins ...models.Coin) {
	t.Helper()
	_, err := w.registry.Update(context.Background(), func([]models.Coin) ([]models.Coin, error) {
		return coins, nil
	})
	require.NoError(t, err)
	_, err = w.builder.Build(context.Background(), w.registry, nil)
	require.NoError(t, err)
}

func change(v float64) *float64 { return &v }

func waitFor(t *testing.T, sub Subscriber, typ EventType) Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return Event{}
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	w := newTestWatcher(t, new(MockMarket), new(MockBalances), Options{})
	sub := w.Subscribe()
	assert.NotNil(t, sub)

	w.mu.RLock()
	assert.Equal(t, 1, len(w.subscribers))
	w.mu.RUnlock()

	w.Unsubscribe(sub)
	w.mu.RLock()
	assert.Equal(t, 0, len(w.subscribers))
	w.mu.RUnlock()

	_, open := <-sub
	assert.False(t, open)
}

func TestNotify_DropsForSlowSubscriber(t *testing.T) {
	w := newTestWatcher(t, new(MockMarket), new(MockBalances), Options{})
	sub := w.Subscribe()
	for i := 0; i < 150; i++ {
		w.notify(Event{Type: EventStatusUpdated})
	}
	assert.Len(t, sub, 100)
}

func TestRefreshPrices_BuildsAndApplies(t *testing.T) {
	market := new(MockMarket)
	market.On("FetchCatalog", mock.Anything, "catalog").Return([]models.CatalogEntry{
		{ID: "pepe", Name: "Pepe", Contract: pepeToken, DexScreenerPairID: "pepe-pair", ChainID: "ethereum", CoinGeckoID: "pepe", Rewards: true},
		{ID: "bonk", Name: "Bonk", DexScreenerPairID: "bonk-pair", ChainID: "solana"},
		{ID: "nopair", Name: "NoPair", ChainID: "solana"},
	}, nil).Once()
	market.On("SafeMetadata", mock.Anything, mock.Anything).Return(nil)
	market.On("SafePair", mock.Anything, models.Ethereum, "pepe-pair").Return(&feed.PairQuote{
		PriceUsd: 0.0000125, HasPrice: true, PriceChange24h: change(7.891), MarketCap: 5e9, Volume24h: 1e6, LiquidityUsd: 2e6,
		BaseTokenAddress: pepeToken,
	})
	market.On("SafePair", mock.Anything, models.Solana, "bonk-pair").Return(nil)
	market.On("SafePair", mock.Anything, models.Solana, "sol-ref").Return(&feed.PairQuote{PriceUsd: 150.25, HasPrice: true})

	w := newTestWatcher(t, market, new(MockBalances), Options{
		CatalogURL:     "catalog",
		ReferencePairs: map[models.ChainID]string{models.Solana: "sol-ref"},
	})
	sub := w.Subscribe()

	w.refreshPrices(context.Background())

	snap := w.Snapshot()
	require.Len(t, snap.Coins, 3)
	assert.Equal(t, uint64(2), snap.Version, "one publish for the build, one for the quotes")

	pepe, _ := w.Coin("pepe")
	assert.Equal(t, "0.00001250", pepe.Price)
	assert.Equal(t, "7.89", pepe.PriceChange24h)
	assert.Equal(t, pepeToken, pepe.Mint)
	assert.Equal(t, 1e6, pepe.Volume)

	bonk, _ := w.Coin("bonk")
	assert.Equal(t, "0.00000000", bonk.Price)
	assert.Equal(t, models.ChangeUnavailable, bonk.PriceChange24h)

	price, ok := w.NativePrice(models.Solana)
	require.True(t, ok)
	assert.Equal(t, "150.25", price.String())
	assert.Equal(t, "150.25", w.Status().NativePrices["solana"])

	ev := waitFor(t, sub, EventCoinsUpdated)
	assert.IsType(t, &registry.Snapshot{}, ev.Data)
	waitFor(t, sub, EventStatusUpdated)

	// Same quotes again: nothing changes, nothing is published.
	w.refreshPrices(context.Background())
	assert.Equal(t, uint64(2), w.registry.Version())
	market.AssertNotCalled(t, "SafePair", mock.Anything, models.Solana, "")
}

func TestRefreshPrices_CatalogFailure(t *testing.T) {
	market := new(MockMarket)
	market.On("FetchCatalog", mock.Anything, mock.Anything).Return(nil, errors.New("github down"))

	w := newTestWatcher(t, market, new(MockBalances), Options{})
	w.refreshPrices(context.Background())

	assert.Zero(t, w.registry.Len())
	assert.Contains(t, w.Status().CatalogError, "github down")
	market.AssertNotCalled(t, "SafePair", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefreshPrices_CatalogRecoversAfterAdmission(t *testing.T) {
	ctx := context.Background()
	market := new(MockMarket)
	market.On("FetchCatalog", mock.Anything, "catalog").Return(nil, errors.New("github down")).Once()
	market.On("FetchCatalog", mock.Anything, "catalog").Return([]models.CatalogEntry{
		{ID: "bonk", Name: "Bonk", DexScreenerPairID: "bonk-pair", ChainID: "solana"},
	}, nil).Once()
	market.On("SafeMetadata", mock.Anything, mock.Anything).Return(nil)
	market.On("SafePair", mock.Anything, models.Solana, "wif-pair").Return(&feed.PairQuote{PriceUsd: 2, HasPrice: true})
	market.On("SafePair", mock.Anything, models.Solana, "bonk-pair").Return(&feed.PairQuote{PriceUsd: 0.5, HasPrice: true})

	w := newTestWatcher(t, market, new(MockBalances), Options{CatalogURL: "catalog"})
	_, added, err := w.SelectSearchResult(ctx, feed.SearchResult{
		Name: "WIF", ChainID: models.Solana, PairID: "wif-pair", BaseTokenAddress: "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm",
	})
	require.NoError(t, err)
	require.True(t, added)

	// The catalog is down: the admitted coin still gets prices.
	w.refreshPrices(ctx)
	wif, ok := w.Coin("wif")
	require.True(t, ok)
	assert.Equal(t, "2.00000000", wif.Price)
	assert.Contains(t, w.Status().CatalogError, "github down")

	w.refreshPrices(ctx)
	snap := w.Snapshot()
	require.Len(t, snap.Coins, 2)
	assert.Equal(t, "bonk", snap.Coins[0].ID)
	assert.Equal(t, "wif", snap.Coins[1].ID)
	assert.Equal(t, "0.50000000", snap.Coins[0].Price)
	assert.Empty(t, w.Status().CatalogError)

	w.refreshPrices(ctx)
	market.AssertNumberOfCalls(t, "FetchCatalog", 2)
}

func TestRefreshPrices_CancelledTickPublishesNothing(t *testing.T) {
	market := new(MockMarket)
	w := newTestWatcher(t, market, new(MockBalances), Options{})
	seed(t, w,
		models.Coin{ID: "a", Price: "1.00000000", ChainID: models.Solana, PairID: "pa"},
		models.Coin{ID: "b", Price: "1.00000000", ChainID: models.Solana, PairID: "pb"},
	)
	before := w.registry.Version()

	ctx, cancel := context.WithCancel(context.Background())
	market.On("SafePair", mock.Anything, models.Solana, "pa").
		Run(func(mock.Arguments) { cancel() }).
		Return(&feed.PairQuote{PriceUsd: 9, HasPrice: true})

	w.refreshPrices(ctx)

	assert.Equal(t, before, w.registry.Version())
	a, _ := w.Coin("a")
	assert.Equal(t, "1.00000000", a.Price)
	market.AssertNotCalled(t, "SafePair", mock.Anything, models.Solana, "pb")
}

func TestRefreshPrices_ConflictReappliesQuotes(t *testing.T) {
	market := new(MockMarket)
	w := newTestWatcher(t, market, new(MockBalances), Options{})
	seed(t, w, models.Coin{ID: "a", Price: "1.00000000", ChainID: models.Solana, PairID: "pa"})

	market.On("SafePair", mock.Anything, models.Solana, "pa").
		Run(func(mock.Arguments) {
			// Another writer lands while the tick is collecting quotes.
			_, err := w.registry.Admit(context.Background(), models.Coin{ID: "late", Price: "0.10000000", ChainID: models.Solana})
			require.NoError(t, err)
		}).
		Return(&feed.PairQuote{PriceUsd: 2, HasPrice: true, PriceChange24h: change(1)}).Once()

	w.refreshPrices(context.Background())

	snap := w.Snapshot()
	require.Len(t, snap.Coins, 2)
	assert.Equal(t, "2.00000000", snap.Coins[0].Price)
	assert.Equal(t, "late", snap.Coins[1].ID)
	assert.Equal(t, uint64(3), snap.Version)
}

func TestRefreshHoldings(t *testing.T) {
	balances := new(MockBalances)
	w := newTestWatcher(t, new(MockMarket), balances, Options{
		Wallets: models.Wallets{models.Solana: solWallet},
	})
	seed(t, w,
		models.Coin{ID: "bonk", Price: "0.50000000", ChainID: models.Solana, Mint: bonkMint, Rewards: true},
		models.Coin{ID: "wif", Price: "2.00000000", ChainID: models.Solana, Contract: "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"},
		models.Coin{ID: "pepe", Price: "0.00001000", ChainID: models.Ethereum, Contract: pepeToken},
		models.Coin{ID: "nomint", Price: "1.00000000", ChainID: models.Solana},
	)
	balances.On("Balance", mock.Anything, models.Solana, solWallet, bonkMint).Return(decimal.RequireFromString("10"))
	balances.On("Balance", mock.Anything, models.Solana, solWallet, "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm").Return(decimal.Zero)
	balances.On("Balance", mock.Anything, models.Solana, solWallet, rpc.SolanaNativeToken).Return(decimal.RequireFromString("1.5"))

	sub := w.Subscribe()
	before := w.registry.Version()
	w.refreshHoldings(context.Background())

	p := w.Portfolio()
	assert.Equal(t, "5.00", p.HoldingsView().Total)
	require.Len(t, p.Holdings, 4)
	assert.Equal(t, "0.00", p.Holdings[1].UserUsdValue)
	require.Len(t, p.Rewards, 1)
	assert.Equal(t, "bonk", p.Rewards[0].ID)
	assert.Equal(t, "1.5000", w.Status().NativeBalances["solana"])
	assert.Equal(t, before, w.registry.Version(), "holdings never write the registry")

	ev := waitFor(t, sub, EventHoldingsUpdated)
	payload, ok := ev.Data.(HoldingsPayload)
	require.True(t, ok)
	assert.Equal(t, "5.00", payload.Rewards.Total)

	balances.AssertNotCalled(t, "Balance", mock.Anything, models.Ethereum, mock.Anything, mock.Anything)
}

func TestSelectSearchResult(t *testing.T) {
	market := new(MockMarket)
	market.On("Search", mock.Anything, "wif").Return([]feed.SearchResult{
		{Name: "Dogwifhat", ChainID: models.Solana, PairID: "wif-pair", BaseTokenAddress: "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm", PriceUsd: 2.5, HasPrice: true},
	}, nil)
	w := newTestWatcher(t, market, new(MockBalances), Options{})
	sub := w.Subscribe()

	results, err := w.Search(context.Background(), "wif")
	require.NoError(t, err)
	require.Len(t, results, 1)

	coin, added, err := w.SelectSearchResult(context.Background(), results[0])
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "dogwifhat", coin.ID)
	assert.Equal(t, "2.50000000", coin.Price)

	ev := waitFor(t, sub, EventCoinAdmitted)
	assert.Equal(t, "dogwifhat", ev.Data.(models.Coin).ID)

	_, added, err = w.SelectSearchResult(context.Background(), results[0])
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 1, w.registry.Len())

	_, _, err = w.SelectSearchResult(context.Background(), feed.SearchResult{Name: "x", ChainID: "bsc"})
	assert.ErrorIs(t, err, rpc.ErrUnsupportedChain)
}

func TestChart(t *testing.T) {
	market := new(MockMarket)
	market.On("FetchMarketChart", mock.Anything, "pepe", 30).Return([]models.PricePoint{{Price: 1}}, nil)
	w := newTestWatcher(t, market, new(MockBalances), Options{})
	seed(t, w,
		models.Coin{ID: "pepe", CoinGeckoID: "pepe"},
		models.Coin{ID: "nogecko"},
	)

	pts, err := w.Chart(context.Background(), "pepe", 30)
	require.NoError(t, err)
	assert.Len(t, pts, 1)

	_, err = w.Chart(context.Background(), "missing", 30)
	assert.ErrorIs(t, err, ErrCoinNotFound)
	_, err = w.Chart(context.Background(), "nogecko", 30)
	assert.Error(t, err)
}

func TestQuoteSwap(t *testing.T) {
	balances := new(MockBalances)
	exec := &MockExecutor{chain: models.Solana}
	w := newTestWatcher(t, new(MockMarket), balances, Options{
		Wallets:   models.Wallets{models.Solana: solWallet},
		Executors: []swap.Executor{exec},
	})
	seed(t, w,
		models.Coin{ID: "bonk", Price: "0.50000000", ChainID: models.Solana, Mint: bonkMint},
		models.Coin{ID: "pepe", ChainID: models.Ethereum, Contract: pepeToken},
	)
	w.nativePrices[models.Solana] = decimal.RequireFromString("150")
	balances.On("Balance", mock.Anything, models.Solana, solWallet, rpc.SolanaNativeToken).Return(decimal.RequireFromString("1"))
	balances.On("Balance", mock.Anything, models.Solana, solWallet, bonkMint).Return(decimal.RequireFromString("100"))
	balances.On("Decimals", mock.Anything, models.Solana, bonkMint).Return(int32(5), nil)

	_, err := w.QuoteSwap(context.Background(), "bonk", swap.Buy, decimal.RequireFromString("2"))
	assert.ErrorIs(t, err, swap.ErrInsufficientFunds)
	assert.Equal(t, "Insufficient balance to complete the transaction.", swap.UserMessage(err))
	exec.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)

	exec.On("Quote", mock.Anything, mock.MatchedBy(func(r swap.Request) bool {
		return r.Side == swap.Buy && r.TokenAddress == bonkMint && r.Balance.Equal(decimal.RequireFromString("1")) && r.TokenDecimals == 5
	})).Return(&swap.Quote{Chain: models.Solana}, nil)
	q, err := w.QuoteSwap(context.Background(), "bonk", swap.Buy, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "75", q.AmountInUSD.String())

	exec.On("Quote", mock.Anything, mock.MatchedBy(func(r swap.Request) bool { return r.Side == swap.Sell && r.TokenDecimals == 5 })).
		Return(&swap.Quote{Chain: models.Solana}, nil)
	q, err = w.QuoteSwap(context.Background(), "bonk", swap.Sell, decimal.RequireFromString("40"))
	require.NoError(t, err)
	assert.Equal(t, "20", q.AmountInUSD.String())

	_, err = w.QuoteSwap(context.Background(), "pepe", swap.Buy, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, rpc.ErrUnsupportedChain)
	_, err = w.QuoteSwap(context.Background(), "nope", swap.Buy, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, ErrCoinNotFound)

	_, err = w.BuildSwapTransaction(context.Background(), "bonk", swap.Buy, decimal.RequireFromString("0.5"))
	assert.ErrorIs(t, err, rpc.ErrUnsupportedChain, "mock executor cannot build transactions")
}

func TestQuoteSwap_SellUsesTokenDecimals(t *testing.T) {
	const (
		usdc    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
		unknown = "0x1111111111111111111111111111111111111111"
	)
	balances := new(MockBalances)
	w := newTestWatcher(t, new(MockMarket), balances, Options{
		Wallets:   models.Wallets{models.Ethereum: ethWallet},
		Executors: []swap.Executor{swap.NewUniswapExecutor(routerCaller{}, 0)},
	})
	seed(t, w,
		models.Coin{ID: "usdc", Price: "1.00000000", ChainID: models.Ethereum, Contract: usdc},
		models.Coin{ID: "broken", Price: "1.00000000", ChainID: models.Ethereum, Contract: unknown},
	)
	balances.On("Balance", mock.Anything, models.Ethereum, ethWallet, usdc).Return(decimal.RequireFromString("10"))
	balances.On("Decimals", mock.Anything, models.Ethereum, usdc).Return(int32(6), nil)
	balances.On("Balance", mock.Anything, models.Ethereum, ethWallet, unknown).Return(decimal.RequireFromString("10"))
	balances.On("Decimals", mock.Anything, models.Ethereum, unknown).Return(int32(0), errors.New("rpc down"))

	q, err := w.QuoteSwap(context.Background(), "usdc", swap.Sell, decimal.RequireFromString("5"))
	require.NoError(t, err)
	assert.Equal(t, "5000000", q.AmountInRaw)
	assert.Equal(t, "0.000005", q.AmountOut.String())
	assert.Equal(t, "5", q.AmountInUSD.String())

	_, err = w.QuoteSwap(context.Background(), "broken", swap.Sell, decimal.RequireFromString("5"))
	assert.ErrorContains(t, err, "rpc down")
}

func TestQuoteSwap_NoWallet(t *testing.T) {
	exec := &MockExecutor{chain: models.Ethereum}
	w := newTestWatcher(t, new(MockMarket), new(MockBalances), Options{Executors: []swap.Executor{exec}})
	seed(t, w, models.Coin{ID: "pepe", ChainID: models.Ethereum, Contract: pepeToken})

	_, err := w.QuoteSwap(context.Background(), "pepe", swap.Buy, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, swap.ErrNoWallet)
}

func TestRampURL(t *testing.T) {
	w := newTestWatcher(t, new(MockMarket), new(MockBalances), Options{
		Wallets: models.Wallets{models.Solana: solWallet},
		Ramp:    ramp.Config{APIKey: "pk_test", Environment: ramp.EnvSandbox},
	})
	u, err := w.RampURL(ramp.FlowBuy, models.Solana)
	require.NoError(t, err)
	assert.Contains(t, u, "walletAddress="+solWallet)

	_, err = w.RampURL(ramp.FlowSell, models.Ethereum)
	assert.ErrorIs(t, err, swap.ErrNoWallet)
}

func TestStartStop(t *testing.T) {
	market := new(MockMarket)
	market.On("FetchCatalog", mock.Anything, mock.Anything).Return([]models.CatalogEntry{
		{ID: "bonk", Name: "Bonk", DexScreenerPairID: "bonk-pair", ChainID: "solana"},
	}, nil).Once()
	market.On("SafeMetadata", mock.Anything, mock.Anything).Return(nil)
	market.On("SafePair", mock.Anything, mock.Anything, mock.Anything).Return(&feed.PairQuote{PriceUsd: 0.1, HasPrice: true})

	reg := registry.New(zerolog.Nop(), nil)
	w := NewWatcher(reg, market, new(MockBalances), Options{
		PriceInterval:    10 * time.Millisecond,
		HoldingsInterval: 10 * time.Millisecond,
	}, zerolog.Nop(), nil)
	sub := w.Subscribe()

	w.Start(context.Background())
	waitFor(t, sub, EventCoinsUpdated)
	waitFor(t, sub, EventHoldingsUpdated)

	w.Stop()
	w.Stop()
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	bonk, ok := w.Coin("bonk")
	require.True(t, ok)
	assert.Equal(t, "0.10000000", bonk.Price)
}
