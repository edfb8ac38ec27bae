package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"memefolio/pkg/config"
	"memefolio/pkg/feed"
	"memefolio/pkg/metrics"
	"memefolio/pkg/models"
	"memefolio/pkg/ramp"
	"memefolio/pkg/registry"
	"memefolio/pkg/rpc"
	"memefolio/pkg/server"
	"memefolio/pkg/swap"
	"memefolio/pkg/tui"
	"memefolio/pkg/utils"
	"memefolio/pkg/watcher"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	dryRunFlag := flag.Bool("dry-run", false, "Perform a trial run with no changes made")
	configFlag := flag.String("config", "", "Path to configuration file")
	envFlag := flag.String("env", "", "Path to a .env file with wallet and RPC overrides")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 0, "Port for API server (overrides config)")
	restoreFlag := flag.Bool("restore", false, "Restore the newest configuration backup and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("memefolio version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Restore failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored %s from the newest backup\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}
	var envFiles []string
	if *envFlag != "" {
		envFiles = append(envFiles, *envFlag)
	}
	cfg.LoadEnv(envFiles...)
	if *portFlag > 0 {
		cfg.Port = *portFlag
	}

	if *testFlag || *testLongFlag {
		os.Exit(runTest(cfg, path, *jsonFlag, *dryRunFlag))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Printf("Fix the configuration at %s or run with -test for details.\n", path)
		os.Exit(1)
	}

	logOut, closeLog, err := openLog(cfg, path, *serverFlag)
	if err != nil {
		fmt.Printf("Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	log := utils.NewLoggerTo(logOut, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	w, closeClients := buildWatcher(ctx, cfg, log, m)
	w.Start(ctx)

	srv := server.NewServer(w, m, log)
	srvDone := make(chan struct{})
	go func() {
		defer close(srvDone)
		if err := srv.Start(ctx, cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	if *serverFlag {
		log.Info().Int("port", cfg.Port).Str("version", Version).Msg("running in server mode")
		<-ctx.Done()
	} else if err := tui.Start(w, cfg.Global, Version); err != nil {
		fmt.Printf("Alas, there's been an error: %v\n", err)
	}

	stop()
	w.Stop()
	w.Wait()
	select {
	case <-srvDone:
	case <-time.After(6 * time.Second):
	}
	closeClients()
}

// openLog sends logs to stderr in server mode and to a file while the TUI owns the terminal.
func openLog(cfg *config.Config, configPath string, serverMode bool) (io.Writer, func(), error) {
	if serverMode && cfg.LogFile == "" {
		return os.Stderr, func() {}, nil
	}
	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(filepath.Dir(configPath), "memefolio.log")
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// buildWatcher wires the feeds, resolvers and executors. The returned func closes the
// long-lived chain clients once the watcher has stopped.
func buildWatcher(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*watcher.Watcher, func()) {
	breakerCfg := func(source string) feed.BreakerConfig {
		bc := feed.DefaultBreakerConfig(source)
		bc.FailureThreshold = cfg.Feeds.BreakerThreshold
		bc.Cooldown = time.Duration(cfg.Feeds.BreakerCooldownS) * time.Second
		return bc
	}
	market := feed.NewClient(
		feed.WithLogger(log),
		feed.WithMetrics(m),
		feed.WithTimeout(cfg.FeedTimeout()),
		feed.WithUserAgent(cfg.Feeds.UserAgent),
		feed.WithDexScreenerBaseURL(cfg.Feeds.DexScreenerURL),
		feed.WithCoinGeckoBaseURL(cfg.Feeds.CoinGeckoURL),
		feed.WithBreaker(feed.SourceDexScreener, feed.NewBreaker(breakerCfg(feed.SourceDexScreener), log)),
		feed.WithBreaker(feed.SourceCoinGecko, feed.NewBreaker(breakerCfg(feed.SourceCoinGecko), log)),
	)

	eth := cfg.Chain(models.Ethereum)
	sol := cfg.Chain(models.Solana)
	var resolvers []rpc.BalanceResolver
	if len(eth.RPCURLs) > 0 {
		resolvers = append(resolvers, rpc.NewEVMResolver(eth.RPCURLs, eth.Timeout(), log))
	}
	if len(sol.RPCURLs) > 0 {
		resolvers = append(resolvers, rpc.NewSolanaResolver(sol.RPCURLs, sol.Timeout(), log))
	}
	balances := rpc.NewResolver(log, m, resolvers...)

	executors := []swap.Executor{
		swap.NewJupiterExecutor(cfg.Swap.JupiterURL, cfg.Swap.SlippageBps, cfg.FeedTimeout()),
	}
	closeClients := func() {}
	if len(eth.RPCURLs) > 0 {
		dialCtx, cancel := context.WithTimeout(ctx, eth.Timeout())
		client, err := ethclient.DialContext(dialCtx, eth.RPCURLs[0])
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("rpc", eth.RPCURLs[0]).Msg("ethereum swaps disabled")
		} else {
			executors = append(executors, swap.NewUniswapExecutor(client, time.Duration(cfg.Swap.DeadlineMinutes)*time.Minute))
			closeClients = client.Close
		}
	}

	reg := registry.New(log, m)
	w := watcher.NewWatcher(reg, market, balances, watcher.Options{
		CatalogURL:       cfg.Feeds.CatalogURL,
		PriceInterval:    cfg.PriceInterval(),
		HoldingsInterval: cfg.HoldingsInterval(),
		Wallets:          cfg.Wallets(),
		ReferencePairs: map[models.ChainID]string{
			models.Ethereum: eth.ReferencePair,
			models.Solana:   sol.ReferencePair,
		},
		Executors: executors,
		Ramp: ramp.Config{
			APIKey:      cfg.Ramp.APIKey,
			Environment: cfg.Ramp.Environment,
		},
	}, log, m)
	return w, closeClients
}
