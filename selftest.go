package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"memefolio/pkg/config"
	"memefolio/pkg/feed"
	"memefolio/pkg/models"
	"memefolio/pkg/rpc"
	"memefolio/pkg/utils"
)

// runTest checks the configuration, checks every endpoint and returns the exit code.
func runTest(cfg *config.Config, path string, jsonOut, dryRun bool) int {
	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
		DryRun:         dryRun,
	}
	say := func(format string, args ...interface{}) {
		if !jsonOut {
			fmt.Printf(format, args...)
		}
	}
	finish := func(code int) int {
		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		}
		return code
	}

	say("Testing configuration at: %s\n", path)

	if err := cfg.Validate(); err != nil {
		report.ValidStructure = false
		for _, p := range strings.Split(strings.TrimPrefix(err.Error(), "validation failed: "), "; ") {
			report.StructureErrors = append(report.StructureErrors, p)
			say("Error: %s\n", p)
		}
		return finish(1)
	}

	ctx := context.Background()
	client := feed.NewClient(
		feed.WithTimeout(cfg.FeedTimeout()),
		feed.WithUserAgent(cfg.Feeds.UserAgent),
		feed.WithDexScreenerBaseURL(cfg.Feeds.DexScreenerURL),
		feed.WithCoinGeckoBaseURL(cfg.Feeds.CoinGeckoURL),
		feed.WithCatalogAttempts(1),
	)

	say("Catalog: %s ... ", cfg.Feeds.CatalogURL)
	catalog := models.FeedResult{Name: feed.SourceCatalog, URL: cfg.Feeds.CatalogURL}
	entries, err := client.FetchCatalog(ctx, cfg.Feeds.CatalogURL)
	if err != nil {
		catalog.Status = "error"
		catalog.Error = err.Error()
		say("Failed: %v\n", err)
	} else {
		catalog.Status = "ok"
		catalog.Detail = fmt.Sprintf("%d entries", len(entries))
		report.CatalogEntries = len(entries)
		say("OK (%d entries)\n", len(entries))
	}
	report.Feeds = append(report.Feeds, catalog)

	configUpdated := false
	for _, id := range models.SupportedChains {
		cc := cfg.Chain(id)
		cResult := models.ChainResult{Chain: id, Wallet: utils.ShortAddress(cc.Wallet)}
		say("Testing Chain: %s (%s)\n", id.Label(), id.NativeSymbol())

		for _, u := range cc.RPCURLs {
			say("  RPC: %s ... ", u)
			var res models.EndpointResult
			if id == models.Ethereum {
				res = rpc.CheckEVM(ctx, u, cc.Timeout())
			} else {
				res = rpc.CheckSolana(ctx, u, cc.Timeout())
			}
			if res.Status == "ok" {
				cResult.Healthy = true
				say("OK (%dms)\n", res.LatencyMs)
			} else {
				say("Failed: %s\n", res.Error)
			}
			cResult.Endpoints = append(cResult.Endpoints, res)
		}

		if cc.ReferencePair == "" {
			if id == models.Solana {
				cc.ReferencePair = config.DefaultSOLPair
				cfg.Chains.Solana.ReferencePair = cc.ReferencePair
			} else {
				cc.ReferencePair = config.DefaultETHPair
				cfg.Chains.Ethereum.ReferencePair = cc.ReferencePair
			}
			configUpdated = true
			say("  Reference pair missing, using default %s\n", cc.ReferencePair)
		}

		say("  Price feed: %s ... ", cc.ReferencePair)
		pf := models.FeedResult{Name: feed.SourceDexScreener + ":" + string(id), URL: cfg.Feeds.DexScreenerURL}
		pairCtx, cancel := context.WithTimeout(ctx, cfg.FeedTimeout())
		q, err := client.FetchPair(pairCtx, id, cc.ReferencePair)
		cancel()
		switch {
		case err != nil:
			pf.Status = "error"
			pf.Error = err.Error()
			say("Failed: %v\n", err)
		case q == nil || !q.HasPrice:
			pf.Status = "error"
			pf.Error = "pair has no price"
			say("No price\n")
		default:
			pf.Status = "ok"
			pf.Detail = fmt.Sprintf("%s $%s", id.NativeSymbol(), q.PriceString())
			say("OK (%s)\n", pf.Detail)
		}
		report.Feeds = append(report.Feeds, pf)
		report.Chains = append(report.Chains, cResult)
	}

	gecko := models.FeedResult{Name: feed.SourceCoinGecko, URL: cfg.Feeds.CoinGeckoURL}
	say("CoinGecko: %s ... ", cfg.Feeds.CoinGeckoURL)
	geckoCtx, cancel := context.WithTimeout(ctx, 2*cfg.FeedTimeout()+time.Second)
	meta, err := client.FetchCoinMetadata(geckoCtx, "solana")
	cancel()
	if err != nil {
		gecko.Status = "error"
		gecko.Error = err.Error()
		say("Failed: %v\n", err)
	} else {
		gecko.Status = "ok"
		gecko.Detail = meta.Name
		say("OK\n")
	}
	report.Feeds = append(report.Feeds, gecko)

	if configUpdated {
		report.ConfigUpdated = true
		say("\nUpdating configuration with default reference pairs...\n")
		if dryRun {
			say("Dry run enabled: Configuration NOT saved.\n")
		} else if err := config.SaveConfig(cfg, path); err != nil {
			report.SaveError = err.Error()
			say("Failed to save config: %v\n", err)
		} else {
			say("Configuration saved successfully.\n")
		}
	}

	code := 0
	if report.CatalogEntries == 0 {
		code = 1
	}
	return finish(code)
}
