// Package ramp builds MoonPay widget URLs for buying and selling the native coins with fiat.
package ramp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"memefolio/pkg/models"
	"memefolio/pkg/rpc"
	"memefolio/pkg/swap"
)

type Flow string

const (
	FlowBuy  Flow = "buy"
	FlowSell Flow = "sell"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

var ErrUnknownFlow = errors.New("flow must be buy or sell")

// Config is the widget account setup.
type Config struct {
	APIKey      string
	Environment string
}

type preset struct {
	base, amount, target string
}

// presets holds the default currency pair and amount per flow and chain.
var presets = map[Flow]map[models.ChainID]preset{
	FlowBuy: {
		models.Solana:   {base: "usd", amount: "100", target: "sol"},
		models.Ethereum: {base: "usd", amount: "100", target: "eth"},
	},
	FlowSell: {
		models.Solana:   {base: "sol", amount: "10", target: "usd"},
		models.Ethereum: {base: "eth", amount: "1", target: "usd"},
	},
}

func ParseFlow(s string) (Flow, bool) {
	switch Flow(strings.ToLower(strings.TrimSpace(s))) {
	case FlowBuy:
		return FlowBuy, true
	case FlowSell:
		return FlowSell, true
	}
	return "", false
}

func host(flow Flow, env string) string {
	sub := string(flow)
	if env != EnvProduction {
		sub += "-sandbox"
	}
	return "https://" + sub + ".moonpay.com"
}

// WidgetURL returns the hosted widget address for flow on chain, funding or paying out wallet.
func WidgetURL(cfg Config, flow Flow, chain models.ChainID, wallet string) (string, error) {
	byChain, ok := presets[flow]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, flow)
	}
	p, ok := byChain[chain]
	if !ok {
		return "", fmt.Errorf("%w: %s", rpc.ErrUnsupportedChain, chain)
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return "", swap.ErrNoWallet
	}
	if err := rpc.ValidateAddress(chain, wallet); err != nil {
		return "", err
	}

	q := url.Values{}
	if cfg.APIKey != "" {
		q.Set("apiKey", cfg.APIKey)
	}
	q.Set("baseCurrencyCode", p.base)
	q.Set("baseCurrencyAmount", p.amount)
	q.Set("defaultCurrencyCode", p.target)
	q.Set("walletAddress", wallet)
	return host(flow, cfg.Environment) + "?" + q.Encode(), nil
}
