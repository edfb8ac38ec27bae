package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvEthWallet  = "MEMEFOLIO_ETH_WALLET"
	EnvSolWallet  = "MEMEFOLIO_SOL_WALLET"
	EnvEthRPC     = "MEMEFOLIO_ETH_RPC"
	EnvSolRPC     = "MEMEFOLIO_SOL_RPC"
	EnvMoonPayKey = "MEMEFOLIO_MOONPAY_KEY"
	EnvLogLevel   = "MEMEFOLIO_LOG_LEVEL"
	EnvPort       = "MEMEFOLIO_PORT"
)

// LoadEnv reads .env files (best effort) and applies process environment overrides.
func (c *Config) LoadEnv(files ...string) {
	_ = godotenv.Load(files...)
	c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv overrides settings from lookup. RPC variables accept a comma separated list.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvEthWallet); ok {
		c.Chains.Ethereum.Wallet = v
	}
	if v, ok := get(EnvSolWallet); ok {
		c.Chains.Solana.Wallet = v
	}
	if v, ok := get(EnvEthRPC); ok {
		c.Chains.Ethereum.RPCURLs = splitList(v)
	}
	if v, ok := get(EnvSolRPC); ok {
		c.Chains.Solana.RPCURLs = splitList(v)
	}
	if v, ok := get(EnvMoonPayKey); ok {
		c.Ramp.APIKey = v
	}
	if v, ok := get(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := get(EnvPort); ok {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Port = p
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
