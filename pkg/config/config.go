package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"memefolio/pkg/models"
	"memefolio/pkg/rpc"
)

const ConfigFileName = ".memefolio.yaml"

const (
	DefaultCatalogURL     = "https://raw.githubusercontent.com/defi-techz/coindata/refs/heads/main/memecoins.json"
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DefaultCoinGeckoURL   = "https://api.coingecko.com/api/v3"
	DefaultJupiterURL     = "https://quote-api.jup.ag"
	DefaultEthereumRPC    = "https://cloudflare-eth.com"
	DefaultSolanaRPC      = "https://api.mainnet-beta.solana.com"
	DefaultETHPair        = "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"
	DefaultSOLPair        = "Czfq3xZZDmsdGdUyrNLtRhGc47cXcZtLG4crryfu44zE"
)

// FeedConfig configures the HTTP market data sources.
type FeedConfig struct {
	DexScreenerURL string `yaml:"dexscreener_url"`
	CoinGeckoURL   string `yaml:"coingecko_url"`
	CatalogURL     string `yaml:"catalog_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
	// Consecutive failures before a source is short-circuited.
	BreakerThreshold int `yaml:"breaker_threshold"`
	BreakerCooldownS int `yaml:"breaker_cooldown_seconds"`
}

// PollingConfig holds the refresher intervals.
type PollingConfig struct {
	PriceIntervalMs    int `yaml:"price_interval_ms"`
	HoldingsIntervalMs int `yaml:"holdings_interval_ms"`
}

// ChainConfig holds the RPC endpoints and connected wallet for a chain.
type ChainConfig struct {
	RPCURLs        []string `yaml:"rpc_urls"`
	Wallet         string   `yaml:"wallet,omitempty"`
	ReferencePair  string   `yaml:"reference_pair,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// ChainsConfig holds one entry per supported chain.
type ChainsConfig struct {
	Ethereum ChainConfig `yaml:"ethereum"`
	Solana   ChainConfig `yaml:"solana"`
}

// SwapConfig configures quoting.
type SwapConfig struct {
	JupiterURL      string `yaml:"jupiter_url"`
	SlippageBps     int    `yaml:"slippage_bps"`
	DeadlineMinutes int    `yaml:"deadline_minutes"`
}

// RampConfig configures the fiat widget.
type RampConfig struct {
	APIKey      string `yaml:"api_key,omitempty"`
	Environment string `yaml:"environment"`
}

// GlobalConfig holds UI settings.
type GlobalConfig struct {
	PrivacyTimeoutSeconds int `yaml:"privacy_timeout_seconds"`
	FiatDecimals          int `yaml:"fiat_decimals"`
	TokenDecimals         int `yaml:"token_decimals"`
}

// Config is the whole application configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	LogFile  string        `yaml:"log_file,omitempty"`
	Port     int           `yaml:"port"`
	Feeds    FeedConfig    `yaml:"feeds"`
	Polling  PollingConfig `yaml:"polling"`
	Chains   ChainsConfig  `yaml:"chains"`
	Swap     SwapConfig    `yaml:"swap"`
	Ramp     RampConfig    `yaml:"ramp"`
	Global   GlobalConfig  `yaml:"global"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Port:     8080,
		Feeds: FeedConfig{
			DexScreenerURL:   DefaultDexScreenerURL,
			CoinGeckoURL:     DefaultCoinGeckoURL,
			CatalogURL:       DefaultCatalogURL,
			TimeoutSeconds:   10,
			UserAgent:        "memefolio/1.0",
			BreakerThreshold: 5,
			BreakerCooldownS: 30,
		},
		Polling: PollingConfig{
			PriceIntervalMs:    3000,
			HoldingsIntervalMs: 3000,
		},
		Chains: ChainsConfig{
			Ethereum: ChainConfig{
				RPCURLs:        []string{DefaultEthereumRPC},
				ReferencePair:  DefaultETHPair,
				TimeoutSeconds: 15,
			},
			Solana: ChainConfig{
				RPCURLs:        []string{DefaultSolanaRPC},
				ReferencePair:  DefaultSOLPair,
				TimeoutSeconds: 15,
			},
		},
		Swap: SwapConfig{
			JupiterURL:      DefaultJupiterURL,
			SlippageBps:     50,
			DeadlineMinutes: 20,
		},
		Ramp: RampConfig{Environment: "sandbox"},
		Global: GlobalConfig{
			PrivacyTimeoutSeconds: 60,
			FiatDecimals:          2,
			TokenDecimals:         4,
		},
	}
}

// Chain returns the settings for c.
func (c *Config) Chain(id models.ChainID) ChainConfig {
	switch id {
	case models.Ethereum:
		return c.Chains.Ethereum
	case models.Solana:
		return c.Chains.Solana
	}
	return ChainConfig{}
}

// Wallets returns the connected wallet per chain.
func (c *Config) Wallets() models.Wallets {
	return models.Wallets{
		models.Ethereum: c.Chains.Ethereum.Wallet,
		models.Solana:   c.Chains.Solana.Wallet,
	}
}

func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feeds.TimeoutSeconds) * time.Second
}

func (c *Config) PriceInterval() time.Duration {
	return time.Duration(c.Polling.PriceIntervalMs) * time.Millisecond
}

func (c *Config) HoldingsInterval() time.Duration {
	return time.Duration(c.Polling.HoldingsIntervalMs) * time.Millisecond
}

func (cc ChainConfig) Timeout() time.Duration {
	return time.Duration(cc.TimeoutSeconds) * time.Second
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// LoadConfigFromFile reads path, returning the defaults when it does not exist.
func LoadConfigFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadConfig(f)
}

// LoadConfig decodes YAML over the defaults. Zero or negative numeric settings are reset to their default.
func LoadConfig(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Port <= 0 {
		c.Port = d.Port
	}
	if c.Feeds.DexScreenerURL == "" {
		c.Feeds.DexScreenerURL = d.Feeds.DexScreenerURL
	}
	if c.Feeds.CoinGeckoURL == "" {
		c.Feeds.CoinGeckoURL = d.Feeds.CoinGeckoURL
	}
	if c.Feeds.CatalogURL == "" {
		c.Feeds.CatalogURL = d.Feeds.CatalogURL
	}
	if c.Feeds.TimeoutSeconds <= 0 {
		c.Feeds.TimeoutSeconds = d.Feeds.TimeoutSeconds
	}
	if c.Feeds.UserAgent == "" {
		c.Feeds.UserAgent = d.Feeds.UserAgent
	}
	if c.Feeds.BreakerThreshold <= 0 {
		c.Feeds.BreakerThreshold = d.Feeds.BreakerThreshold
	}
	if c.Feeds.BreakerCooldownS <= 0 {
		c.Feeds.BreakerCooldownS = d.Feeds.BreakerCooldownS
	}
	if c.Polling.PriceIntervalMs <= 0 {
		c.Polling.PriceIntervalMs = d.Polling.PriceIntervalMs
	}
	if c.Polling.HoldingsIntervalMs <= 0 {
		c.Polling.HoldingsIntervalMs = d.Polling.HoldingsIntervalMs
	}
	if c.Chains.Ethereum.TimeoutSeconds <= 0 {
		c.Chains.Ethereum.TimeoutSeconds = d.Chains.Ethereum.TimeoutSeconds
	}
	if c.Chains.Solana.TimeoutSeconds <= 0 {
		c.Chains.Solana.TimeoutSeconds = d.Chains.Solana.TimeoutSeconds
	}
	if c.Swap.JupiterURL == "" {
		c.Swap.JupiterURL = d.Swap.JupiterURL
	}
	if c.Swap.SlippageBps <= 0 {
		c.Swap.SlippageBps = d.Swap.SlippageBps
	}
	if c.Swap.DeadlineMinutes <= 0 {
		c.Swap.DeadlineMinutes = d.Swap.DeadlineMinutes
	}
	if c.Ramp.Environment == "" {
		c.Ramp.Environment = d.Ramp.Environment
	}
	if c.Global.FiatDecimals <= 0 {
		c.Global.FiatDecimals = d.Global.FiatDecimals
	}
	if c.Global.TokenDecimals <= 0 {
		c.Global.TokenDecimals = d.Global.TokenDecimals
	}
}

// Validate reports the first structural problem found.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Feeds.CatalogURL) == "" {
		problems = append(problems, "catalog URL is empty")
	}
	if len(c.Chains.Ethereum.RPCURLs) == 0 && len(c.Chains.Solana.RPCURLs) == 0 {
		problems = append(problems, "no RPC URLs configured for any chain")
	}
	for _, id := range models.SupportedChains {
		cc := c.Chain(id)
		for i, u := range cc.RPCURLs {
			if strings.TrimSpace(u) == "" {
				problems = append(problems, fmt.Sprintf("%s RPC URL at index %d is empty", id, i))
			}
		}
		if cc.Wallet != "" {
			if err := rpc.ValidateAddress(id, cc.Wallet); err != nil {
				problems = append(problems, fmt.Sprintf("%s wallet: %v", id, err))
			}
		}
	}
	if c.Swap.SlippageBps > 10000 {
		problems = append(problems, "slippage_bps must be at most 10000")
	}
	switch c.Ramp.Environment {
	case "sandbox", "production":
	default:
		problems = append(problems, fmt.Sprintf("ramp environment %q must be sandbox or production", c.Ramp.Environment))
	}
	if len(problems) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SaveConfig validates cfg, backs up the existing file and replaces it atomically.
func SaveConfig(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("validation failed: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_ = enc.Close()
	if buf.Len() == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}
