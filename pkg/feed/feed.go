// Package feed talks to the public market data sources: DexScreener pairs and search,
// CoinGecko metadata and charts, and the static token catalog.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"memefolio/pkg/metrics"

	"github.com/rs/zerolog"
)

const (
	SourceDexScreener = "dexscreener"
	SourceCoinGecko   = "coingecko"
	SourceCatalog     = "catalog"

	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "memefolio/1.0"
)

// Client is safe for concurrent use.
type Client struct {
	dexURL    string
	geckoURL  string
	http      *http.Client
	userAgent string
	log       zerolog.Logger
	metrics   *metrics.Metrics
	breakers  map[string]*Breaker

	maxCatalogTries int
	backoff         func(retry int) time.Duration
}

type Option func(*Client)

func WithDexScreenerBaseURL(u string) Option {
	return func(c *Client) { c.dexURL = strings.TrimSuffix(u, "/") }
}

func WithCoinGeckoBaseURL(u string) Option {
	return func(c *Client) { c.geckoURL = strings.TrimSuffix(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "feed").Logger() }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithCatalogAttempts bounds the catalog download attempts.
func WithCatalogAttempts(n int) Option {
	return func(c *Client) { c.maxCatalogTries = n }
}

// WithBreaker replaces the breaker guarding source.
func WithBreaker(source string, b *Breaker) Option {
	return func(c *Client) { c.breakers[source] = b }
}

// NewClient builds a client for the public endpoints. Breakers are created after options
// so they share the final logger.
func NewClient(opts ...Option) *Client {
	c := &Client{
		dexURL:    "https://api.dexscreener.com",
		geckoURL:  "https://api.coingecko.com/api/v3",
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		log:       zerolog.Nop(),
		breakers:  make(map[string]*Breaker),
		backoff:   CalculateBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, src := range []string{SourceDexScreener, SourceCoinGecko} {
		if c.breakers[src] == nil {
			c.breakers[src] = NewBreaker(DefaultBreakerConfig(src), c.log)
		}
	}
	return c
}

// BreakerState reports the breaker state of source, or closed when it has none.
func (c *Client) BreakerState(source string) State {
	if b := c.breakers[source]; b != nil {
		return b.State()
	}
	return StateClosed
}

// getJSON fetches url and decodes the body into out, feeding the breaker and metrics for source.
func (c *Client) getJSON(ctx context.Context, source, url string, out any) (err error) {
	b := c.breakers[source]
	if b != nil && !b.Allow() {
		return fmt.Errorf("%s: %w", source, ErrCircuitOpen)
	}
	defer func() {
		c.metrics.FeedRequest(source, err)
		if b == nil {
			return
		}
		switch {
		case err == nil:
			b.RecordSuccess()
		case ctx.Err() == nil:
			b.RecordFailure()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
