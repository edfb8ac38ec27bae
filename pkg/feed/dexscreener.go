package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"memefolio/pkg/models"
	"memefolio/pkg/utils"
)

// SearchLimit is how many search hits are considered before the chain filter.
const SearchLimit = 10

type dexscreenerPairsResponse struct {
	Pairs []dexscreenerPair `json:"pairs"`
	Pair  *dexscreenerPair  `json:"pair"`
}

type dexscreenerPair struct {
	ChainID     string               `json:"chainId"`
	PairAddress string               `json:"pairAddress"`
	BaseToken   dexscreenerToken     `json:"baseToken"`
	PriceUsd    string               `json:"priceUsd"`
	Volume      dexscreenerVolumes   `json:"volume"`
	Liquidity   dexscreenerLiquidity `json:"liquidity"`
	PriceChange struct {
		H24 optionalFloat `json:"h24"`
	} `json:"priceChange"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
	Info      struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
}

type dexscreenerToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexscreenerVolumes struct {
	H24 float64 `json:"h24"`
}

type dexscreenerLiquidity struct {
	USD float64 `json:"usd"`
}

func (r *dexscreenerPairsResponse) firstPair() (*dexscreenerPair, bool) {
	if len(r.Pairs) > 0 {
		return &r.Pairs[0], true
	}
	if r.Pair != nil {
		return r.Pair, true
	}
	return nil, false
}

// optionalFloat accepts a JSON number, a numeric string or null.
type optionalFloat struct {
	Value float64
	Valid bool
}

func (f *optionalFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = optionalFloat{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = optionalFloat{}
			return nil
		}
		*f = optionalFloat{Value: v, Valid: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = optionalFloat{Value: v, Valid: true}
	return nil
}

// PairQuote is the normalized market state of one DexScreener pair.
type PairQuote struct {
	ChainID          string   `json:"chainId"`
	PairAddress      string   `json:"pairAddress"`
	Name             string   `json:"name"`
	Symbol           string   `json:"symbol"`
	BaseTokenAddress string   `json:"baseTokenAddress"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	PriceUsd         float64  `json:"priceUsd"`
	HasPrice         bool     `json:"hasPrice"`
	PriceChange24h   *float64 `json:"priceChange24h,omitempty"`
	MarketCap        float64  `json:"marketCap"`
	Volume24h        float64  `json:"volume24h"`
	LiquidityUsd     float64  `json:"liquidityUsd"`
}

func (q *PairQuote) PriceString() string {
	return utils.FormatPrice(q.PriceUsd)
}

// ChangeString is the 24h change with two decimals, or "Unknown" when the pair has none.
func (q *PairQuote) ChangeString() string {
	return utils.FormatChange(q.PriceChange24h)
}

func (p *dexscreenerPair) quote() *PairQuote {
	q := &PairQuote{
		ChainID:          strings.ToLower(p.ChainID),
		PairAddress:      p.PairAddress,
		Name:             p.BaseToken.Name,
		Symbol:           p.BaseToken.Symbol,
		BaseTokenAddress: p.BaseToken.Address,
		ImageURL:         p.Info.ImageURL,
		MarketCap:        p.MarketCap,
		Volume24h:        p.Volume.H24,
		LiquidityUsd:     p.Liquidity.USD,
	}
	if q.MarketCap == 0 {
		q.MarketCap = p.FDV
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(p.PriceUsd), 64); err == nil {
		q.PriceUsd = v
		q.HasPrice = true
	}
	if p.PriceChange.H24.Valid {
		v := p.PriceChange.H24.Value
		q.PriceChange24h = &v
	}
	return q
}

// FetchPair returns the first pair DexScreener reports for chain/pair, or nil when there is none.
func (c *Client) FetchPair(ctx context.Context, chain models.ChainID, pairID string) (*PairQuote, error) {
	if chain == "" || strings.TrimSpace(pairID) == "" {
		return nil, fmt.Errorf("pair lookup needs chain and pair id")
	}
	endpoint := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", c.dexURL, url.PathEscape(string(chain)), url.PathEscape(strings.TrimSpace(pairID)))

	var payload dexscreenerPairsResponse
	if err := c.getJSON(ctx, SourceDexScreener, endpoint, &payload); err != nil {
		return nil, err
	}
	pair, ok := payload.firstPair()
	if !ok {
		return nil, nil
	}
	return pair.quote(), nil
}

// SafePair is FetchPair with every failure logged and turned into nil.
func (c *Client) SafePair(ctx context.Context, chain models.ChainID, pairID string) *PairQuote {
	q, err := c.FetchPair(ctx, chain, pairID)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Str("chain", string(chain)).Str("pair", pairID).Msg("pair lookup failed")
		}
		return nil
	}
	return q
}

// SearchResult is a search hit on a supported chain.
type SearchResult struct {
	Name             string         `json:"name"`
	Symbol           string         `json:"symbol"`
	ChainID          models.ChainID `json:"chainId"`
	PairID           string         `json:"pairAddress"`
	BaseTokenAddress string         `json:"baseTokenAddress"`
	ImageURL         string         `json:"imageUrl,omitempty"`
	PriceUsd         float64        `json:"priceUsd"`
	HasPrice         bool           `json:"hasPrice"`
	PriceChange24h   *float64       `json:"priceChange24h,omitempty"`
	MarketCap        float64        `json:"marketCap"`
	Volume24h        float64        `json:"volume24h"`
	LiquidityUsd     float64        `json:"liquidityUsd"`
}

// Quote views the hit as a pair quote so it can be formatted like a refresh.
func (r SearchResult) Quote() *PairQuote {
	return &PairQuote{
		ChainID:          string(r.ChainID),
		PairAddress:      r.PairID,
		Name:             r.Name,
		Symbol:           r.Symbol,
		BaseTokenAddress: r.BaseTokenAddress,
		ImageURL:         r.ImageURL,
		PriceUsd:         r.PriceUsd,
		HasPrice:         r.HasPrice,
		PriceChange24h:   r.PriceChange24h,
		MarketCap:        r.MarketCap,
		Volume24h:        r.Volume24h,
		LiquidityUsd:     r.LiquidityUsd,
	}
}

// Search queries DexScreener and keeps the Ethereum and Solana pairs among the first SearchLimit hits.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	endpoint := fmt.Sprintf("%s/latest/dex/search?q=%s", c.dexURL, url.QueryEscape(query))

	var payload dexscreenerPairsResponse
	if err := c.getJSON(ctx, SourceDexScreener, endpoint, &payload); err != nil {
		return nil, err
	}
	pairs := payload.Pairs
	if len(pairs) > SearchLimit {
		pairs = pairs[:SearchLimit]
	}
	results := make([]SearchResult, 0, len(pairs))
	for i := range pairs {
		chain, ok := models.ParseChainID(pairs[i].ChainID)
		if !ok {
			continue
		}
		q := pairs[i].quote()
		results = append(results, SearchResult{
			Name:             q.Name,
			Symbol:           q.Symbol,
			ChainID:          chain,
			PairID:           q.PairAddress,
			BaseTokenAddress: q.BaseTokenAddress,
			ImageURL:         q.ImageURL,
			PriceUsd:         q.PriceUsd,
			HasPrice:         q.HasPrice,
			PriceChange24h:   q.PriceChange24h,
			MarketCap:        q.MarketCap,
			Volume24h:        q.Volume24h,
			LiquidityUsd:     q.LiquidityUsd,
		})
	}
	return results, nil
}
