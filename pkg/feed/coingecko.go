package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"memefolio/pkg/models"

	"github.com/shopspring/decimal"
)

// DefaultChartDays is the window of the coin detail chart.
const DefaultChartDays = 30

// CoinMetadata is the CoinGecko market snapshot used to seed a coin.
type CoinMetadata struct {
	ID             string
	Name           string
	Symbol         string
	ImageURL       string
	PriceUsd       decimal.Decimal
	MarketCap      decimal.Decimal
	PriceChange24h *decimal.Decimal
}

type geckoCoinResponse struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Image  struct {
		Large string `json:"large"`
		Small string `json:"small"`
	} `json:"image"`
	MarketData *struct {
		CurrentPrice             map[string]decimal.Decimal `json:"current_price"`
		MarketCap                map[string]decimal.Decimal `json:"market_cap"`
		ChangePercent24hCurrency map[string]decimal.Decimal `json:"price_change_percentage_24h_in_currency"`
		ChangePercent24h         *decimal.Decimal           `json:"price_change_percentage_24h"`
	} `json:"market_data"`
}

// FetchCoinMetadata reads the USD market data of a CoinGecko coin.
func (c *Client) FetchCoinMetadata(ctx context.Context, coinGeckoID string) (*CoinMetadata, error) {
	id := strings.TrimSpace(coinGeckoID)
	if id == "" {
		return nil, fmt.Errorf("metadata lookup needs a coingecko id")
	}
	endpoint := fmt.Sprintf("%s/coins/%s?localization=false&market_data=true", c.geckoURL, url.PathEscape(id))

	var payload geckoCoinResponse
	if err := c.getJSON(ctx, SourceCoinGecko, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.MarketData == nil {
		return nil, fmt.Errorf("coin %s: no market data", id)
	}
	md := payload.MarketData
	price, ok := md.CurrentPrice["usd"]
	if !ok {
		return nil, fmt.Errorf("coin %s: no usd price", id)
	}

	meta := &CoinMetadata{
		ID:        payload.ID,
		Name:      payload.Name,
		Symbol:    payload.Symbol,
		ImageURL:  payload.Image.Large,
		PriceUsd:  price,
		MarketCap: md.MarketCap["usd"],
	}
	if meta.ImageURL == "" {
		meta.ImageURL = payload.Image.Small
	}
	if ch, ok := md.ChangePercent24hCurrency["usd"]; ok {
		meta.PriceChange24h = &ch
	} else if md.ChangePercent24h != nil {
		ch := *md.ChangePercent24h
		meta.PriceChange24h = &ch
	}
	return meta, nil
}

// SafeMetadata is FetchCoinMetadata with every failure logged and turned into nil.
func (c *Client) SafeMetadata(ctx context.Context, coinGeckoID string) *CoinMetadata {
	if strings.TrimSpace(coinGeckoID) == "" {
		return nil
	}
	meta, err := c.FetchCoinMetadata(ctx, coinGeckoID)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Str("coingecko_id", coinGeckoID).Msg("metadata lookup failed")
		}
		return nil
	}
	return meta
}

type geckoChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// FetchMarketChart returns the USD price history of a coin over the last days.
func (c *Client) FetchMarketChart(ctx context.Context, coinGeckoID string, days int) ([]models.PricePoint, error) {
	id := strings.TrimSpace(coinGeckoID)
	if id == "" {
		return nil, fmt.Errorf("chart lookup needs a coingecko id")
	}
	if days <= 0 {
		days = DefaultChartDays
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("days", fmt.Sprint(days))
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?%s", c.geckoURL, url.PathEscape(id), q.Encode())

	var payload geckoChartResponse
	if err := c.getJSON(ctx, SourceCoinGecko, endpoint, &payload); err != nil {
		return nil, err
	}
	points := make([]models.PricePoint, 0, len(payload.Prices))
	for _, p := range payload.Prices {
		points = append(points, models.PricePoint{
			Timestamp: time.UnixMilli(int64(p[0])).UTC(),
			Price:     p[1],
		})
	}
	return points, nil
}
