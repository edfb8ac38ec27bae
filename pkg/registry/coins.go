package registry

import (
	"sort"
	"strings"

	"memefolio/pkg/feed"
	"memefolio/pkg/models"
)

// DefaultGainers is the size of the top gainers list.
const DefaultGainers = 4

// ApplyQuote copies the market fields of q onto c. A quote without a usable price keeps the old one.
func ApplyQuote(c *models.Coin, q *feed.PairQuote) {
	if c == nil || q == nil {
		return
	}
	if q.HasPrice {
		c.Price = q.PriceString()
	}
	c.PriceChange24h = q.ChangeString()
	c.MarketCap = q.MarketCap
	c.Volume = q.Volume24h
	c.Liquidity = q.LiquidityUsd
	if q.BaseTokenAddress != "" {
		c.Mint = q.BaseTokenAddress
	}
}

// CoinFromSearch turns a search hit into a registry coin keyed by its lowercased name.
func CoinFromSearch(r feed.SearchResult) models.Coin {
	c := models.Coin{
		ID:       strings.ToLower(strings.TrimSpace(r.Name)),
		Name:     r.Name,
		Logo:     r.ImageURL,
		Price:    unpricedPrice,
		ChainID:  r.ChainID,
		Contract: r.BaseTokenAddress,
		PairID:   r.PairID,
		Rewards:  false,
	}
	ApplyQuote(&c, r.Quote())
	return c
}

// TopGainers returns up to n coins with a known 24h change, highest first.
func TopGainers(s *Snapshot, n int) []models.Coin {
	if n <= 0 {
		n = DefaultGainers
	}
	type ranked struct {
		coin   models.Coin
		change float64
	}
	var list []ranked
	for _, c := range s.coins() {
		v, ok := c.ChangeValue()
		if !ok {
			continue
		}
		list = append(list, ranked{coin: c, change: v})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].change > list[j].change })
	if len(list) > n {
		list = list[:n]
	}
	out := make([]models.Coin, len(list))
	for i, r := range list {
		out[i] = r.coin
	}
	return out
}

func (s *Snapshot) coins() []models.Coin {
	if s == nil {
		return nil
	}
	return s.Coins
}
