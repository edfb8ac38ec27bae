package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel strings used for a missing 24h change.
const (
	ChangeUnknown     = "Unknown"
	ChangeUnavailable = "N/A"
)

// FlexBool decodes both JSON booleans and the strings "true"/"false".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			*b = false
			return nil
		}
		*b = FlexBool(v)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = FlexBool(v)
	return nil
}

// CatalogEntry is one row of the remote token catalog.
type CatalogEntry struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Contract          string   `json:"contract"`
	Rewards           FlexBool `json:"rewards"`
	Image             string   `json:"image"`
	DexScreenerPairID string   `json:"dexScreenerPairId"`
	ChainID           string   `json:"chainId"`
	CoinGeckoID       string   `json:"coinGeckoId"`
}

// Coin is a tracked token in the registry. ID is the lowercase name and is unique.
type Coin struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Logo           string  `json:"logo"`
	Price          string  `json:"price"`
	MarketCap      float64 `json:"marketCap"`
	PriceChange24h string  `json:"priceChange24h"`
	Volume         float64 `json:"volume"`
	Liquidity      float64 `json:"liquidity"`
	ChainID        ChainID `json:"chainId"`
	Contract       string  `json:"contract"`
	Mint           string  `json:"mint"`
	PairID         string  `json:"dexScreenerPairId"`
	CoinGeckoID    string  `json:"coinGeckoId,omitempty"`
	Rewards        bool    `json:"rewards"`
}

// TokenAddress is the on-chain address used for balance lookups.
// The catalog contract wins over the mint learned from pair data.
func (c Coin) TokenAddress() string {
	if c.Contract != "" {
		return c.Contract
	}
	return c.Mint
}

// PriceDecimal parses Price, returning zero when it is not a number.
func (c Coin) PriceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Price))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ChangeValue returns the parsed 24h change and false for the sentinels.
func (c Coin) ChangeValue() (float64, bool) {
	switch c.PriceChange24h {
	case "", ChangeUnknown, ChangeUnavailable:
		return 0, false
	}
	v, err := strconv.ParseFloat(c.PriceChange24h, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Holding is a Coin valued against a wallet balance.
type Holding struct {
	Coin
	Balance      decimal.Decimal `json:"-"`
	UserBalance  string          `json:"userBalance"`
	UserUsdValue string          `json:"userUsdValue"`
}

// PricePoint is one sample of a price history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Wallets holds the connected address per chain.
type Wallets map[ChainID]string

func (w Wallets) For(chain ChainID) string {
	if w == nil {
		return ""
	}
	return strings.TrimSpace(w[chain])
}
