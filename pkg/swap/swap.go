// Package swap builds swap quotes and unsigned transaction parameters. It never signs or broadcasts.
package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"memefolio/pkg/models"
	"memefolio/pkg/rpc"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, true
	case Sell:
		return Sell, true
	}
	return "", false
}

var (
	ErrNoWallet          = rpc.ErrNoWallet
	ErrNoToken           = errors.New("no token address")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoQuote           = errors.New("no quote available")
	ErrInvalidSide       = errors.New("side must be buy or sell")
)

// Request describes a swap. Amount and Balance are in the asset being spent:
// the native coin for a buy, the token for a sell.
type Request struct {
	Wallet        string          `json:"wallet"`
	TokenAddress  string          `json:"tokenAddress"`
	Side          Side            `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	TokenDecimals int32           `json:"tokenDecimals"`
}

// Quote is the priced swap plus whatever the wallet needs to sign it.
type Quote struct {
	Chain       models.ChainID  `json:"chain"`
	Side        Side            `json:"side"`
	InputToken  string          `json:"inputToken"`
	OutputToken string          `json:"outputToken"`
	AmountIn    decimal.Decimal `json:"amountIn"`
	AmountInRaw string          `json:"amountInRaw"`
	AmountInUSD decimal.Decimal `json:"amountInUsd"`
	AmountOut   decimal.Decimal `json:"amountOut"`
	SlippageBps int             `json:"slippageBps,omitempty"`
	PriceImpact float64         `json:"priceImpactPct,omitempty"`

	// Ethereum router call.
	To       string `json:"to,omitempty"`
	Value    string `json:"value,omitempty"`
	Data     string `json:"data,omitempty"`
	Deadline int64  `json:"deadline,omitempty"`

	// Jupiter quote, kept verbatim for the swap transaction request.
	Route *JupiterQuote `json:"route,omitempty"`
}

// Executor quotes swaps on one chain.
type Executor interface {
	Chain() models.ChainID
	Quote(ctx context.Context, req Request) (*Quote, error)
}

// Prepare checks the request in a fixed order before any network call, then asks exec for a quote.
func Prepare(ctx context.Context, exec Executor, req Request) (*Quote, error) {
	if strings.TrimSpace(req.Wallet) == "" {
		return nil, ErrNoWallet
	}
	if strings.TrimSpace(req.TokenAddress) == "" {
		return nil, ErrNoToken
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.Amount.GreaterThan(req.Balance) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, req.Amount.String(), req.Balance.String())
	}
	if req.Side != Buy && req.Side != Sell {
		return nil, ErrInvalidSide
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: no executor", ErrNoQuote)
	}
	q, err := exec.Quote(ctx, req)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, ErrNoQuote
	}
	return q, nil
}

// UserMessage is the text shown to a user for a swap failure.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoWallet):
		return "Embedded wallet not found."
	case errors.Is(err, ErrNoToken):
		return "Unsupported chain for this token."
	case errors.Is(err, rpc.ErrUnsupportedChain):
		return "Unsupported chain for this token."
	case errors.Is(err, ErrInvalidAmount):
		return "Enter an amount greater than zero."
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient balance to complete the transaction."
	case errors.Is(err, ErrNoQuote):
		return "Failed to fetch swap quote."
	case errors.Is(err, ErrInvalidSide):
		return "Choose buy or sell."
	}
	return "Failed to execute swap."
}

// IsUserError reports whether err comes from a check on the request rather than from upstream.
func IsUserError(err error) bool {
	for _, target := range []error{ErrNoWallet, ErrNoToken, ErrInvalidAmount, ErrInsufficientFunds, ErrInvalidSide, rpc.ErrInvalidAddress, rpc.ErrUnsupportedChain} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// toUnits converts a whole-token amount to base units, rounding half away from zero.
func toUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Round(0).BigInt()
}

func fromUnits(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}
