package rpc

import (
	"context"
	"fmt"

	"memefolio/pkg/metrics"
	"memefolio/pkg/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BalanceResolver computes how much of a token a wallet holds on one chain.
type BalanceResolver interface {
	Chain() models.ChainID
	Resolve(ctx context.Context, wallet, token string) (decimal.Decimal, error)
}

// DecimalsResolver is implemented by resolvers that can read a token's decimals.
type DecimalsResolver interface {
	Decimals(ctx context.Context, token string) (uint8, error)
}

// Resolver dispatches to the BalanceResolver registered for a chain.
type Resolver struct {
	resolvers map[models.ChainID]BalanceResolver
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

func NewResolver(log zerolog.Logger, m *metrics.Metrics, resolvers ...BalanceResolver) *Resolver {
	r := &Resolver{
		resolvers: make(map[models.ChainID]BalanceResolver, len(resolvers)),
		log:       log.With().Str("component", "balance").Logger(),
		metrics:   m,
	}
	for _, br := range resolvers {
		if br != nil {
			r.resolvers[br.Chain()] = br
		}
	}
	return r
}

// Resolve returns the balance or the reason it could not be read.
func (r *Resolver) Resolve(ctx context.Context, chain models.ChainID, wallet, token string) (decimal.Decimal, error) {
	br, ok := r.resolvers[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	if wallet == "" {
		return decimal.Zero, ErrNoWallet
	}
	if token == "" {
		return decimal.Zero, fmt.Errorf("%w: empty token address", ErrInvalidAddress)
	}
	bal, err := br.Resolve(ctx, wallet, token)
	r.metrics.BalanceLookup(string(chain), err)
	if err != nil {
		return decimal.Zero, err
	}
	return bal, nil
}

// Balance never fails: any error is logged and reported as zero.
func (r *Resolver) Balance(ctx context.Context, chain models.ChainID, wallet, token string) decimal.Decimal {
	bal, err := r.Resolve(ctx, chain, wallet, token)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn().Err(err).
				Str("chain", string(chain)).
				Str("token", token).
				Msg("balance lookup failed")
		}
		return decimal.Zero
	}
	return bal
}

// Decimals returns the number of decimals of token on chain.
func (r *Resolver) Decimals(ctx context.Context, chain models.ChainID, token string) (int32, error) {
	br, ok := r.resolvers[chain]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	dr, ok := br.(DecimalsResolver)
	if !ok {
		return 0, fmt.Errorf("%w: no decimals lookup for %s", ErrUnsupportedChain, chain)
	}
	if token == "" {
		return 0, fmt.Errorf("%w: empty token address", ErrInvalidAddress)
	}
	dec, err := dr.Decimals(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("token decimals: %w", err)
	}
	return int32(dec), nil
}

// Supports reports whether a resolver is registered for chain.
func (r *Resolver) Supports(chain models.ChainID) bool {
	_, ok := r.resolvers[chain]
	return ok
}
