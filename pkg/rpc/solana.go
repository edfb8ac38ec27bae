package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"memefolio/pkg/models"

	solana "github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const lamportDecimals = 9

// SolanaResolver reads SOL and SPL token balances over JSON-RPC.
type SolanaResolver struct {
	clients    []*solrpc.Client
	urls       []string
	timeout    time.Duration
	commitment solrpc.CommitmentType
	log        zerolog.Logger
}

func NewSolanaResolver(urls []string, timeout time.Duration, log zerolog.Logger) *SolanaResolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clients := make([]*solrpc.Client, 0, len(urls))
	for _, u := range urls {
		clients = append(clients, solrpc.New(u))
	}
	return &SolanaResolver{
		clients:    clients,
		urls:       urls,
		timeout:    timeout,
		commitment: solrpc.CommitmentConfirmed,
		log:        log.With().Str("chain", string(models.Solana)).Logger(),
	}
}

func (r *SolanaResolver) Chain() models.ChainID { return models.Solana }

// Resolve returns SOL for the native sentinel, otherwise the uiAmount of the first token account for the mint.
func (r *SolanaResolver) Resolve(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	owner, err := parsePublicKey(wallet)
	if err != nil {
		return decimal.Zero, err
	}
	if IsNativeToken(models.Solana, token) {
		return r.nativeBalance(ctx, owner)
	}
	mint, err := parsePublicKey(token)
	if err != nil {
		return decimal.Zero, err
	}
	return r.tokenBalance(ctx, owner, mint)
}

func (r *SolanaResolver) nativeBalance(ctx context.Context, owner solana.PublicKey) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := r.each(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetBalance(ctx, owner, r.commitment)
		if err != nil {
			return fmt.Errorf("getBalance: %w", err)
		}
		out = scaleUnits(new(big.Int).SetUint64(res.Value), lamportDecimals)
		return nil
	})
	return out, err
}

// Decimals returns the decimals of the mint, 9 for the native sentinel.
func (r *SolanaResolver) Decimals(ctx context.Context, token string) (uint8, error) {
	if IsNativeToken(models.Solana, token) {
		return lamportDecimals, nil
	}
	mint, err := parsePublicKey(token)
	if err != nil {
		return 0, err
	}
	var dec uint8
	err = r.each(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetTokenSupply(ctx, mint, r.commitment)
		if err != nil {
			return fmt.Errorf("getTokenSupply: %w", err)
		}
		if res == nil || res.Value == nil {
			return errors.New("getTokenSupply: empty result")
		}
		dec = res.Value.Decimals
		return nil
	})
	return dec, err
}

type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			TokenAmount struct {
				Amount         string   `json:"amount"`
				Decimals       uint8    `json:"decimals"`
				UIAmount       *float64 `json:"uiAmount"`
				UIAmountString string   `json:"uiAmountString"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func (r *SolanaResolver) tokenBalance(ctx context.Context, owner, mint solana.PublicKey) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := r.each(ctx, func(ctx context.Context, client *solrpc.Client) error {
		res, err := client.GetTokenAccountsByOwner(ctx, owner,
			&solrpc.GetTokenAccountsConfig{Mint: &mint},
			&solrpc.GetTokenAccountsOpts{Commitment: r.commitment, Encoding: solana.EncodingJSONParsed},
		)
		if err != nil {
			return fmt.Errorf("getTokenAccountsByOwner: %w", err)
		}
		if res == nil || len(res.Value) == 0 {
			out = decimal.Zero
			return nil
		}
		first := res.Value[0]
		if first == nil || first.Account.Data == nil {
			return errors.New("getTokenAccountsByOwner: account without data")
		}
		amount, err := uiAmount(first.Account.Data.GetRawJSON())
		if err != nil {
			return err
		}
		out = amount
		return nil
	})
	return out, err
}

func uiAmount(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, errors.New("token account is not jsonParsed")
	}
	var acc parsedTokenAccount
	if err := json.Unmarshal(raw, &acc); err != nil {
		return decimal.Zero, fmt.Errorf("decode token account: %w", err)
	}
	ta := acc.Parsed.Info.TokenAmount
	if s := strings.TrimSpace(ta.UIAmountString); s != "" {
		if d, err := decimal.NewFromString(s); err == nil {
			return d, nil
		}
	}
	if ta.UIAmount != nil {
		return decimal.NewFromFloat(*ta.UIAmount), nil
	}
	if ta.Amount != "" {
		if v, ok := new(big.Int).SetString(ta.Amount, 10); ok {
			return scaleUnits(v, ta.Decimals), nil
		}
	}
	return decimal.Zero, nil
}

func (r *SolanaResolver) each(ctx context.Context, fn func(context.Context, *solrpc.Client) error) error {
	if len(r.clients) == 0 {
		return errors.New("no solana RPC URLs configured")
	}
	var lastErr error
	for i, client := range r.clients {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := fn(callCtx, client)
		cancel()
		if err == nil {
			return nil
		}
		r.log.Debug().Err(err).Str("rpc", r.urls[i]).Msg("rpc call failed, trying next")
		lastErr = err
	}
	return lastErr
}

func parsePublicKey(addr string) (solana.PublicKey, error) {
	if err := ValidateAddress(models.Solana, addr); err != nil {
		return solana.PublicKey{}, err
	}
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(addr))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return pk, nil
}

// CheckSolana calls getHealth on rpcURL.
func CheckSolana(ctx context.Context, rpcURL string, timeout time.Duration) models.EndpointResult {
	res := models.EndpointResult{URL: rpcURL}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	health, err := solrpc.New(rpcURL).GetHealth(ctx)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	res.Status = "ok"
	res.Health = health
	res.LatencyMs = time.Since(start).Milliseconds()
	return res
}
