package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"memefolio/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var DefaultTimeout = 15 * time.Second

var (
	balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}
	decimalsSelector  = []byte{0x31, 0x3c, 0xe5, 0x67}
)

const nativeDecimals = 18

// EVMResolver reads native and ERC-20 balances, falling back across RPC URLs.
type EVMResolver struct {
	urls    []string
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

func NewEVMResolver(urls []string, timeout time.Duration, log zerolog.Logger) *EVMResolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &EVMResolver{
		urls:     urls,
		timeout:  timeout,
		log:      log.With().Str("chain", string(models.Ethereum)).Logger(),
		decimals: make(map[common.Address]uint8),
	}
}

func (r *EVMResolver) Chain() models.ChainID { return models.Ethereum }

// Resolve returns the wallet's balance of token, scaled by the token's decimals.
func (r *EVMResolver) Resolve(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	if err := ValidateAddress(models.Ethereum, wallet); err != nil {
		return decimal.Zero, err
	}
	native := IsNativeToken(models.Ethereum, token)
	if !native {
		if err := ValidateAddress(models.Ethereum, token); err != nil {
			return decimal.Zero, err
		}
	}
	account := common.HexToAddress(wallet)

	var result decimal.Decimal
	err := r.withClient(ctx, func(ctx context.Context, client *ethclient.Client) error {
		if native {
			wei, err := client.BalanceAt(ctx, account, nil)
			if err != nil {
				return fmt.Errorf("eth_getBalance: %w", err)
			}
			result = scaleUnits(wei, nativeDecimals)
			return nil
		}
		bal, err := r.tokenBalance(ctx, client, common.HexToAddress(token), account)
		if err != nil {
			return err
		}
		result = bal
		return nil
	})
	return result, err
}

// withClient runs fn against each URL until one succeeds.
func (r *EVMResolver) withClient(ctx context.Context, fn func(context.Context, *ethclient.Client) error) error {
	if len(r.urls) == 0 {
		return errors.New("no ethereum RPC URLs configured")
	}
	var lastErr error
	for _, rpcURL := range r.urls {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		client, err := ethclient.DialContext(callCtx, rpcURL)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("dial %s: %w", rpcURL, err)
			continue
		}
		err = fn(callCtx, client)
		client.Close()
		cancel()
		if err == nil {
			return nil
		}
		r.log.Debug().Err(err).Str("rpc", rpcURL).Msg("rpc call failed, trying next")
		lastErr = err
	}
	return lastErr
}

func (r *EVMResolver) tokenBalance(ctx context.Context, client *ethclient.Client, tokenAddr, account common.Address) (decimal.Decimal, error) {
	dec, err := r.tokenDecimals(ctx, client, tokenAddr)
	if err != nil {
		return decimal.Zero, err
	}

	data := make([]byte, 4+32)
	copy(data[0:4], balanceOfSelector)
	copy(data[4+12:], account.Bytes())
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf: %w", err)
	}
	if len(result) == 0 {
		return decimal.Zero, fmt.Errorf("balanceOf: empty result from %s", tokenAddr.Hex())
	}
	return scaleUnits(new(big.Int).SetBytes(result), dec), nil
}

func (r *EVMResolver) tokenDecimals(ctx context.Context, client *ethclient.Client, tokenAddr common.Address) (uint8, error) {
	r.mu.Lock()
	dec, ok := r.decimals[tokenAddr]
	r.mu.Unlock()
	if ok {
		return dec, nil
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: decimalsSelector}, nil)
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	if len(result) == 0 {
		return 0, fmt.Errorf("decimals: empty result from %s", tokenAddr.Hex())
	}
	v := new(big.Int).SetBytes(result)
	if !v.IsUint64() || v.Uint64() > 77 {
		return 0, fmt.Errorf("decimals: implausible value %s", v.String())
	}
	dec = uint8(v.Uint64())

	r.mu.Lock()
	r.decimals[tokenAddr] = dec
	r.mu.Unlock()
	return dec, nil
}

// Decimals returns the decimals of token, 18 for the native sentinel.
func (r *EVMResolver) Decimals(ctx context.Context, token string) (uint8, error) {
	if IsNativeToken(models.Ethereum, token) {
		return nativeDecimals, nil
	}
	if err := ValidateAddress(models.Ethereum, token); err != nil {
		return 0, err
	}
	tokenAddr := common.HexToAddress(token)
	var dec uint8
	err := r.withClient(ctx, func(ctx context.Context, client *ethclient.Client) error {
		d, err := r.tokenDecimals(ctx, client, tokenAddr)
		if err != nil {
			return err
		}
		dec = d
		return nil
	})
	return dec, err
}

// scaleUnits converts an integer amount of base units to whole tokens.
func scaleUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// CheckEVM reports the chain id served at rpcURL and the round-trip latency.
func CheckEVM(ctx context.Context, rpcURL string, timeout time.Duration) models.EndpointResult {
	res := models.EndpointResult{URL: rpcURL}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		res.Status = "error"
		res.Error = fmt.Sprintf("failed to get chain id: %v", err)
		return res
	}
	res.Status = "ok"
	res.ChainID = id.Int64()
	res.LatencyMs = time.Since(start).Milliseconds()
	return res
}
