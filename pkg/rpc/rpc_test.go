package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"memefolio/pkg/metrics"
	"memefolio/pkg/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testEthWallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	testToken     = "0x1234567890123456789012345678901234567890"
	testSolWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testSolMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	tokenProgram  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type jsonRPCRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
}

func hexWord(v int64) string {
	return "0x" + strings.Repeat("0", 64-len(big.NewInt(v).Text(16))) + big.NewInt(v).Text(16)
}

// newEVMServer fakes an Ethereum node. eth_call answers decimals() and balanceOf() by selector.
func newEVMServer(t *testing.T, decimals int64, rawBalance int64, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		switch req.Method {
		case "eth_chainId":
			writeResult(w, req.ID, "0x1")
		case "eth_getBalance":
			writeResult(w, req.ID, "0x22B1C8C1227A0000") // 2.5 ETH
		case "eth_call":
			var call struct {
				Data  string `json:"data"`
				Input string `json:"input"`
			}
			_ = json.Unmarshal(req.Params[0], &call)
			data := call.Input
			if data == "" {
				data = call.Data
			}
			switch {
			case strings.HasPrefix(data, "0x313ce567"):
				writeResult(w, req.ID, hexWord(decimals))
			case strings.HasPrefix(data, "0x70a08231"):
				writeResult(w, req.ID, hexWord(rawBalance))
			default:
				writeResult(w, req.ID, "0x")
			}
		default:
			writeResult(w, req.ID, "0x0")
		}
	}))
}

func TestEVMResolver_NativeBalance(t *testing.T) {
	server := newEVMServer(t, 18, 0, nil)
	defer server.Close()

	r := NewEVMResolver([]string{server.URL}, 0, zerolog.Nop())
	bal, err := r.Resolve(context.Background(), testEthWallet, EthereumNativeToken)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.5").Equal(bal), bal.String())
}

// Balances are scaled by 10^decimals of the token, not by a fixed 18-decimal base.
func TestEVMResolver_TokenScalingUsesTokenDecimals(t *testing.T) {
	tests := []struct {
		name     string
		decimals int64
		raw      int64
		want     string
	}{
		{"six decimals", 6, 500_000_000, "500"},
		{"nine decimals", 9, 1_234_500_000, "1.2345"},
		{"zero decimals", 0, 42, "42"},
		{"eighteen decimals", 18, 1_500_000_000_000_000_000, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newEVMServer(t, tt.decimals, tt.raw, nil)
			defer server.Close()

			r := NewEVMResolver([]string{server.URL}, 0, zerolog.Nop())
			bal, err := r.Resolve(context.Background(), testEthWallet, testToken)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(bal), "got %s want %s", bal, tt.want)
		})
	}
}

func TestEVMResolver_CachesDecimals(t *testing.T) {
	var calls int32
	server := newEVMServer(t, 6, 1_000_000, &calls)
	defer server.Close()

	r := NewEVMResolver([]string{server.URL}, 0, zerolog.Nop())
	_, err := r.Resolve(context.Background(), testEthWallet, testToken)
	require.NoError(t, err)
	first := atomic.LoadInt32(&calls)

	_, err = r.Resolve(context.Background(), testEthWallet, testToken)
	require.NoError(t, err)
	assert.Equal(t, first-1, atomic.LoadInt32(&calls)-first, "second lookup skips decimals()")
}

func TestEVMResolver_FallsBackToNextURL(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer broken.Close()
	good := newEVMServer(t, 18, 0, nil)
	defer good.Close()

	r := NewEVMResolver([]string{broken.URL, good.URL}, 0, zerolog.Nop())
	bal, err := r.Resolve(context.Background(), testEthWallet, EthereumNativeToken)
	require.NoError(t, err)
	assert.Equal(t, "2.5", bal.String())
}

func TestEVMResolver_InvalidAddresses(t *testing.T) {
	r := NewEVMResolver([]string{"http://127.0.0.1:1"}, 0, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "nope", EthereumNativeToken)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = r.Resolve(context.Background(), testEthWallet, "0x12")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestEVMResolver_Decimals(t *testing.T) {
	var calls int32
	server := newEVMServer(t, 6, 0, &calls)
	defer server.Close()

	r := NewEVMResolver([]string{server.URL}, 0, zerolog.Nop())
	dec, err := r.Decimals(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)

	dec, err = r.Decimals(context.Background(), EthereumNativeToken)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), dec)

	before := atomic.LoadInt32(&calls)
	_, err = r.Decimals(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, before, atomic.LoadInt32(&calls), "decimals are cached per token")

	_, err = r.Decimals(context.Background(), "0x12")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCheckEVM(t *testing.T) {
	server := newEVMServer(t, 18, 0, nil)
	defer server.Close()

	res := CheckEVM(context.Background(), server.URL, 0)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, int64(1), res.ChainID)

	res = CheckEVM(context.Background(), "http://127.0.0.1:1", 0)
	assert.Equal(t, "error", res.Status)
	assert.NotEmpty(t, res.Error)
}

// newSolanaServer fakes a Solana node. accounts controls getTokenAccountsByOwner.
func newSolanaServer(t *testing.T, lamports uint64, accounts []interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		ctxObj := map[string]interface{}{"slot": 1}
		switch req.Method {
		case "getBalance":
			writeResult(w, req.ID, map[string]interface{}{"context": ctxObj, "value": lamports})
		case "getTokenAccountsByOwner":
			if accounts == nil {
				accounts = []interface{}{}
			}
			writeResult(w, req.ID, map[string]interface{}{"context": ctxObj, "value": accounts})
		case "getTokenSupply":
			writeResult(w, req.ID, map[string]interface{}{"context": ctxObj, "value": map[string]interface{}{
				"amount":         "1000000000",
				"decimals":       6,
				"uiAmount":       1000,
				"uiAmountString": "1000",
			}})
		case "getHealth":
			writeResult(w, req.ID, "ok")
		default:
			writeResult(w, req.ID, nil)
		}
	}))
}

func tokenAccount(uiAmount string) map[string]interface{} {
	return map[string]interface{}{
		"pubkey": testSolWallet,
		"account": map[string]interface{}{
			"data": map[string]interface{}{
				"program": "spl-token",
				"parsed": map[string]interface{}{
					"type": "account",
					"info": map[string]interface{}{
						"mint":  testSolMint,
						"owner": testSolWallet,
						"tokenAmount": map[string]interface{}{
							"amount":         "0",
							"decimals":       6,
							"uiAmount":       json.Number(uiAmount),
							"uiAmountString": uiAmount,
						},
					},
				},
				"space": 165,
			},
			"executable": false,
			"lamports":   2039280,
			"owner":      tokenProgram,
			"rentEpoch":  0,
		},
	}
}

func TestSolanaResolver_NativeBalance(t *testing.T) {
	server := newSolanaServer(t, 1_500_000_000, nil)
	defer server.Close()

	r := NewSolanaResolver([]string{server.URL}, 0, zerolog.Nop())
	bal, err := r.Resolve(context.Background(), testSolWallet, SolanaNativeToken)
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal.String())
}

func TestSolanaResolver_FirstTokenAccount(t *testing.T) {
	server := newSolanaServer(t, 0, []interface{}{tokenAccount("1234.5"), tokenAccount("99")})
	defer server.Close()

	r := NewSolanaResolver([]string{server.URL}, 0, zerolog.Nop())
	bal, err := r.Resolve(context.Background(), testSolWallet, testSolMint)
	require.NoError(t, err)
	assert.Equal(t, "1234.5", bal.String())
}

func TestSolanaResolver_NoTokenAccountsIsZero(t *testing.T) {
	server := newSolanaServer(t, 0, nil)
	defer server.Close()

	r := NewSolanaResolver([]string{server.URL}, 0, zerolog.Nop())
	bal, err := r.Resolve(context.Background(), testSolWallet, testSolMint)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestSolanaResolver_Decimals(t *testing.T) {
	server := newSolanaServer(t, 0, nil)
	defer server.Close()

	r := NewSolanaResolver([]string{server.URL}, 0, zerolog.Nop())
	dec, err := r.Decimals(context.Background(), testSolMint)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)

	dec, err = r.Decimals(context.Background(), SolanaNativeToken)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), dec)
}

func TestSolanaResolver_InvalidAddress(t *testing.T) {
	r := NewSolanaResolver([]string{"http://127.0.0.1:1"}, 0, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "0OIl", testSolMint)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCheckSolana(t *testing.T) {
	server := newSolanaServer(t, 0, nil)
	defer server.Close()

	res := CheckSolana(context.Background(), server.URL, 0)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "ok", res.Health)
}

func TestUIAmountFallbacks(t *testing.T) {
	d, err := uiAmount(json.RawMessage(`{"parsed":{"info":{"tokenAmount":{"amount":"2500000","decimals":6}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "2.5", d.String())

	d, err = uiAmount(json.RawMessage(`{"parsed":{"info":{"tokenAmount":{"uiAmount":0.75}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "0.75", d.String())

	_, err = uiAmount(nil)
	assert.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateAddress(models.Ethereum, testEthWallet))
	assert.NoError(t, ValidateAddress(models.Solana, testSolWallet))
	assert.ErrorIs(t, ValidateAddress(models.Ethereum, testSolWallet), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress(models.Solana, testEthWallet), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress(models.Solana, "abc"), ErrInvalidAddress)
	assert.ErrorIs(t, ValidateAddress(models.ChainID("bitcoin"), "x"), ErrUnsupportedChain)
}

func TestIsNativeToken(t *testing.T) {
	t.Parallel()
	assert.True(t, IsNativeToken(models.Ethereum, EthereumNativeToken))
	assert.True(t, IsNativeToken(models.Solana, SolanaNativeToken))
	assert.False(t, IsNativeToken(models.Solana, EthereumNativeToken))
	assert.False(t, IsNativeToken(models.Ethereum, SolanaNativeToken))
}

type mockBalanceResolver struct {
	mock.Mock
	chain models.ChainID
}

func (m *mockBalanceResolver) Chain() models.ChainID { return m.chain }

func (m *mockBalanceResolver) Resolve(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	args := m.Called(wallet, token)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func TestResolver_Decimals(t *testing.T) {
	server := newEVMServer(t, 6, 0, nil)
	defer server.Close()

	r := NewResolver(zerolog.Nop(), nil, NewEVMResolver([]string{server.URL}, 0, zerolog.Nop()))
	dec, err := r.Decimals(context.Background(), models.Ethereum, testToken)
	require.NoError(t, err)
	assert.Equal(t, int32(6), dec)

	_, err = r.Decimals(context.Background(), models.Solana, testSolMint)
	assert.ErrorIs(t, err, ErrUnsupportedChain)
	_, err = r.Decimals(context.Background(), models.Ethereum, "")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestResolver_Dispatch(t *testing.T) {
	eth := &mockBalanceResolver{chain: models.Ethereum}
	sol := &mockBalanceResolver{chain: models.Solana}
	eth.On("Resolve", "w-eth", "t").Return(decimal.NewFromInt(3), nil)
	sol.On("Resolve", "w-sol", "t").Return(decimal.Zero, errors.New("rpc down"))

	r := NewResolver(zerolog.Nop(), metrics.New(), eth, sol)

	assert.Equal(t, "3", r.Balance(context.Background(), models.Ethereum, "w-eth", "t").String())
	assert.True(t, r.Balance(context.Background(), models.Solana, "w-sol", "t").IsZero(), "failures become zero")
	assert.True(t, r.Balance(context.Background(), models.ChainID("bitcoin"), "w", "t").IsZero())

	_, err := r.Resolve(context.Background(), models.Ethereum, "", "t")
	assert.ErrorIs(t, err, ErrNoWallet)
	_, err = r.Resolve(context.Background(), models.ChainID("bitcoin"), "w", "t")
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = r.Decimals(context.Background(), models.Ethereum, "t")
	assert.ErrorIs(t, err, ErrUnsupportedChain, "mock resolvers have no decimals lookup")

	assert.True(t, r.Supports(models.Solana))
	eth.AssertExpectations(t)
	sol.AssertExpectations(t)
}
