package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"memefolio/pkg/models"
	"memefolio/pkg/rpc"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	ethWallet = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
	pepeToken = "0x6982508145454Ce325dDbE47a25d4ec3d2311933"
	solWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	bonkMint  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

type executorMock struct {
	mock.Mock
}

func (m *executorMock) Chain() models.ChainID { return models.Solana }

func (m *executorMock) Quote(ctx context.Context, req Request) (*Quote, error) {
	args := m.Called(ctx, req)
	q, _ := args.Get(0).(*Quote)
	return q, args.Error(1)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPrepare_ChecksInOrder(t *testing.T) {
	t.Parallel()
	base := Request{Wallet: solWallet, TokenAddress: bonkMint, Side: Buy, Amount: dec("1"), Balance: dec("2")}

	tests := []struct {
		name string
		edit func(*Request)
		want error
	}{
		{"no wallet beats everything", func(r *Request) { r.Wallet = ""; r.TokenAddress = ""; r.Amount = dec("5") }, ErrNoWallet},
		{"no token", func(r *Request) { r.TokenAddress = " "; r.Amount = dec("0") }, ErrNoToken},
		{"zero amount", func(r *Request) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(r *Request) { r.Amount = dec("-1") }, ErrInvalidAmount},
		{"insufficient funds", func(r *Request) { r.Amount = dec("2.0001") }, ErrInsufficientFunds},
		{"bad side", func(r *Request) { r.Side = "hodl" }, ErrInvalidSide},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := new(executorMock)
			req := base
			tt.edit(&req)
			_, err := Prepare(context.Background(), exec, req)
			assert.ErrorIs(t, err, tt.want)
			exec.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
		})
	}
}

func TestPrepare_Quote(t *testing.T) {
	t.Parallel()
	req := Request{Wallet: solWallet, TokenAddress: bonkMint, Side: Buy, Amount: dec("2"), Balance: dec("2")}

	exec := new(executorMock)
	exec.On("Quote", mock.Anything, req).Return(&Quote{Chain: models.Solana}, nil).Once()
	q, err := Prepare(context.Background(), exec, req)
	require.NoError(t, err)
	assert.Equal(t, models.Solana, q.Chain)

	exec.On("Quote", mock.Anything, req).Return(nil, nil).Once()
	_, err = Prepare(context.Background(), exec, req)
	assert.ErrorIs(t, err, ErrNoQuote)

	boom := errors.New("upstream down")
	exec.On("Quote", mock.Anything, req).Return(nil, boom).Once()
	_, err = Prepare(context.Background(), exec, req)
	assert.ErrorIs(t, err, boom)
	exec.AssertExpectations(t)
}

func TestUserMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Insufficient balance to complete the transaction.", UserMessage(ErrInsufficientFunds))
	assert.Equal(t, "Embedded wallet not found.", UserMessage(rpc.ErrNoWallet))
	assert.Equal(t, "Failed to fetch swap quote.", UserMessage(ErrNoQuote))
	assert.Equal(t, "Failed to execute swap.", UserMessage(errors.New("other")))
	assert.Empty(t, UserMessage(nil))

	assert.True(t, IsUserError(ErrInsufficientFunds))
	assert.True(t, IsUserError(rpc.ErrInvalidAddress))
	assert.False(t, IsUserError(ErrNoQuote))
}

func TestParseSide(t *testing.T) {
	t.Parallel()
	s, ok := ParseSide(" SELL ")
	assert.True(t, ok)
	assert.Equal(t, Sell, s)
	_, ok = ParseSide("swap")
	assert.False(t, ok)
}

func TestJupiterExecutor_Quote(t *testing.T) {
	t.Parallel()
	queries := make(chan url.Values, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/quote", r.URL.Path)
		queries <- r.URL.Query()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"inputMint":      r.URL.Query().Get("inputMint"),
			"outputMint":     r.URL.Query().Get("outputMint"),
			"inAmount":       r.URL.Query().Get("amount"),
			"outAmount":      "123450000",
			"slippageBps":    50,
			"priceImpactPct": "0.12",
		})
	}))
	defer srv.Close()

	j := NewJupiterExecutor(srv.URL, 0, time.Second)
	q, err := j.Quote(context.Background(), Request{Wallet: solWallet, TokenAddress: bonkMint, Side: Buy, Amount: dec("1.5"), TokenDecimals: 5})
	require.NoError(t, err)

	got := <-queries
	assert.Equal(t, SOLMint, got.Get("inputMint"))
	assert.Equal(t, bonkMint, got.Get("outputMint"))
	assert.Equal(t, "1500000000", got.Get("amount"))
	assert.Equal(t, "50", got.Get("slippageBps"))
	assert.Equal(t, "1234.5", q.AmountOut.String())
	assert.Equal(t, 0.12, q.PriceImpact)
	require.NotNil(t, q.Route)

	q, err = j.Quote(context.Background(), Request{Wallet: solWallet, TokenAddress: bonkMint, Side: Sell, Amount: dec("10"), TokenDecimals: 5})
	require.NoError(t, err)
	got = <-queries
	assert.Equal(t, bonkMint, got.Get("inputMint"))
	assert.Equal(t, SOLMint, got.Get("outputMint"))
	assert.Equal(t, "1000000", got.Get("amount"))
	assert.Equal(t, "0.12345", q.AmountOut.String())
}

func TestJupiterExecutor_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	j := NewJupiterExecutor(srv.URL, 50, time.Second)
	_, err := j.Quote(context.Background(), Request{Wallet: solWallet, TokenAddress: bonkMint, Side: Buy, Amount: dec("1")})
	assert.ErrorIs(t, err, ErrNoQuote)

	_, err = j.Quote(context.Background(), Request{Wallet: "nope", TokenAddress: bonkMint, Side: Buy, Amount: dec("1")})
	assert.ErrorIs(t, err, rpc.ErrInvalidAddress)
}

func testTransaction(t *testing.T) (string, solana.PublicKey) {
	t.Helper()
	payer := solana.MustPublicKeyFromBase58(solWallet)
	program := solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	tx := &solana.Transaction{
		Signatures: []solana.Signature{{}},
		Message: solana.Message{
			Header: solana.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys:     solana.PublicKeySlice{payer, program},
			RecentBlockhash: solana.Hash(program),
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []uint16{0}, Data: solana.Base58{1, 2, 3}},
			},
		},
	}
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw), payer
}

func TestJupiterExecutor_BuildTransaction(t *testing.T) {
	t.Parallel()
	encoded, payer := testTransaction(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v6/swap", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, solWallet, body["userPublicKey"])
		assert.NotNil(t, body["quoteResponse"])
		_ = json.NewEncoder(w).Encode(map[string]string{"swapTransaction": encoded})
	}))
	defer srv.Close()

	j := NewJupiterExecutor(srv.URL, 50, time.Second)
	utx, err := j.BuildTransaction(context.Background(), &Quote{Route: &JupiterQuote{InAmount: "1"}}, solWallet)
	require.NoError(t, err)
	assert.Equal(t, 1, utx.RequiredSignatures)
	assert.Equal(t, 1, utx.Instructions)
	assert.Equal(t, payer.String(), utx.FeePayer)
	assert.Equal(t, encoded, utx.Base64)

	_, err = j.BuildTransaction(context.Background(), &Quote{}, solWallet)
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestDecodeSwapTransaction_Invalid(t *testing.T) {
	t.Parallel()
	_, err := DecodeSwapTransaction("%%%")
	assert.Error(t, err)
	_, err = DecodeSwapTransaction(base64.StdEncoding.EncodeToString([]byte{0x05}))
	assert.Error(t, err)
}

// routerStub answers getAmountsOut with amountIn * rate on the last hop.
type routerStub struct {
	rate  int64
	calls int
	err   error
}

func (s *routerStub) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	method, err := RouterABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	in := args[0].(*big.Int)
	out := new(big.Int).Mul(in, big.NewInt(s.rate))
	return method.Outputs.Pack([]*big.Int{in, out})
}

func TestUniswapExecutor_Buy(t *testing.T) {
	t.Parallel()
	stub := &routerStub{rate: 1000}
	u := NewUniswapExecutor(stub, 0)
	fixed := time.Unix(1_700_000_000, 0)
	u.now = func() time.Time { return fixed }

	q, err := u.Quote(context.Background(), Request{Wallet: ethWallet, TokenAddress: pepeToken, Side: Buy, Amount: dec("0.5")})
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, UniswapV2Router, q.To)
	assert.Equal(t, "500000000000000000", q.Value)
	assert.Equal(t, fixed.Add(20*time.Minute).Unix(), q.Deadline)
	assert.Equal(t, "500", q.AmountOut.String())
	assert.Equal(t, common.HexToAddress(WETHAddress).Hex(), q.InputToken)

	data, err := hexutil.Decode(q.Data)
	require.NoError(t, err)
	method, err := RouterABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactETHForTokens", method.Name)
	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(0), args[0].(*big.Int).Int64())
	path := args[1].([]common.Address)
	assert.Equal(t, []common.Address{common.HexToAddress(WETHAddress), common.HexToAddress(pepeToken)}, path)
	assert.Equal(t, common.HexToAddress(ethWallet), args[2].(common.Address))
}

func TestUniswapExecutor_Sell(t *testing.T) {
	t.Parallel()
	stub := &routerStub{rate: 2}
	u := NewUniswapExecutor(stub, time.Minute)

	q, err := u.Quote(context.Background(), Request{Wallet: ethWallet, TokenAddress: pepeToken, Side: Sell, Amount: dec("3"), TokenDecimals: 6})
	require.NoError(t, err)
	assert.Equal(t, "3000000", q.AmountInRaw)
	assert.Equal(t, "0", q.Value)
	assert.Equal(t, "0.000000000006", q.AmountOut.String())

	data, err := hexutil.Decode(q.Data)
	require.NoError(t, err)
	method, err := RouterABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapExactTokensForTokens", method.Name)
}

func TestUniswapExecutor_Errors(t *testing.T) {
	t.Parallel()
	u := NewUniswapExecutor(&routerStub{err: errors.New("rpc down")}, 0)
	_, err := u.Quote(context.Background(), Request{Wallet: ethWallet, TokenAddress: pepeToken, Side: Buy, Amount: dec("1")})
	assert.ErrorContains(t, err, "getAmountsOut")

	_, err = u.Quote(context.Background(), Request{Wallet: ethWallet, TokenAddress: "0x12", Side: Buy, Amount: dec("1")})
	assert.ErrorIs(t, err, rpc.ErrInvalidAddress)

	assert.Equal(t, models.Ethereum, u.Chain())
}
