package swap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"memefolio/pkg/models"
	"memefolio/pkg/rpc"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
)

const (
	SOLMint               = "So11111111111111111111111111111111111111112"
	DefaultSlippageBps    = 50
	solDecimals           = 9
	defaultJupiterTimeout = 8 * time.Second
)

// JupiterQuote is the /v6/quote response.
type JupiterQuote struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode,omitempty"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       json.Number     `json:"priceImpactPct,omitempty"`
	RoutePlan            json.RawMessage `json:"routePlan,omitempty"`
}

// JupiterExecutor quotes Solana swaps through the Jupiter aggregator.
type JupiterExecutor struct {
	Base        string
	SlippageBps int
	HTTP        *http.Client
}

func NewJupiterExecutor(base string, slippageBps int, timeout time.Duration) *JupiterExecutor {
	if slippageBps <= 0 {
		slippageBps = DefaultSlippageBps
	}
	if timeout <= 0 {
		timeout = defaultJupiterTimeout
	}
	return &JupiterExecutor{
		Base:        strings.TrimSuffix(base, "/"),
		SlippageBps: slippageBps,
		HTTP:        &http.Client{Timeout: timeout},
	}
}

func (j *JupiterExecutor) Chain() models.ChainID { return models.Solana }

// Quote prices a buy (SOL to token) or a sell (token to SOL).
func (j *JupiterExecutor) Quote(ctx context.Context, req Request) (*Quote, error) {
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Wallet)); err != nil {
		return nil, fmt.Errorf("%w: wallet: %v", rpc.ErrInvalidAddress, err)
	}
	token := strings.TrimSpace(req.TokenAddress)
	if _, err := solana.PublicKeyFromBase58(token); err != nil {
		return nil, fmt.Errorf("%w: mint: %v", rpc.ErrInvalidAddress, err)
	}
	tokenDecimals := req.TokenDecimals
	if tokenDecimals <= 0 {
		tokenDecimals = solDecimals
	}

	input, output := SOLMint, token
	inDec, outDec := int32(solDecimals), tokenDecimals
	if req.Side == Sell {
		input, output = token, SOLMint
		inDec, outDec = tokenDecimals, solDecimals
	}
	amountIn := toUnits(req.Amount, inDec)

	jq, err := j.GetQuote(ctx, input, output, amountIn)
	if err != nil {
		return nil, err
	}
	if jq == nil || jq.OutAmount == "" {
		return nil, ErrNoQuote
	}
	out, ok := new(big.Int).SetString(jq.OutAmount, 10)
	if !ok {
		return nil, fmt.Errorf("jupiter quote: bad outAmount %q", jq.OutAmount)
	}
	impact, _ := jq.PriceImpactPct.Float64()

	return &Quote{
		Chain:       models.Solana,
		Side:        req.Side,
		InputToken:  input,
		OutputToken: output,
		AmountIn:    req.Amount,
		AmountInRaw: amountIn.String(),
		AmountOut:   fromUnits(out, outDec),
		SlippageBps: j.SlippageBps,
		PriceImpact: impact,
		Route:       jq,
	}, nil
}

// GetQuote calls /v6/quote. amount is in the input mint's smallest units.
func (j *JupiterExecutor) GetQuote(ctx context.Context, inputMint, outputMint string, amount *big.Int) (*JupiterQuote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", amount.String())
	q.Set("slippageBps", fmt.Sprintf("%d", j.SlippageBps))
	q.Set("onlyDirectRoutes", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.Base+"/v6/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := j.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: jupiter quote status %d", ErrNoQuote, resp.StatusCode)
	}
	var out JupiterQuote
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// UnsignedTx is a Jupiter swap transaction waiting for the wallet's signature.
type UnsignedTx struct {
	Base64             string `json:"swapTransaction"`
	RecentBlockhash    string `json:"recentBlockhash"`
	RequiredSignatures int    `json:"requiredSignatures"`
	Instructions       int    `json:"instructions"`
	FeePayer           string `json:"feePayer"`
}

// BuildTransaction asks Jupiter for the swap transaction of a quote and decodes it.
func (j *JupiterExecutor) BuildTransaction(ctx context.Context, q *Quote, wallet string) (*UnsignedTx, error) {
	if q == nil || q.Route == nil {
		return nil, ErrNoQuote
	}
	owner, err := solana.PublicKeyFromBase58(strings.TrimSpace(wallet))
	if err != nil {
		return nil, fmt.Errorf("%w: wallet: %v", rpc.ErrInvalidAddress, err)
	}
	payload := map[string]any{
		"userPublicKey":    owner.String(),
		"wrapAndUnwrapSol": true,
		"quoteResponse":    q.Route,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.Base+"/v6/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := j.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter swap status %d", resp.StatusCode)
	}
	var sr struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	tx, err := DecodeSwapTransaction(sr.SwapTransaction)
	if err != nil {
		return nil, err
	}
	out := &UnsignedTx{
		Base64:             sr.SwapTransaction,
		RecentBlockhash:    tx.Message.RecentBlockhash.String(),
		RequiredSignatures: int(tx.Message.Header.NumRequiredSignatures),
		Instructions:       len(tx.Message.Instructions),
	}
	if len(tx.Message.AccountKeys) > 0 {
		out.FeePayer = tx.Message.AccountKeys[0].String()
	}
	return out, nil
}

// DecodeSwapTransaction parses a base64 wire transaction.
func DecodeSwapTransaction(b64 string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal tx: %w", err)
	}
	return tx, nil
}
