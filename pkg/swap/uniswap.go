package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"memefolio/pkg/models"
	"memefolio/pkg/rpc"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	UniswapV2Router = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	WETHAddress     = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"

	DefaultDeadline = 20 * time.Minute
	ethDecimals     = 18
)

const routerABI = `[
{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable",
 "inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
 "outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable",
 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
 "outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"getAmountsOut","type":"function","stateMutability":"view",
 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// RouterABI is the subset of the Uniswap V2 router used for quoting.
var RouterABI = mustParseABI(routerABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse router abi: %v", err))
	}
	return parsed
}

// UniswapExecutor builds Uniswap V2 router calls. Buys spend ETH, sells swap the token into WETH.
type UniswapExecutor struct {
	caller   ethereum.ContractCaller
	router   common.Address
	deadline time.Duration
	now      func() time.Time
}

// NewUniswapExecutor quotes through caller, usually an *ethclient.Client.
func NewUniswapExecutor(caller ethereum.ContractCaller, deadline time.Duration) *UniswapExecutor {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &UniswapExecutor{
		caller:   caller,
		router:   common.HexToAddress(UniswapV2Router),
		deadline: deadline,
		now:      time.Now,
	}
}

func (u *UniswapExecutor) Chain() models.ChainID { return models.Ethereum }

func (u *UniswapExecutor) Quote(ctx context.Context, req Request) (*Quote, error) {
	if err := rpc.ValidateAddress(models.Ethereum, req.Wallet); err != nil {
		return nil, err
	}
	if err := rpc.ValidateAddress(models.Ethereum, req.TokenAddress); err != nil {
		return nil, err
	}
	wallet := common.HexToAddress(req.Wallet)
	token := common.HexToAddress(req.TokenAddress)
	weth := common.HexToAddress(WETHAddress)
	deadline := u.now().Add(u.deadline).Unix()
	zero := big.NewInt(0)

	tokenDecimals := req.TokenDecimals
	if tokenDecimals <= 0 {
		tokenDecimals = ethDecimals
	}

	var (
		path        []common.Address
		amountIn    *big.Int
		outDecimals int32
		data        []byte
		value       = big.NewInt(0)
		err         error
	)
	switch req.Side {
	case Buy:
		path = []common.Address{weth, token}
		amountIn = toUnits(req.Amount, ethDecimals)
		outDecimals = tokenDecimals
		value = amountIn
		data, err = RouterABI.Pack("swapExactETHForTokens", zero, path, wallet, big.NewInt(deadline))
	case Sell:
		path = []common.Address{token, weth}
		amountIn = toUnits(req.Amount, tokenDecimals)
		outDecimals = ethDecimals
		data, err = RouterABI.Pack("swapExactTokensForTokens", amountIn, zero, path, wallet, big.NewInt(deadline))
	default:
		return nil, ErrInvalidSide
	}
	if err != nil {
		return nil, fmt.Errorf("pack router call: %w", err)
	}

	out, err := u.amountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Chain:       models.Ethereum,
		Side:        req.Side,
		InputToken:  path[0].Hex(),
		OutputToken: path[len(path)-1].Hex(),
		AmountIn:    req.Amount,
		AmountInRaw: amountIn.String(),
		AmountOut:   fromUnits(out, outDecimals),
		To:          u.router.Hex(),
		Value:       value.String(),
		Data:        hexutil.Encode(data),
		Deadline:    deadline,
	}, nil
}

// amountsOut returns the router's expected output for amountIn along path.
func (u *UniswapExecutor) amountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	if u.caller == nil {
		return nil, fmt.Errorf("%w: no ethereum client", ErrNoQuote)
	}
	data, err := RouterABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	res, err := u.caller.CallContract(ctx, ethereum.CallMsg{To: &u.router, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut: %w", err)
	}
	vals, err := RouterABI.Unpack("getAmountsOut", res)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack getAmountsOut: %v", ErrNoQuote, err)
	}
	if len(vals) == 0 {
		return nil, ErrNoQuote
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, ErrNoQuote
	}
	return amounts[len(amounts)-1], nil
}
