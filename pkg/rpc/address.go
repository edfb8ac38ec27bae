package rpc

import (
	"errors"
	"fmt"
	"strings"

	"memefolio/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Token addresses that stand for the chain's native coin.
const (
	EthereumNativeToken = "0x0000000000000000000000000000000000000000"
	SolanaNativeToken   = "0x0000000000000000000000000000000000000001"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrNoWallet         = errors.New("no wallet connected")
)

// NativeToken returns the sentinel token address of chain's native coin.
func NativeToken(chain models.ChainID) string {
	switch chain {
	case models.Ethereum:
		return EthereumNativeToken
	case models.Solana:
		return SolanaNativeToken
	}
	return ""
}

// IsNativeToken reports whether token is the native sentinel for chain.
func IsNativeToken(chain models.ChainID, token string) bool {
	token = strings.TrimSpace(token)
	switch chain {
	case models.Ethereum:
		return strings.EqualFold(token, EthereumNativeToken)
	case models.Solana:
		return strings.EqualFold(token, SolanaNativeToken)
	}
	return false
}

// ValidateAddress checks that addr is well formed for chain.
func ValidateAddress(chain models.ChainID, addr string) error {
	addr = strings.TrimSpace(addr)
	switch chain {
	case models.Ethereum:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: %q is not a hex address", ErrInvalidAddress, addr)
		}
		return nil
	case models.Solana:
		raw, err := base58.Decode(addr)
		if err != nil {
			return fmt.Errorf("%w: %q is not base58: %v", ErrInvalidAddress, addr, err)
		}
		if len(raw) != 32 {
			return fmt.Errorf("%w: %q decodes to %d bytes, want 32", ErrInvalidAddress, addr, len(raw))
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
}
