package models

import (
	"fmt"
	"strings"
)

// ChainID identifies a supported chain.
type ChainID string

const (
	Ethereum ChainID = "ethereum"
	Solana   ChainID = "solana"
)

// SupportedChains lists every chain in display order.
var SupportedChains = []ChainID{Ethereum, Solana}

// ParseChainID normalizes s and reports whether it names a supported chain.
func ParseChainID(s string) (ChainID, bool) {
	c := ChainID(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

func (c ChainID) Valid() bool {
	return c == Ethereum || c == Solana
}

func (c ChainID) String() string { return string(c) }

// Label is the display name.
func (c ChainID) Label() string {
	switch c {
	case Ethereum:
		return "Ethereum"
	case Solana:
		return "Solana"
	default:
		return fmt.Sprintf("Unknown(%s)", string(c))
	}
}

// NativeSymbol returns the chain's own coin.
func (c ChainID) NativeSymbol() string {
	switch c {
	case Ethereum:
		return "ETH"
	case Solana:
		return "SOL"
	default:
		return ""
	}
}
