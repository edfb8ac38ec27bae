package watcher

import (
	"time"

	"memefolio/pkg/holdings"
)

// EventType names what changed.
type EventType string

const (
	EventCoinsUpdated    EventType = "coins_updated"
	EventHoldingsUpdated EventType = "holdings_updated"
	EventCoinAdmitted    EventType = "coin_admitted"
	EventStatusUpdated   EventType = "status_updated"
)

// Event is broadcast to subscribers. Data is a *registry.Snapshot, HoldingsPayload,
// models.Coin or Status depending on Type.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// HoldingsPayload carries both holdings views of one refresh.
type HoldingsPayload struct {
	Holdings holdings.View `json:"holdings"`
	Rewards  holdings.View `json:"rewards"`
}

// Status summarizes the refresher for the status endpoint and the TUI header.
type Status struct {
	Version          uint64            `json:"version"`
	Coins            int               `json:"coins"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	NativePrices     map[string]string `json:"nativePrices"`
	NativeBalances   map[string]string `json:"nativeBalances"`
	Wallets          map[string]string `json:"wallets"`
	LastPriceTick    time.Time         `json:"lastPriceTick"`
	LastHoldingsTick time.Time         `json:"lastHoldingsTick"`
	CatalogError     string            `json:"catalogError,omitempty"`
}
