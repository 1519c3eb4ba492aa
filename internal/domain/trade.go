package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeAction string

const (
	TradeOpen  TradeAction = "OPEN"
	TradeClose TradeAction = "CLOSE"
)

// TradeReason is the free-text cause recorded with every ledger entry.
type TradeReason string

const (
	ReasonSignal             TradeReason = "signal"
	ReasonSignalChanged      TradeReason = "signal changed"
	ReasonStopLoss           TradeReason = "stop-loss"
	ReasonTakeProfit         TradeReason = "take-profit"
	ReasonManual             TradeReason = "manual"
	ReasonAutoTradingStarted TradeReason = "auto-trading started"
)

// TradeRecord is an immutable ledger entry. Profit is set only on Close.
type TradeRecord struct {
	ID        int64            `json:"id"`
	Action    TradeAction      `json:"action"`
	Side      Side             `json:"side"`
	Price     decimal.Decimal  `json:"price"`
	Quantity  int64            `json:"quantity"`
	Timestamp time.Time        `json:"timestamp"`
	Reason    TradeReason      `json:"reason"`
	Profit    *decimal.Decimal `json:"profit,omitempty"`
}
