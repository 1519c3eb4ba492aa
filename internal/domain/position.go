package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid side: %q", s)
}

type PositionStatus string

const (
	PositionClosed PositionStatus = "CLOSED"
	PositionOpen   PositionStatus = "OPEN"
)

// Position is the single slot of simulated exposure.
// Side, EntryPrice and Quantity are only meaningful while Status is Open
// and for the last closed position shown to the user.
type Position struct {
	Status         PositionStatus   `json:"status"`
	Side           Side             `json:"side,omitempty"`
	EntryPrice     decimal.Decimal  `json:"entry_price"`
	Quantity       int64            `json:"quantity"`
	OpenedAt       time.Time        `json:"opened_at"`
	ClosedAt       time.Time        `json:"closed_at"`
	RealizedProfit *decimal.Decimal `json:"realized_profit,omitempty"`
}

func (p Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// SignedPnL is (price-entry)*qty for Buy and (entry-price)*qty for Sell.
func SignedPnL(side Side, entry, price decimal.Decimal, qty int64) decimal.Decimal {
	diff := price.Sub(entry)
	if side == SideSell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(qty))
}

// QuantityFor returns floor(investment / price). Zero means the investment
// cannot buy a single unit.
func QuantityFor(investment, price decimal.Decimal) int64 {
	if !price.IsPositive() || !investment.IsPositive() {
		return 0
	}
	return investment.Div(price).Floor().IntPart()
}
