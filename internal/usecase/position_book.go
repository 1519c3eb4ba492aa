package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/domain"
)

// PositionBook is the position state machine: Closed -> Open(side) -> Closed.
// Every transition is appended to the ledger before the state changes, so a
// failed append leaves the position untouched. Callers serialize access.
type PositionBook struct {
	ledger   domain.TradeLedger
	now      func() time.Time
	position domain.Position
	nextID   int64
}

func NewPositionBook(ledger domain.TradeLedger, now func() time.Time) *PositionBook {
	if now == nil {
		now = time.Now
	}
	return &PositionBook{
		ledger:   ledger,
		now:      now,
		position: domain.Position{Status: domain.PositionClosed},
	}
}

// Resume continues record numbering after the newest entry already in the
// ledger. The position itself always starts Closed.
func (b *PositionBook) Resume(ctx context.Context) error {
	records, err := b.ledger.All(ctx)
	if err != nil {
		return fmt.Errorf("resume: read ledger: %w", err)
	}
	for _, r := range records {
		if r.ID > b.nextID {
			b.nextID = r.ID
		}
	}
	return nil
}

func (b *PositionBook) Position() domain.Position {
	return b.position
}

func (b *PositionBook) Open(ctx context.Context, side domain.Side, price decimal.Decimal, qty int64, reason domain.TradeReason) (domain.Position, error) {
	if b.position.IsOpen() {
		return b.position, &domain.TransitionError{Op: "open", Status: b.position.Status, Err: domain.ErrInvalidTransition}
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return b.position, fmt.Errorf("open: invalid side %q", side)
	}
	if !price.IsPositive() {
		return b.position, fmt.Errorf("open: price must be positive, got %s", price)
	}
	if qty <= 0 {
		return b.position, fmt.Errorf("open: %w", domain.ErrInsufficientInvestment)
	}

	ts := b.now()
	rec := domain.TradeRecord{
		ID:        b.nextID + 1,
		Action:    domain.TradeOpen,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Timestamp: ts,
		Reason:    reason,
	}
	if err := b.ledger.Append(ctx, rec); err != nil {
		return b.position, fmt.Errorf("open: append ledger: %w", err)
	}
	b.nextID = rec.ID

	b.position = domain.Position{
		Status:     domain.PositionOpen,
		Side:       side,
		EntryPrice: price,
		Quantity:   qty,
		OpenedAt:   ts,
	}
	return b.position, nil
}

// Close realizes the signed P&L at price unless profitOverride is given.
func (b *PositionBook) Close(ctx context.Context, price decimal.Decimal, reason domain.TradeReason, profitOverride *decimal.Decimal) (domain.Position, error) {
	if !b.position.IsOpen() {
		return b.position, &domain.TransitionError{Op: "close", Status: b.position.Status, Err: domain.ErrInvalidTransition}
	}

	profit := domain.SignedPnL(b.position.Side, b.position.EntryPrice, price, b.position.Quantity)
	if profitOverride != nil {
		profit = *profitOverride
	}

	ts := b.now()
	rec := domain.TradeRecord{
		ID:        b.nextID + 1,
		Action:    domain.TradeClose,
		Side:      b.position.Side,
		Price:     price,
		Quantity:  b.position.Quantity,
		Timestamp: ts,
		Reason:    reason,
		Profit:    &profit,
	}
	if err := b.ledger.Append(ctx, rec); err != nil {
		return b.position, fmt.Errorf("close: append ledger: %w", err)
	}
	b.nextID = rec.ID

	closed := b.position
	closed.Status = domain.PositionClosed
	closed.ClosedAt = ts
	closed.RealizedProfit = &profit
	b.position = closed
	return b.position, nil
}

// UnrealizedPnL is nil while the position is closed.
func (b *PositionBook) UnrealizedPnL(currentPrice decimal.Decimal) *decimal.Decimal {
	if !b.position.IsOpen() {
		return nil
	}
	pnl := domain.SignedPnL(b.position.Side, b.position.EntryPrice, currentPrice, b.position.Quantity)
	return &pnl
}
