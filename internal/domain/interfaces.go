package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SignalSource returns the raw prediction text for a strategy.
type SignalSource interface {
	Prediction(ctx context.Context, strategyID string) (string, error)
}

// PriceFeed supplies the current reference price.
type PriceFeed interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
}

// TradeLedger is append-only. All returns newest first.
type TradeLedger interface {
	Append(ctx context.Context, record TradeRecord) error
	All(ctx context.Context) ([]TradeRecord, error)
}

// SessionRepository keeps summaries of finished auto-trading sessions.
type SessionRepository interface {
	SaveSession(ctx context.Context, summary SessionSummary) error
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
}

// Notifier is fire-and-forget; implementations must not block the caller.
type Notifier interface {
	Notify(n Notification)
}
