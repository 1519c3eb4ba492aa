package domain

import "time"

type StopReason string

const (
	StopRequested       StopReason = "stopped by user"
	StopBudgetExhausted StopReason = "trade budget exhausted"
	StopShutdown        StopReason = "shutdown"
)

// SessionSummary is the record kept after an auto-trading session ends.
type SessionSummary struct {
	ID           string     `json:"id"`
	Strategy     string     `json:"strategy"`
	StartedAt    time.Time  `json:"started_at"`
	StoppedAt    time.Time  `json:"stopped_at"`
	TradesOpened int        `json:"trades_opened"`
	MaxTrades    int        `json:"max_trades"`
	StopReason   StopReason `json:"stop_reason"`
}
