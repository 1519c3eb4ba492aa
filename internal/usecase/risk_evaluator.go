package usecase

import (
	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CloseDecision is a risk rule's request to close the open position.
type CloseDecision struct {
	Reason    domain.TradeReason
	ChangePct decimal.Decimal
}

type RiskEvaluator struct{}

func NewRiskEvaluator() *RiskEvaluator {
	return &RiskEvaluator{}
}

// ChangePct is the percent move in the position's favor relative to entry.
func (e *RiskEvaluator) ChangePct(position domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	if position.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return domain.SignedPnL(position.Side, position.EntryPrice, currentPrice, 1).
		Mul(hundred).
		Div(position.EntryPrice)
}

// Evaluate returns nil unless a threshold is reached. Stop-loss is checked
// first; both thresholds are inclusive. TrailingStop is not evaluated.
func (e *RiskEvaluator) Evaluate(position domain.Position, currentPrice decimal.Decimal, settings domain.TradeSettings) *CloseDecision {
	if !position.IsOpen() {
		return nil
	}

	pct := e.ChangePct(position, currentPrice)
	if pct.LessThanOrEqual(settings.StopLossPct.Neg()) {
		return &CloseDecision{Reason: domain.ReasonStopLoss, ChangePct: pct}
	}
	if pct.GreaterThanOrEqual(settings.TakeProfitPct) {
		return &CloseDecision{Reason: domain.ReasonTakeProfit, ChangePct: pct}
	}
	return nil
}
