package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type TimeFrame string

const (
	TimeFrame1m  TimeFrame = "1m"
	TimeFrame5m  TimeFrame = "5m"
	TimeFrame15m TimeFrame = "15m"
	TimeFrame1h  TimeFrame = "1h"
	TimeFrame4h  TimeFrame = "4h"
	TimeFrame1d  TimeFrame = "1d"
)

func (tf TimeFrame) Valid() bool {
	switch tf {
	case TimeFrame1m, TimeFrame5m, TimeFrame15m, TimeFrame1h, TimeFrame4h, TimeFrame1d:
		return true
	}
	return false
}

// TradeSettings are the only externally adjustable trading parameters.
// TrailingStop is accepted and stored but no rule evaluates it.
// TimeFrame is advisory and does not change the loop cadence.
type TradeSettings struct {
	InvestmentAmount decimal.Decimal `json:"investment_amount"`
	StopLossPct      decimal.Decimal `json:"stop_loss_pct"`
	TakeProfitPct    decimal.Decimal `json:"take_profit_pct"`
	TrailingStop     bool            `json:"trailing_stop"`
	MaxTrades        int             `json:"max_trades"`
	TimeFrame        TimeFrame       `json:"time_frame"`
}

func DefaultTradeSettings() TradeSettings {
	return TradeSettings{
		InvestmentAmount: decimal.NewFromInt(1000),
		StopLossPct:      decimal.NewFromInt(5),
		TakeProfitPct:    decimal.NewFromInt(10),
		TrailingStop:     false,
		MaxTrades:        5,
		TimeFrame:        TimeFrame5m,
	}
}

func (s TradeSettings) Validate() error {
	if !s.InvestmentAmount.IsPositive() {
		return fmt.Errorf("%w: investment amount must be positive", ErrInvalidSettings)
	}
	if !s.StopLossPct.IsPositive() {
		return fmt.Errorf("%w: stop loss pct must be positive", ErrInvalidSettings)
	}
	if !s.TakeProfitPct.IsPositive() {
		return fmt.Errorf("%w: take profit pct must be positive", ErrInvalidSettings)
	}
	if s.MaxTrades <= 0 {
		return fmt.Errorf("%w: max trades must be positive", ErrInvalidSettings)
	}
	if !s.TimeFrame.Valid() {
		return fmt.Errorf("%w: unsupported time frame %q", ErrInvalidSettings, s.TimeFrame)
	}
	return nil
}
