package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is an open on an open position or a close on a closed one.
	ErrInvalidTransition = errors.New("invalid position transition")
	// ErrFetchFailure covers an unavailable or timed out signal or price source.
	ErrFetchFailure           = errors.New("fetch failure")
	ErrAutoTradingActive      = errors.New("auto-trading is running")
	ErrAutoTradingInactive    = errors.New("auto-trading is not running")
	ErrInvalidSettings        = errors.New("invalid trade settings")
	ErrInsufficientInvestment = errors.New("investment amount is below one unit at current price")
	ErrUnknownStrategy        = errors.New("unknown strategy")
	ErrVocabularyCollision    = errors.New("signal vocabulary collision")
	ErrNoPrice                = errors.New("no market price available yet")
)

// TransitionError describes a rejected position state change.
type TransitionError struct {
	Op     string
	Status PositionStatus
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s while position %s: %v", e.Op, e.Status, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
