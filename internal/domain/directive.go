package domain

import "strings"

// Directive is the normalized trading intent derived from a raw prediction.
type Directive string

const (
	DirectiveBuy     Directive = "BUY"
	DirectiveSell    Directive = "SELL"
	DirectiveHold    Directive = "HOLD"
	DirectiveUnknown Directive = "UNKNOWN"
)

// ParseDirective is used for config vocabularies; it accepts any letter case.
func ParseDirective(s string) (Directive, bool) {
	switch Directive(strings.ToUpper(strings.TrimSpace(s))) {
	case DirectiveBuy:
		return DirectiveBuy, true
	case DirectiveSell:
		return DirectiveSell, true
	case DirectiveHold:
		return DirectiveHold, true
	}
	return DirectiveUnknown, false
}

// Actionable reports whether the directive asks for exposure in a direction.
func (d Directive) Actionable() bool {
	return d == DirectiveBuy || d == DirectiveSell
}

// Side returns the position side for Buy/Sell directives.
func (d Directive) Side() (Side, bool) {
	switch d {
	case DirectiveBuy:
		return SideBuy, true
	case DirectiveSell:
		return SideSell, true
	}
	return "", false
}

// Opposes reports whether the directive asks for the other side of an open position.
func (d Directive) Opposes(side Side) bool {
	return (side == SideBuy && d == DirectiveSell) || (side == SideSell && d == DirectiveBuy)
}
