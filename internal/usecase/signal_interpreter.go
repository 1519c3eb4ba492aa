package usecase

import (
	"fmt"
	"sort"

	"github.com/vitos/strategy_autotrade/internal/domain"
)

// Vocabulary maps the literal phrases a strategy's predictor emits to directives.
type Vocabulary map[string]domain.Directive

// SignalInterpreter turns raw prediction text into a Directive by exact,
// strategy-scoped lookup. It is immutable after construction.
type SignalInterpreter struct {
	vocabularies map[string]Vocabulary
}

// NewSignalInterpreter copies the table and rejects a phrase that appears in
// more than one strategy's vocabulary.
func NewSignalInterpreter(table map[string]Vocabulary) (*SignalInterpreter, error) {
	owners := make(map[string]string)
	vocabularies := make(map[string]Vocabulary, len(table))

	for _, strategyID := range sortedKeys(table) {
		vocab := make(Vocabulary, len(table[strategyID]))
		for phrase, directive := range table[strategyID] {
			if owner, ok := owners[phrase]; ok {
				return nil, fmt.Errorf("%w: %q used by %s and %s", domain.ErrVocabularyCollision, phrase, owner, strategyID)
			}
			if !directive.Actionable() && directive != domain.DirectiveHold {
				return nil, fmt.Errorf("strategy %s: phrase %q maps to %s", strategyID, phrase, directive)
			}
			owners[phrase] = strategyID
			vocab[phrase] = directive
		}
		vocabularies[strategyID] = vocab
	}

	return &SignalInterpreter{vocabularies: vocabularies}, nil
}

// Interpret never fails: text outside the strategy's vocabulary is Unknown.
func (i *SignalInterpreter) Interpret(strategyID, rawText string) domain.Directive {
	vocab, ok := i.vocabularies[strategyID]
	if !ok {
		return domain.DirectiveUnknown
	}
	if d, ok := vocab[rawText]; ok {
		return d
	}
	return domain.DirectiveUnknown
}

func (i *SignalInterpreter) HasStrategy(strategyID string) bool {
	_, ok := i.vocabularies[strategyID]
	return ok
}

// Strategies returns the known strategy IDs in sorted order.
func (i *SignalInterpreter) Strategies() []string {
	return sortedKeys(i.vocabularies)
}

func sortedKeys(m map[string]Vocabulary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefaultVocabularies covers the dashboard's strategy catalogue. The
// momentum-trading phrases are the ones the prediction service returns.
func DefaultVocabularies() map[string]Vocabulary {
	return map[string]Vocabulary{
		"momentum-trading": {
			"📈 Uptrend (Buy)":    domain.DirectiveBuy,
			"📉 Downtrend (Sell)": domain.DirectiveSell,
			"➖ Sideways (Hold)":  domain.DirectiveHold,
		},
		"mean-reversion": {
			"🔺 Oversold (Buy)":      domain.DirectiveBuy,
			"🔻 Overbought (Sell)":   domain.DirectiveSell,
			"⚖️ Equilibrium (Hold)": domain.DirectiveHold,
		},
		"sentiment-analysis": {
			"😀 Bullish Sentiment (Buy)":  domain.DirectiveBuy,
			"😟 Bearish Sentiment (Sell)": domain.DirectiveSell,
			"😐 Neutral Sentiment (Hold)": domain.DirectiveHold,
		},
		"machine-learning": {
			"🤖 Model Long (Buy)":   domain.DirectiveBuy,
			"🤖 Model Short (Sell)": domain.DirectiveSell,
			"🤖 Model Flat (Hold)":  domain.DirectiveHold,
		},
		"statistical-arbitrage": {
			"📊 Spread Wide (Buy)":     domain.DirectiveBuy,
			"📊 Spread Narrow (Sell)":  domain.DirectiveSell,
			"📊 Spread Neutral (Hold)": domain.DirectiveHold,
		},
	}
}
