package market

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// RandomWalkFeed is a simulated quote: each read moves the price by up to
// stepPct percent, clamped to baseline ± maxDeviationPct percent.
type RandomWalkFeed struct {
	baseline decimal.Decimal
	lower    decimal.Decimal
	upper    decimal.Decimal
	stepPct  float64

	mu    sync.Mutex
	rng   *rand.Rand
	price decimal.Decimal
}

func NewRandomWalkFeed(baseline decimal.Decimal, maxDeviationPct, stepPct float64, seed int64) (*RandomWalkFeed, error) {
	if !baseline.IsPositive() {
		return nil, fmt.Errorf("baseline must be positive, got %s", baseline)
	}
	if maxDeviationPct <= 0 || maxDeviationPct >= 100 {
		return nil, fmt.Errorf("max deviation pct must be in (0, 100), got %v", maxDeviationPct)
	}
	if stepPct <= 0 {
		return nil, fmt.Errorf("step pct must be positive, got %v", stepPct)
	}

	dev := baseline.Mul(decimal.NewFromFloat(maxDeviationPct)).Div(decimal.NewFromInt(100))
	return &RandomWalkFeed{
		baseline: baseline,
		lower:    baseline.Sub(dev),
		upper:    baseline.Add(dev),
		stepPct:  stepPct,
		rng:      rand.New(rand.NewSource(seed)),
		price:    baseline,
	}, nil
}

func (f *RandomWalkFeed) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	move := (f.rng.Float64()*2 - 1) * f.stepPct / 100
	next := f.price.Mul(decimal.NewFromFloat(1 + move)).Round(2)
	if next.LessThan(f.lower) {
		next = f.lower
	}
	if next.GreaterThan(f.upper) {
		next = f.upper
	}
	f.price = next
	return next, nil
}

func (f *RandomWalkFeed) Baseline() decimal.Decimal {
	return f.baseline
}
