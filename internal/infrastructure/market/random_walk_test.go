package market

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWalkFeed_StaysWithinBounds(t *testing.T) {
	baseline := decimal.RequireFromString("100.25")
	feed, err := NewRandomWalkFeed(baseline, 2, 1.5, 42)
	require.NoError(t, err)

	lower := decimal.RequireFromString("98.245")
	upper := decimal.RequireFromString("102.255")

	for i := 0; i < 5000; i++ {
		p, err := feed.CurrentPrice(context.Background())
		require.NoError(t, err)
		assert.True(t, p.GreaterThanOrEqual(lower), "price %s below %s", p, lower)
		assert.True(t, p.LessThanOrEqual(upper), "price %s above %s", p, upper)
	}
}

func TestRandomWalkFeed_SameSeedSamePath(t *testing.T) {
	a, err := NewRandomWalkFeed(decimal.NewFromInt(100), 5, 0.5, 7)
	require.NoError(t, err)
	b, err := NewRandomWalkFeed(decimal.NewFromInt(100), 5, 0.5, 7)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		pa, _ := a.CurrentPrice(context.Background())
		pb, _ := b.CurrentPrice(context.Background())
		assert.True(t, pa.Equal(pb))
	}
}

func TestRandomWalkFeed_InvalidArgs(t *testing.T) {
	_, err := NewRandomWalkFeed(decimal.Zero, 5, 1, 1)
	assert.Error(t, err)
	_, err = NewRandomWalkFeed(decimal.NewFromInt(100), 0, 1, 1)
	assert.Error(t, err)
	_, err = NewRandomWalkFeed(decimal.NewFromInt(100), 5, 0, 1)
	assert.Error(t, err)
}

func TestRandomWalkFeed_CancelledContext(t *testing.T) {
	feed, err := NewRandomWalkFeed(decimal.NewFromInt(100), 5, 1, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = feed.CurrentPrice(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
