package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/pricing"
	"github.com/contactkeval/index-replay/internal/ratelimit"
)

type countingProvider struct {
	calls int
}

func (c *countingProvider) GetCandles(ctx context.Context, exchange, token string, interval Interval, from, to time.Time) ([]Candle, error) {
	c.calls++
	return []Candle{{Time: from}}, nil
}

func TestThrottled_SpacesCalls(t *testing.T) {
	inner := &countingProvider{}
	p := Throttled(inner, ratelimit.Every(25*time.Millisecond, 1))
	start, end := testDateRange()

	began := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.GetCandles(context.Background(), "NSE", "99926000", OneMinute, start, end)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(began), 45*time.Millisecond)
	assert.Equal(t, 3, inner.calls)
}

func TestThrottled_CancelledContext(t *testing.T) {
	inner := &countingProvider{}
	p := Throttled(inner, ratelimit.Every(time.Hour, 1))
	start, end := testDateRange()

	_, err := p.GetCandles(context.Background(), "NSE", "99926000", OneMinute, start, end)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.GetCandles(ctx, "NSE", "99926000", OneMinute, start, end)
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestThrottled_QuoteOption(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 20, 0, 0, calendar.IST)
	req := OptionRequest{
		Underlying: "NIFTY",
		Strike:     22000,
		Spot:       22000,
		Class:      pricing.Put,
		At:         at,
		Expiry:     at.Add(30 * time.Hour),
	}

	plain := Throttled(&countingProvider{}, ratelimit.NoOp{})
	_, err := plain.(OptionQuoter).QuoteOption(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoQuote)

	synth := Throttled(NewSyntheticProvider(SyntheticConfig{Seed: 1}), ratelimit.NoOp{})
	q, err := synth.(OptionQuoter).QuoteOption(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, q, 0.0)

	assert.Equal(t, synth, Throttled(synth, nil))
}
