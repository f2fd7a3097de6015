package data

import (
	"context"
	"time"

	"github.com/contactkeval/index-replay/internal/ratelimit"
)

// throttledProvider paces every upstream call through a shared throttle.
type throttledProvider struct {
	inner    Provider
	throttle ratelimit.Throttle
}

// Throttled wraps p so that each GetCandles and QuoteOption call first waits
// on t. Use one wrapper per upstream account so concurrent runs share the budget.
func Throttled(p Provider, t ratelimit.Throttle) Provider {
	if t == nil {
		return p
	}
	return &throttledProvider{inner: p, throttle: t}
}

func (p *throttledProvider) GetCandles(ctx context.Context, exchange, token string, interval Interval, from, to time.Time) ([]Candle, error) {
	if err := p.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.GetCandles(ctx, exchange, token, interval, from, to)
}

// QuoteOption forwards to the wrapped provider when it can quote options.
func (p *throttledProvider) QuoteOption(ctx context.Context, req OptionRequest) (float64, error) {
	q, ok := p.inner.(OptionQuoter)
	if !ok {
		return 0, ErrNoQuote
	}
	if err := p.throttle.Wait(ctx); err != nil {
		return 0, err
	}
	return q.QuoteOption(ctx, req)
}
