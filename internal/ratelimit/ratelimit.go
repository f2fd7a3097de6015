// Package ratelimit spaces out calls to rate-limited upstreams.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle defines the interface for pacing outbound requests.
type Throttle interface {
	// Wait blocks until the next request may go out or ctx is done.
	Wait(ctx context.Context) error
	// Allow reports whether a request may go out right now, consuming the slot if so.
	Allow() bool
}

// Limiter is a token bucket over golang.org/x/time/rate.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter allows rps requests per second with the given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Every admits one request per interval after an initial burst.
// A non-positive interval yields a NoOp throttle.
func Every(interval time.Duration, burst int) Throttle {
	if interval <= 0 {
		return NoOp{}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Every(interval), burst)}
}

func (t *Limiter) Wait(ctx context.Context) error {
	return t.l.Wait(ctx)
}

func (t *Limiter) Allow() bool {
	return t.l.Allow()
}

// Reserve takes a slot and returns how long the caller must wait before using it.
func (t *Limiter) Reserve() time.Duration {
	return t.l.Reserve().Delay()
}

// NoOp never blocks.
type NoOp struct{}

// Wait only reports context cancellation.
func (NoOp) Wait(ctx context.Context) error {
	return ctx.Err()
}

func (NoOp) Allow() bool { return true }
