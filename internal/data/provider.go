// Package data provides historical market data for the replay engine.
package data

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/contactkeval/index-replay/internal/pricing"
)

var (
	// ErrNoSession is returned when a broker session cannot be established.
	ErrNoSession = errors.New("no broker session")
	// ErrNoQuote is returned when a provider has no option price for the request.
	ErrNoQuote = errors.New("no option quote")
)

// Interval is a candle width in the broker's vocabulary.
type Interval string

const (
	OneMinute     Interval = "ONE_MINUTE"
	FiveMinute    Interval = "FIVE_MINUTE"
	FifteenMinute Interval = "FIFTEEN_MINUTE"
	OneDay        Interval = "ONE_DAY"
)

// Duration returns the candle width.
func (i Interval) Duration() time.Duration {
	switch i {
	case FiveMinute:
		return 5 * time.Minute
	case FifteenMinute:
		return 15 * time.Minute
	case OneDay:
		return 24 * time.Hour
	}
	return time.Minute
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Provider supplies historical candles. Implementations return candles in
// ascending time order; an empty slice means no data for the window.
type Provider interface {
	GetCandles(ctx context.Context, exchange, token string, interval Interval, from, to time.Time) ([]Candle, error)
}

// OptionRequest identifies one option price lookup.
type OptionRequest struct {
	Underlying string
	Exchange   string
	Strike     float64
	Expiry     time.Time
	Class      pricing.Class
	At         time.Time
	Spot       float64 // underlying price at At, for providers that model premiums
}

// OptionQuoter is implemented by providers that can price an option contract
// at a point in time. Returns ErrNoQuote when they cannot.
type OptionQuoter interface {
	QuoteOption(ctx context.Context, req OptionRequest) (float64, error)
}

// --------------------------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------------------------

// ClassSuffix is the exchange suffix for a class: CE or PE.
func ClassSuffix(c pricing.Class) string {
	if c.IsCall() {
		return "CE"
	}
	return "PE"
}

// DisplaySymbol formats an option for reports, e.g. "NIFTY 22000 CE".
func DisplaySymbol(underlying string, strike float64, class pricing.Class) string {
	return fmt.Sprintf("%s %s %s", strings.ToUpper(underlying), formatStrike(strike), ClassSuffix(class))
}

// TradingSymbol formats an exchange trading symbol:
// <root><DDMMMYY><strike><CE|PE>, e.g. NIFTY07JAN2522000CE.
func TradingSymbol(underlying string, expiry time.Time, strike float64, class pricing.Class) string {
	return fmt.Sprintf("%s%s%s%s",
		strings.ToUpper(underlying),
		strings.ToUpper(expiry.Format("02Jan06")),
		formatStrike(strike),
		ClassSuffix(class),
	)
}

func formatStrike(strike float64) string {
	if strike == math.Trunc(strike) {
		return fmt.Sprintf("%d", int64(strike))
	}
	return fmt.Sprintf("%g", strike)
}

// SortCandles orders candles by time in place.
func SortCandles(cs []Candle) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Time.Before(cs[j].Time) })
}

// Window keeps the candles with from <= Time <= to. Input must be sorted.
func Window(cs []Candle, from, to time.Time) []Candle {
	lo := sort.Search(len(cs), func(i int) bool { return !cs[i].Time.Before(from) })
	hi := sort.Search(len(cs), func(i int) bool { return cs[i].Time.After(to) })
	if lo >= hi {
		return nil
	}
	return cs[lo:hi]
}

// PriceAt picks an option price from sorted candles near at: the close of the
// last candle at or before at within lookback, otherwise the open of the
// first candle within lookahead after it.
func PriceAt(cs []Candle, at time.Time, lookback, lookahead time.Duration) (float64, bool) {
	before := Window(cs, at.Add(-lookback), at)
	if len(before) > 0 {
		return before[len(before)-1].Close, true
	}
	after := Window(cs, at, at.Add(lookahead))
	if len(after) > 0 {
		return after[0].Open, true
	}
	return 0, false
}
