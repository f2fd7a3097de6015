// Package backtest replays a single-leg intraday option strategy over
// historical index candles and aggregates the results.
//
// Responsibilities:
//   - Validate a strategy request against the instrument registry
//   - Walk business days, fetch candles sequentially behind a throttle
//   - Simulate one trade per day with theoretical Black-Scholes premiums
//   - Accumulate P&L, win/loss counts and drawdown into a report
//
// Design notes:
//   - Days are processed in order; trades are appended chronologically
//   - Pricing is pure; the only blocking work is the provider fetch
//   - Errors are typed where callers branch on them and wrapped otherwise
package backtest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/instrument"
	"github.com/contactkeval/index-replay/internal/pricing"
)

//
// ==========================
// Error taxonomy
// ==========================
//

var (
	// ErrInvalidParams marks a request the engine refuses before fetching anything.
	ErrInvalidParams = errors.New("invalid strategy params")
	// ErrProviderFailure marks a run aborted by the data provider.
	ErrProviderFailure = errors.New("data provider failure")
	// ErrInvalidStrikeRule marks a strike rule that cannot be parsed or evaluated.
	ErrInvalidStrikeRule = errors.New("invalid strike rule")
)

//
// ==========================
// Domain Types
// ==========================
//

// Position is the side of the option trade.
type Position string

const (
	Long  Position = "LONG"
	Short Position = "SHORT"
)

// TradeType is the holding style. Only intraday is supported.
type TradeType string

const Intraday TradeType = "INTRADAY"

// ExitReason says why a trade closed.
type ExitReason string

const (
	TimeExit  ExitReason = "TIME_EXIT"
	StopLoss  ExitReason = "STOP_LOSS"
	EndOfData ExitReason = "END_OF_DATA"
)

// StrategyParams is one backtest request. It is not modified during a run.
type StrategyParams struct {
	Index      instrument.Underlying `json:"index"`
	OptionType pricing.Class         `json:"optionType"` // CALL|PUT, CE|PE accepted
	Position   Position              `json:"position"`   // LONG|SHORT, BUY|SELL accepted
	EntryTime  calendar.Clock        `json:"entryTime"`
	ExitTime   calendar.Clock        `json:"exitTime"`
	StopLoss   float64               `json:"stopLoss"` // premium points; 0 disables
	StartDate  calendar.Date         `json:"startDate"`
	EndDate    calendar.Date         `json:"endDate"` // inclusive; defaults to StartDate
	Lots       int                   `json:"lots"`
	TradeType  TradeType             `json:"tradeType"`
	StrikeRule string                `json:"strikeRule,omitempty"` // default ATM
}

// Normalize returns a copy with aliases resolved and defaults filled, or an
// ErrInvalidParams error naming the first bad field.
func (p StrategyParams) Normalize() (StrategyParams, error) {
	p.Index = instrument.Underlying(strings.ToUpper(strings.TrimSpace(string(p.Index))))

	switch strings.ToUpper(strings.TrimSpace(string(p.OptionType))) {
	case "CALL", "CE", "C":
		p.OptionType = pricing.Call
	case "PUT", "PE", "P":
		p.OptionType = pricing.Put
	default:
		return p, fmt.Errorf("%w: optionType %q", ErrInvalidParams, p.OptionType)
	}

	switch strings.ToUpper(strings.TrimSpace(string(p.Position))) {
	case "LONG", "BUY":
		p.Position = Long
	case "SHORT", "SELL":
		p.Position = Short
	default:
		return p, fmt.Errorf("%w: position %q", ErrInvalidParams, p.Position)
	}

	switch strings.ToUpper(strings.TrimSpace(string(p.TradeType))) {
	case "", string(Intraday):
		p.TradeType = Intraday
	default:
		return p, fmt.Errorf("%w: tradeType %q not supported", ErrInvalidParams, p.TradeType)
	}

	if p.StartDate.IsZero() {
		return p, fmt.Errorf("%w: startDate is required", ErrInvalidParams)
	}
	if p.EndDate.IsZero() {
		p.EndDate = p.StartDate
	}
	if p.EndDate.Before(p.StartDate) {
		return p, fmt.Errorf("%w: endDate %s before startDate %s", ErrInvalidParams, p.EndDate, p.StartDate)
	}
	if p.StopLoss < 0 {
		return p, fmt.Errorf("%w: stopLoss must not be negative", ErrInvalidParams)
	}
	if p.Lots == 0 {
		p.Lots = 1
	}
	if p.Lots < 0 {
		return p, fmt.Errorf("%w: lots must be positive", ErrInvalidParams)
	}
	if !p.EntryTime.Before(p.ExitTime) {
		return p, fmt.Errorf("%w: entryTime %s must be before exitTime %s", ErrInvalidParams, p.EntryTime, p.ExitTime)
	}
	if strings.TrimSpace(p.StrikeRule) == "" {
		p.StrikeRule = "ATM"
	}
	return p, nil
}

// Signal renders the side and class the way traders write it, e.g. "BUY CE".
func (p StrategyParams) Signal() string {
	side := "BUY"
	if p.Position == Short {
		side = "SELL"
	}
	suffix := "PE"
	if p.OptionType.IsCall() {
		suffix = "CE"
	}
	return side + " " + suffix
}

// Diagnostics is the audit payload attached to every trade.
type Diagnostics struct {
	Candles     int               `json:"candles"`
	Expiry      time.Time         `json:"expiry"`
	StrikeRule  string            `json:"strikeRule"`
	Volatility  float64           `json:"volatility"`
	VolSource   pricing.VolSource `json:"volSource"`
	EntryQuote  float64           `json:"entryQuote,omitempty"`  // observed premium used for IV
	QuoteStrike float64           `json:"quoteStrike,omitempty"` // strike of EntryQuote; may differ from the traded strike
	Rate        float64           `json:"rate"`
	EntryT      float64           `json:"entryT"`
	ExitT       float64           `json:"exitT"`
	Entry       pricing.Breakdown `json:"entryMath"`
	Exit        pricing.Breakdown `json:"exitMath"`
	EntryGreeks pricing.Greeks    `json:"entryGreeks"`
	ExitGreeks  pricing.Greeks    `json:"exitGreeks"`
}

// Trade is one simulated day.
type Trade struct {
	Date         calendar.Date `json:"date"`
	Signal       string        `json:"signal"`
	Symbol       string        `json:"symbol"`
	Strike       float64       `json:"strike"`
	EntryTime    time.Time     `json:"entryTime"`
	EntrySpot    float64       `json:"entrySpot"`
	EntryPremium float64       `json:"entryPremium"`
	ExitTime     time.Time     `json:"exitTime"`
	ExitSpot     float64       `json:"exitSpot"`
	ExitPremium  float64       `json:"exitPremium"`
	ExitReason   ExitReason    `json:"exitReason"`
	SpotMove     float64       `json:"spotMove"`
	Points       float64       `json:"points"`
	PnL          float64       `json:"pnl"`
	Lots         int           `json:"lots"`
	TradeType    TradeType     `json:"tradeType"`
	Diagnostics  Diagnostics   `json:"diagnostics"`
}

// Report is the result of one run.
type Report struct {
	RunID         string         `json:"runId"`
	Params        StrategyParams `json:"params"`
	Trades        []Trade        `json:"trades"`
	TotalPnL      float64        `json:"totalPnL"`
	Wins          int            `json:"wins"`
	Losses        int            `json:"losses"`
	WinRate       float64        `json:"winRate"`
	MaxDrawdown   float64        `json:"maxDrawdown"`
	TotalTrades   int            `json:"totalTrades"`
	DaysRequested int            `json:"daysRequested"`
	DaysWithData  int            `json:"daysWithData"`
	DaysSkipped   int            `json:"daysSkipped"`
	StartedAt     time.Time      `json:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt"`
}
