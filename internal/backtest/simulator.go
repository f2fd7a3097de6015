package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/instrument"
	"github.com/contactkeval/index-replay/internal/logger"
	"github.com/contactkeval/index-replay/internal/pricing"
)

// PricingConfig holds the flat pricing assumptions of a run.
type PricingConfig struct {
	RiskFreeRate      float64 `json:"riskFreeRate"`
	AssumedVolatility float64 `json:"assumedVolatility"`
	IVNoiseFloor      float64 `json:"ivNoiseFloor"`
}

// DefaultPricing is 10% rate, 20% volatility and a 0.05 premium noise floor.
func DefaultPricing() PricingConfig {
	return PricingConfig{RiskFreeRate: 0.10, AssumedVolatility: 0.20, IVNoiseFloor: pricing.DefaultNoiseFloor}
}

// DaySimulator replays one trading day for a fixed strategy.
// It holds no per-day state and may be reused across days.
type DaySimulator struct {
	params  StrategyParams
	spec    instrument.Spec
	cal     *calendar.Calendar
	pricing PricingConfig
	rule    StrikeRule
	quoter  data.OptionQuoter
}

// NewDaySimulator normalizes params and parses the strike rule.
// quoter may be nil, in which case the assumed volatility is always used.
func NewDaySimulator(params StrategyParams, spec instrument.Spec, cal *calendar.Calendar, pc PricingConfig, quoter data.OptionQuoter) (*DaySimulator, error) {
	p, err := params.Normalize()
	if err != nil {
		return nil, err
	}
	rule, err := ParseStrikeRule(p.StrikeRule)
	if err != nil {
		return nil, err
	}
	if err := rule.CheckClass(p.OptionType); err != nil {
		return nil, err
	}
	return &DaySimulator{params: p, spec: spec, cal: cal, pricing: pc, rule: rule, quoter: quoter}, nil
}

// Simulate runs the entry/replay/exit state machine over one day's candles.
// It returns nil without error when no candle matches the entry time.
func (s *DaySimulator) Simulate(ctx context.Context, candles []data.Candle) (*Trade, error) {
	loc := s.cal.Location()
	p := s.params

	entryIdx := -1
	for i, c := range candles {
		if calendar.ClockOf(c.Time.In(loc)) == p.EntryTime {
			entryIdx = i
			break
		}
	}
	if entryIdx < 0 {
		logger.Debugf("event=no_entry_bar entry=%s candles=%d", p.EntryTime, len(candles))
		return nil, nil
	}

	entryBar := candles[entryIdx]
	entrySpot := entryBar.Open
	expiry := s.cal.NextExpiry(entryBar.Time, s.spec.ExpiryWeekday)
	entryT := pricing.YearsBetween(entryBar.Time, expiry)
	rate := s.pricing.RiskFreeRate

	// volatility is needed before a DELTA rule can pick the strike, so the
	// quote is always taken at the money
	atm := s.spec.RoundToStrike(entrySpot)
	quote, err := s.entryQuote(ctx, entrySpot, atm, expiry, entryBar.Time)
	if err != nil {
		return nil, err
	}
	vol, volSource := pricing.VolatilityFor(quote, s.pricing.AssumedVolatility, s.pricing.IVNoiseFloor,
		entrySpot, atm, entryT, rate, p.OptionType)

	strike, err := s.rule.Resolve(s.spec, StrikeContext{
		Spot:       entrySpot,
		T:          entryT,
		Rate:       rate,
		Volatility: vol,
		Class:      p.OptionType,
	})
	if err != nil {
		return nil, err
	}

	inputs := func(spot float64, at time.Time) pricing.Inputs {
		return pricing.Inputs{
			Spot:       spot,
			Strike:     strike,
			T:          pricing.YearsBetween(at, expiry),
			Volatility: vol,
			Rate:       rate,
			Class:      p.OptionType,
		}
	}
	entryPremium := pricing.Price(inputs(entrySpot, entryBar.Time))

	logger.Debugf("event=entry time=%s spot=%.2f strike=%.0f expiry=%s vol=%.4f(%s) premium=%.2f",
		entryBar.Time.Format(time.RFC3339), entrySpot, strike, expiry.Format("2006-01-02"), vol, volSource, entryPremium)

	exitIdx, reason := len(candles)-1, EndOfData
	for i := entryIdx + 1; i < len(candles); i++ {
		c := candles[i]

		if !calendar.ClockOf(c.Time.In(loc)).Before(p.ExitTime) {
			exitIdx, reason = i, TimeExit
			break
		}

		cur := pricing.Price(inputs(c.Close, c.Time))
		points := s.points(entryPremium, cur)
		logger.Tracef("event=replay_bar time=%s spot=%.2f premium=%.2f points=%.2f",
			c.Time.Format("15:04"), c.Close, cur, points)

		if p.StopLoss > 0 && -points >= p.StopLoss {
			exitIdx, reason = i, StopLoss
			break
		}
	}

	exitBar := candles[exitIdx]
	exitIn := inputs(exitBar.Close, exitBar.Time)
	exitPremium := pricing.Price(exitIn)
	points := s.points(entryPremium, exitPremium)

	pnl := decimal.NewFromFloat(points).
		Mul(decimal.NewFromInt(int64(s.spec.LotSize * p.Lots))).
		Round(2)

	var quoteStrike float64
	if quote > 0 {
		quoteStrike = atm
	}

	entryIn := inputs(entrySpot, entryBar.Time)
	trade := &Trade{
		Date:         calendar.DateOf(entryBar.Time.In(loc)),
		Signal:       p.Signal(),
		Symbol:       data.DisplaySymbol(string(s.spec.Name), strike, p.OptionType),
		Strike:       strike,
		EntryTime:    entryBar.Time,
		EntrySpot:    entrySpot,
		EntryPremium: entryPremium,
		ExitTime:     exitBar.Time,
		ExitSpot:     exitBar.Close,
		ExitPremium:  exitPremium,
		ExitReason:   reason,
		SpotMove:     exitBar.Close - entrySpot,
		Points:       points,
		PnL:          pnl.InexactFloat64(),
		Lots:         p.Lots,
		TradeType:    p.TradeType,
		Diagnostics: Diagnostics{
			Candles:     len(candles),
			Expiry:      expiry,
			StrikeRule:  s.rule.String(),
			Volatility:  vol,
			VolSource:   volSource,
			EntryQuote:  quote,
			QuoteStrike: quoteStrike,
			Rate:        rate,
			EntryT:      entryIn.T,
			ExitT:       exitIn.T,
			Entry:       pricing.Details(entryIn),
			Exit:        pricing.Details(exitIn),
			EntryGreeks: pricing.ComputeGreeks(entryIn),
			ExitGreeks:  pricing.ComputeGreeks(exitIn),
		},
	}

	logger.Infof("event=trade date=%s symbol=%q signal=%q reason=%s points=%.2f pnl=%.2f",
		trade.Date, trade.Symbol, trade.Signal, trade.ExitReason, trade.Points, trade.PnL)
	return trade, nil
}

// points is the signed premium move for the position.
func (s *DaySimulator) points(entry, current float64) float64 {
	if s.params.Position == Short {
		return entry - current
	}
	return current - entry
}

// entryQuote asks the provider for the premium of strike at entry. Zero means no quote.
func (s *DaySimulator) entryQuote(ctx context.Context, spot, strike float64, expiry, at time.Time) (float64, error) {
	if s.quoter == nil {
		return 0, nil
	}

	q, err := s.quoter.QuoteOption(ctx, data.OptionRequest{
		Underlying: string(s.spec.Name),
		Exchange:   s.spec.Exchange,
		Strike:     strike,
		Expiry:     expiry,
		Class:      s.params.OptionType,
		At:         at,
		Spot:       spot,
	})
	switch {
	case err == nil:
		return q, nil
	case ctx.Err() != nil:
		return 0, ctx.Err()
	case errors.Is(err, data.ErrNoQuote):
		logger.Tracef("event=no_quote at=%s", at.Format(time.RFC3339))
	default:
		logger.Warnf("event=quote_failed at=%s err=%v", at.Format(time.RFC3339), err)
	}
	return 0, nil
}

// String is used in logs.
func (s *DaySimulator) String() string {
	p := s.params
	return fmt.Sprintf("%s %s %s-%s sl=%.2f lots=%d rule=%s",
		s.spec.Name, p.Signal(), p.EntryTime, p.ExitTime, p.StopLoss, p.Lots, s.rule)
}
