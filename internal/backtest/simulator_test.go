package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/instrument"
	"github.com/contactkeval/index-replay/internal/pricing"
)

var (
	testDay   = calendar.MustDate("2025-01-06")
	niftySpec = instrument.Defaults()[0]
)

func testCalendar() *calendar.Calendar {
	return calendar.New(calendar.Config{Location: calendar.IST, Holidays: calendar.DefaultHolidays()})
}

// minuteBars builds flat OHLC candles on testDay from `from` to `to`
// inclusive, priced by px.
func minuteBars(from, to string, px func(at calendar.Clock) float64) []data.Candle {
	return dayBars(testDay, from, to, px)
}

func dayBars(day calendar.Date, from, to string, px func(at calendar.Clock) float64) []data.Candle {
	start := calendar.On(day, calendar.MustClock(from), calendar.IST)
	end := calendar.On(day, calendar.MustClock(to), calendar.IST)

	var out []data.Candle
	for at := start; !at.After(end); at = at.Add(time.Minute) {
		p := px(calendar.ClockOf(at))
		out = append(out, data.Candle{Time: at, Open: p, High: p, Low: p, Close: p, Volume: 1})
	}
	return out
}

func flat(price float64) func(calendar.Clock) float64 {
	return func(calendar.Clock) float64 { return price }
}

func baseParams() StrategyParams {
	return StrategyParams{
		Index:      instrument.NIFTY,
		OptionType: pricing.Call,
		Position:   Long,
		EntryTime:  calendar.MustClock("09:20"),
		ExitTime:   calendar.MustClock("15:15"),
		StartDate:  testDay,
		Lots:       1,
	}
}

func newSim(t *testing.T, p StrategyParams, quoter data.OptionQuoter) *DaySimulator {
	t.Helper()
	sim, err := NewDaySimulator(p, niftySpec, testCalendar(), DefaultPricing(), quoter)
	require.NoError(t, err)
	return sim
}

func at(clock string) time.Time {
	return calendar.On(testDay, calendar.MustClock(clock), calendar.IST)
}

var niftyExpiry = time.Date(2025, 1, 7, 15, 30, 0, 0, calendar.IST)

func premium(spot float64, when time.Time, class pricing.Class) float64 {
	return pricing.Price(pricing.Inputs{
		Spot:       spot,
		Strike:     22000,
		T:          pricing.YearsBetween(when, niftyExpiry),
		Volatility: 0.20,
		Rate:       0.10,
		Class:      class,
	})
}

func TestSimulate_TimeExit(t *testing.T) {
	sim := newSim(t, baseParams(), nil)

	trade, err := sim.Simulate(context.Background(), minuteBars("09:15", "15:29", flat(22000)))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, TimeExit, trade.ExitReason)
	assert.True(t, trade.EntryTime.Equal(at("09:20")))
	assert.True(t, trade.ExitTime.Equal(at("15:15")))
	assert.Equal(t, testDay, trade.Date)
	assert.Equal(t, "BUY CE", trade.Signal)
	assert.Equal(t, "NIFTY 22000 CE", trade.Symbol)
	assert.Equal(t, 22000.0, trade.Strike)
	assert.Equal(t, 0.0, trade.SpotMove)
	assert.True(t, trade.Diagnostics.Expiry.Equal(niftyExpiry))
	assert.Equal(t, pricing.VolAssumed, trade.Diagnostics.VolSource)

	wantEntry := premium(22000, at("09:20"), pricing.Call)
	wantExit := premium(22000, at("15:15"), pricing.Call)
	assert.InDelta(t, wantEntry, trade.EntryPremium, 1e-9)
	assert.InDelta(t, wantExit, trade.ExitPremium, 1e-9)
	assert.InDelta(t, wantExit-wantEntry, trade.Points, 1e-9)
	assert.Less(t, trade.Points, 0.0, "a flat long call loses time value")
	assert.InDelta(t, trade.Points*65, trade.PnL, 0.006)
}

func TestSimulate_StopLoss(t *testing.T) {
	p := baseParams()
	p.StopLoss = 30

	// spot slides 10 points a minute after entry
	falling := func(c calendar.Clock) float64 {
		if c.Minutes() <= calendar.MustClock("09:20").Minutes() {
			return 22000
		}
		return 22000 - 10*float64(c.Minutes()-calendar.MustClock("09:20").Minutes())
	}
	candles := minuteBars("09:15", "15:29", falling)

	trade, err := newSim(t, p, nil).Simulate(context.Background(), candles)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, StopLoss, trade.ExitReason)
	assert.LessOrEqual(t, trade.Points, -30.0)
	assert.True(t, trade.ExitTime.Before(at("15:15")))

	// the bar before the exit had not yet breached
	prev := trade.ExitTime.Add(-time.Minute)
	prevPoints := premium(falling(calendar.ClockOf(prev)), prev, pricing.Call) - trade.EntryPremium
	if prev.After(at("09:20")) {
		assert.Greater(t, prevPoints, -30.0)
	}
	assert.Less(t, trade.PnL, 0.0)
	assert.InDelta(t, trade.ExitSpot-trade.EntrySpot, trade.SpotMove, 1e-9)
}

func TestSimulate_NoEntryBar(t *testing.T) {
	trade, err := newSim(t, baseParams(), nil).Simulate(context.Background(), minuteBars("09:30", "15:29", flat(22000)))
	require.NoError(t, err)
	assert.Nil(t, trade)
}

func TestSimulate_EndOfData(t *testing.T) {
	trade, err := newSim(t, baseParams(), nil).Simulate(context.Background(), minuteBars("09:15", "12:00", flat(22000)))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, EndOfData, trade.ExitReason)
	assert.True(t, trade.ExitTime.Equal(at("12:00")))
	assert.InDelta(t, premium(22000, at("12:00"), pricing.Call), trade.ExitPremium, 1e-9)
}

func TestSimulate_EntryOnLastBar(t *testing.T) {
	trade, err := newSim(t, baseParams(), nil).Simulate(context.Background(), minuteBars("09:15", "09:20", flat(22000)))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, EndOfData, trade.ExitReason)
	assert.True(t, trade.ExitTime.Equal(trade.EntryTime))
	assert.InDelta(t, 0.0, trade.Points, 1e-9)
	assert.Equal(t, 0.0, trade.PnL)
}

func TestSimulate_TimeExitCheckedBeforeStop(t *testing.T) {
	p := baseParams()
	p.StopLoss = 30

	crash := func(c calendar.Clock) float64 {
		if c.Minutes() >= calendar.MustClock("15:15").Minutes() {
			return 21000
		}
		return 22000
	}
	trade, err := newSim(t, p, nil).Simulate(context.Background(), minuteBars("09:15", "15:29", crash))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, TimeExit, trade.ExitReason)
	assert.True(t, trade.ExitTime.Equal(at("15:15")))
	assert.Less(t, trade.Points, -30.0)
	assert.Equal(t, -1000.0, trade.SpotMove)
}

func TestSimulate_ZeroStopLossDisablesStop(t *testing.T) {
	p := baseParams()
	falling := func(c calendar.Clock) float64 { return 22000 - float64(c.Minutes()-555)*5 }

	trade, err := newSim(t, p, nil).Simulate(context.Background(), minuteBars("09:15", "15:29", falling))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, TimeExit, trade.ExitReason)
}

func TestSimulate_ShortPut(t *testing.T) {
	p := baseParams()
	p.OptionType = "PE"
	p.Position = "SELL"
	p.Lots = 2

	trade, err := newSim(t, p, nil).Simulate(context.Background(), minuteBars("09:15", "15:29", flat(22000)))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, "SELL PE", trade.Signal)
	assert.Equal(t, "NIFTY 22000 PE", trade.Symbol)
	assert.Equal(t, 2, trade.Lots)

	wantPoints := premium(22000, at("09:20"), pricing.Put) - premium(22000, at("15:15"), pricing.Put)
	assert.InDelta(t, wantPoints, trade.Points, 1e-9)
	assert.Greater(t, trade.Points, 0.0, "a flat short put collects time value")
	assert.InDelta(t, wantPoints*65*2, trade.PnL, 0.006)
}

func TestSimulate_StrikeRuleOffset(t *testing.T) {
	p := baseParams()
	p.StrikeRule = "ATM:+100"

	trade, err := newSim(t, p, nil).Simulate(context.Background(), minuteBars("09:15", "15:29", flat(22010)))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, 22100.0, trade.Strike)
	assert.Equal(t, "NIFTY 22100 CE", trade.Symbol)
	assert.Equal(t, "ATM:+100", trade.Diagnostics.StrikeRule)
}

func TestSimulate_Diagnostics(t *testing.T) {
	trade, err := newSim(t, baseParams(), nil).Simulate(context.Background(), minuteBars("09:15", "15:29", flat(22000)))
	require.NoError(t, err)
	require.NotNil(t, trade)

	d := trade.Diagnostics
	assert.Equal(t, 375, d.Candles)
	assert.InDelta(t, trade.EntryPremium, d.Entry.Price, 1e-12)
	assert.InDelta(t, trade.ExitPremium, d.Exit.Price, 1e-12)
	assert.Greater(t, d.EntryT, d.ExitT)
	assert.InDelta(t, 0.5, d.EntryGreeks.Delta, 0.1)
	assert.Less(t, d.EntryGreeks.Theta, 0.0)
}

type fakeQuoter struct {
	quote float64
	err   error
	calls int
	last  data.OptionRequest
}

func (q *fakeQuoter) QuoteOption(ctx context.Context, req data.OptionRequest) (float64, error) {
	q.calls++
	q.last = req
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return q.quote, q.err
}

func TestSimulate_ImpliedVolatilityFromQuote(t *testing.T) {
	entryT := pricing.YearsBetween(at("09:20"), niftyExpiry)
	observed := pricing.Price(pricing.Inputs{Spot: 22000, Strike: 22000, T: entryT, Volatility: 0.30, Rate: 0.10, Class: pricing.Call})

	q := &fakeQuoter{quote: observed}
	trade, err := newSim(t, baseParams(), q).Simulate(context.Background(), minuteBars("09:15", "15:29", flat(22000)))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, 1, q.calls)
	assert.Equal(t, 22000.0, q.last.Strike)
	assert.Equal(t, "NIFTY", q.last.Underlying)
	assert.True(t, q.last.Expiry.Equal(niftyExpiry))

	assert.Equal(t, pricing.VolImplied, trade.Diagnostics.VolSource)
	assert.InDelta(t, 0.30, trade.Diagnostics.Volatility, 1e-3)
	assert.InDelta(t, observed, trade.EntryPremium, 1e-3)
}

func TestSimulate_QuoteTakenAtTheMoney(t *testing.T) {
	p := baseParams()
	p.StrikeRule = "ATM:+100"

	q := &fakeQuoter{quote: 120}
	trade, err := newSim(t, p, q).Simulate(context.Background(), minuteBars("09:15", "15:29", flat(22010)))
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.Equal(t, 22000.0, q.last.Strike)
	assert.Equal(t, 22100.0, trade.Strike)
	assert.Equal(t, 22000.0, trade.Diagnostics.QuoteStrike)
	assert.Equal(t, 120.0, trade.Diagnostics.EntryQuote)
	assert.Equal(t, pricing.VolImplied, trade.Diagnostics.VolSource)
}

func TestSimulate_QuoteFallbacks(t *testing.T) {
	tests := []struct {
		name string
		q    *fakeQuoter
	}{
		{name: "no quote", q: &fakeQuoter{err: data.ErrNoQuote}},
		{name: "upstream error", q: &fakeQuoter{err: errors.New("boom")}},
		{name: "below noise floor", q: &fakeQuoter{quote: 0.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := newSim(t, baseParams(), tt.q).Simulate(context.Background(), minuteBars("09:15", "15:29", flat(22000)))
			require.NoError(t, err)
			require.NotNil(t, trade)
			assert.Equal(t, pricing.VolAssumed, trade.Diagnostics.VolSource)
			assert.Equal(t, 0.20, trade.Diagnostics.Volatility)
		})
	}
}

func TestSimulate_CancelledWhileQuoting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSim(t, baseParams(), &fakeQuoter{quote: 100}).Simulate(ctx, minuteBars("09:15", "15:29", flat(22000)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDaySimulator_Rejects(t *testing.T) {
	p := baseParams()
	p.StrikeRule = "OTM2"
	_, err := NewDaySimulator(p, niftySpec, testCalendar(), DefaultPricing(), nil)
	assert.ErrorIs(t, err, ErrInvalidStrikeRule)

	p = baseParams()
	p.ExitTime = p.EntryTime
	_, err = NewDaySimulator(p, niftySpec, testCalendar(), DefaultPricing(), nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
}
