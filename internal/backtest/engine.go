package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/instrument"
	"github.com/contactkeval/index-replay/internal/logger"
	"github.com/contactkeval/index-replay/internal/ratelimit"
	"github.com/contactkeval/index-replay/internal/telemetry"
)

// DefaultFetchInterval spaces consecutive day fetches.
const DefaultFetchInterval = time.Second

// Options tune a run without changing its results.
type Options struct {
	// SkipFailedDays logs and skips a day whose fetch fails instead of aborting.
	SkipFailedDays bool
	// Throttle paces provider calls. Nil means one call per DefaultFetchInterval.
	Throttle ratelimit.Throttle
	Metrics  *telemetry.Metrics
	Now      func() time.Time
}

// Engine runs backtests. It is safe for concurrent use; runs only share the
// provider and the throttle.
type Engine struct {
	provider data.Provider
	quoter   data.OptionQuoter
	cal      *calendar.Calendar
	registry *instrument.Registry
	pricing  PricingConfig
	opts     Options
}

func NewEngine(prov data.Provider, cal *calendar.Calendar, reg *instrument.Registry, pc PricingConfig, opts Options) *Engine {
	if cal == nil {
		cal = calendar.Default()
	}
	if reg == nil {
		reg = instrument.DefaultRegistry()
	}
	if opts.Throttle == nil {
		opts.Throttle = ratelimit.Every(DefaultFetchInterval, 1)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{provider: prov, cal: cal, registry: reg, pricing: pc, opts: opts}
	if _, ok := prov.(data.OptionQuoter); ok {
		// quotes go to the same upstream, so they share the fetch budget
		e.quoter = data.Throttled(prov, opts.Throttle).(data.OptionQuoter)
	}
	return e
}

// Calendar returns the calendar the engine replays on.
func (e *Engine) Calendar() *calendar.Calendar { return e.cal }

// Registry returns the instruments the engine accepts.
func (e *Engine) Registry() *instrument.Registry { return e.registry }

func (e *Engine) Pricing() PricingConfig { return e.pricing }

// prepare validates everything that does not need market data.
func (e *Engine) prepare(params StrategyParams) (StrategyParams, instrument.Spec, *DaySimulator, error) {
	p, err := params.Normalize()
	if err != nil {
		return p, instrument.Spec{}, nil, err
	}

	spec, ok := e.registry.Lookup(p.Index)
	if !ok {
		return p, spec, nil, fmt.Errorf("%w: unknown index %q (known: %v)", ErrInvalidParams, p.Index, e.registry.Names())
	}

	sim, err := NewDaySimulator(p, spec, e.cal, e.pricing, e.quoter)
	if err != nil {
		return p, spec, nil, err
	}
	return p, spec, sim, nil
}

// Run replays params over every business day in its range, one day at a
// time, and returns the aggregated report.
func (e *Engine) Run(ctx context.Context, params StrategyParams) (*Report, error) {
	p, spec, sim, err := e.prepare(params)
	if err != nil {
		e.opts.Metrics.RunFinished(telemetry.RunRejected)
		return nil, err
	}

	days := e.cal.BusinessDays(p.StartDate, p.EndDate)
	report := &Report{
		RunID:         uuid.NewString(),
		Params:        p,
		Trades:        []Trade{},
		DaysRequested: len(days),
		StartedAt:     e.opts.Now(),
	}
	logger.Infof("event=run_start run=%s strategy=%q from=%s to=%s days=%d",
		report.RunID, sim, p.StartDate, p.EndDate, len(days))

	var ledger Ledger
	for _, day := range days {
		d := calendar.DateOf(day)

		candles, err := e.fetchDay(ctx, spec, d)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.opts.Metrics.RunFinished(telemetry.RunFailed)
				return nil, ctxErr
			}
			if e.opts.SkipFailedDays {
				logger.Warnf("event=day_skipped run=%s date=%s err=%v", report.RunID, d, err)
				e.opts.Metrics.DayProcessed(telemetry.DayFailed)
				report.DaysSkipped++
				continue
			}
			logger.Errorf("event=run_failed run=%s date=%s err=%v", report.RunID, d, err)
			e.opts.Metrics.RunFinished(telemetry.RunFailed)
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailure, d, err)
		}

		if len(candles) == 0 {
			logger.Debugf("event=day_empty run=%s date=%s", report.RunID, d)
			e.opts.Metrics.DayProcessed(telemetry.DayEmpty)
			report.DaysSkipped++
			continue
		}
		report.DaysWithData++

		trade, err := sim.Simulate(ctx, candles)
		if err != nil {
			e.opts.Metrics.RunFinished(telemetry.RunFailed)
			if errors.Is(err, ErrInvalidStrikeRule) {
				return nil, err
			}
			return nil, fmt.Errorf("simulate %s: %w", d, err)
		}
		if trade == nil {
			e.opts.Metrics.DayProcessed(telemetry.DayNoEntry)
			continue
		}

		ledger.Record(trade.PnL)
		report.Trades = append(report.Trades, *trade)
		e.opts.Metrics.DayProcessed(telemetry.DayTraded)
		e.opts.Metrics.TradeClosed(string(trade.ExitReason))
	}

	s := ledger.Summary()
	report.TotalPnL = s.TotalPnL
	report.Wins = s.Wins
	report.Losses = s.Losses
	report.WinRate = s.WinRate
	report.MaxDrawdown = s.MaxDrawdown
	report.TotalTrades = s.TotalTrades
	report.FinishedAt = e.opts.Now()

	e.opts.Metrics.RunFinished(telemetry.RunOK)
	logger.Infof("event=run_done run=%s trades=%d pnl=%.2f win_rate=%.1f max_dd=%.2f skipped=%d",
		report.RunID, report.TotalTrades, report.TotalPnL, report.WinRate, report.MaxDrawdown, report.DaysSkipped)
	return report, nil
}

// fetchDay waits on the throttle and loads one session of minute candles.
func (e *Engine) fetchDay(ctx context.Context, spec instrument.Spec, d calendar.Date) ([]data.Candle, error) {
	if err := e.opts.Throttle.Wait(ctx); err != nil {
		return nil, err
	}

	from, to := e.cal.SessionBounds(d)
	start := time.Now()
	candles, err := e.provider.GetCandles(ctx, spec.Exchange, spec.Token, data.OneMinute, from, to)
	e.opts.Metrics.ObserveFetch(time.Since(start))
	if err != nil {
		return nil, err
	}

	logger.Tracef("event=day_fetched date=%s candles=%d took=%s", d, len(candles), time.Since(start))
	return candles, nil
}
