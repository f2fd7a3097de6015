package data

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/contactkeval/index-replay/internal/logger"
	"github.com/contactkeval/index-replay/internal/pricing"
)

// SyntheticConfig tunes the random walk.
type SyntheticConfig struct {
	Seed         int64
	BasePrice    map[string]float64 // by token; missing tokens start at DefaultBase
	DefaultBase  float64
	MinuteVol    float64 // stddev of one-minute log return
	OptionVol    float64 // volatility used to manufacture option quotes; 0 picks one per day
	RiskFreeRate float64
	SessionOpen  time.Duration // offset from midnight
	SessionClose time.Duration
	Holiday      func(day time.Time) bool // closed weekdays; nil means none
}

// SyntheticProvider generates seeded minute bars. The same seed, token and
// day always produce the same series.
type SyntheticProvider struct {
	cfg SyntheticConfig
}

var _ OptionQuoter = (*SyntheticProvider)(nil)

// NewSyntheticProvider builds a deterministic random-walk provider.
func NewSyntheticProvider(cfg SyntheticConfig) *SyntheticProvider {
	if cfg.DefaultBase <= 0 {
		cfg.DefaultBase = 22000
	}
	if cfg.MinuteVol <= 0 {
		cfg.MinuteVol = 0.0004
	}
	if cfg.SessionOpen == 0 {
		cfg.SessionOpen = 9*time.Hour + 15*time.Minute
	}
	if cfg.SessionClose == 0 {
		cfg.SessionClose = 15*time.Hour + 30*time.Minute
	}
	logger.Infof("event=provider_init kind=synthetic seed=%d", cfg.Seed)
	return &SyntheticProvider{cfg: cfg}
}

func (p *SyntheticProvider) rng(token string, day time.Time) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	_, _ = h.Write([]byte(day.Format("2006-01-02")))
	return rand.New(rand.NewSource(p.cfg.Seed ^ int64(h.Sum64())))
}

func (p *SyntheticProvider) base(token string) float64 {
	if b, ok := p.cfg.BasePrice[token]; ok && b > 0 {
		return b
	}
	return p.cfg.DefaultBase
}

// GetCandles returns one-minute bars for each weekday session intersecting
// [from, to], skipping holidays. Wider intervals are not aggregated.
func (p *SyntheticProvider) GetCandles(ctx context.Context, exchange, token string, interval Interval, from, to time.Time) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc := from.Location()
	var out []Candle
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	for day := start; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !p.tradingDay(day) {
			continue
		}
		out = append(out, Window(p.session(token, day), from, to)...)
	}

	logger.Tracef("event=synthetic_candles token=%s interval=%s from=%s to=%s count=%d",
		token, interval, from.Format(time.RFC3339), to.Format(time.RFC3339), len(out))
	return out, nil
}

func (p *SyntheticProvider) tradingDay(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return p.cfg.Holiday == nil || !p.cfg.Holiday(day)
}

// session builds one day's bars from open until one minute before close.
func (p *SyntheticProvider) session(token string, day time.Time) []Candle {
	r := p.rng(token, day)
	// drift the opening level a little per day so days differ
	price := p.base(token) * math.Exp(r.NormFloat64()*0.01)

	open := day.Add(p.cfg.SessionOpen)
	closeAt := day.Add(p.cfg.SessionClose)

	var out []Candle
	for ts := open; ts.Before(closeAt); ts = ts.Add(time.Minute) {
		o := price
		c := o * math.Exp(r.NormFloat64()*p.cfg.MinuteVol)
		wick := math.Abs(r.NormFloat64()) * p.cfg.MinuteVol * o * 0.5
		out = append(out, Candle{
			Time:   ts,
			Open:   round2(o),
			High:   round2(math.Max(o, c) + wick),
			Low:    round2(math.Min(o, c) - wick),
			Close:  round2(c),
			Volume: float64(1000 + r.Intn(5000)),
		})
		price = c
	}
	return out
}

// DayVolatility is the volatility the provider prices options with on day.
func (p *SyntheticProvider) DayVolatility(token string, day time.Time) float64 {
	if p.cfg.OptionVol > 0 {
		return p.cfg.OptionVol
	}
	// separate stream from the candles so quotes do not disturb the walk
	r := p.rng("vol:"+token, day)
	return 0.10 + 0.15*r.Float64()
}

// QuoteOption manufactures a premium with Black-Scholes at the day's
// volatility, rounded to the exchange tick of 0.05.
func (p *SyntheticProvider) QuoteOption(ctx context.Context, req OptionRequest) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if req.Spot <= 0 || req.Strike <= 0 {
		return 0, ErrNoQuote
	}

	vol := p.DayVolatility(req.Underlying, req.At)
	premium := pricing.Price(pricing.Inputs{
		Spot:       req.Spot,
		Strike:     req.Strike,
		T:          pricing.YearsBetween(req.At, req.Expiry),
		Volatility: vol,
		Rate:       p.cfg.RiskFreeRate,
		Class:      req.Class,
	})
	return math.Round(premium*20) / 20, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
