package backtest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/contactkeval/index-replay/internal/instrument"
	"github.com/contactkeval/index-replay/internal/logger"
	"github.com/contactkeval/index-replay/internal/pricing"
)

type strikeKind int

const (
	strikeATM strikeKind = iota
	strikeOffset
	strikePercent
	strikeDelta
	strikeExpr
)

// StrikeRule is a parsed strike expression. Supported formats:
//   - ATM
//   - ATM:+100, ATM:-50 (points)
//   - ATM:+1%, ATM:-0.5% (percent of spot)
//   - DELTA:0.3 (strike whose delta matches, at the day's volatility)
//   - arithmetic over {SPOT} and {STEP}, e.g. {SPOT}+2*{STEP}
//
// Every result is rounded to the instrument's strike step.
type StrikeRule struct {
	raw   string
	kind  strikeKind
	value float64
	expr  *govaluate.EvaluableExpression
}

// StrikeContext is what a rule needs to resolve on a given bar.
type StrikeContext struct {
	Spot       float64
	T          float64
	Rate       float64
	Volatility float64
	Class      pricing.Class
}

// ParseStrikeRule validates a rule up front so a bad rule fails the run
// before any data is fetched.
func ParseStrikeRule(rule string) (StrikeRule, error) {
	raw := strings.ToUpper(strings.TrimSpace(rule))
	if raw == "" {
		raw = "ATM"
	}
	r := StrikeRule{raw: raw}

	switch {
	case raw == "ATM":
		r.kind = strikeATM
		return r, nil

	case strings.HasPrefix(raw, "ATM:"):
		off := strings.TrimPrefix(raw, "ATM:")
		r.kind = strikeOffset
		if strings.HasSuffix(off, "%") {
			r.kind = strikePercent
			off = strings.TrimSuffix(off, "%")
		}
		v, err := strconv.ParseFloat(off, 64)
		if err != nil {
			return r, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeRule, rule, err)
		}
		r.value = v
		return r, nil

	case strings.HasPrefix(raw, "DELTA:"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(raw, "DELTA:"), 64)
		if err != nil {
			return r, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeRule, rule, err)
		}
		if v == 0 || v <= -1 || v >= 1 {
			return r, fmt.Errorf("%w: %s: delta must be in (-1, 1) and non-zero", ErrInvalidStrikeRule, rule)
		}
		r.kind = strikeDelta
		r.value = v
		return r, nil

	case strings.Contains(raw, "{"):
		return parseStrikeExpr(rule, raw)
	}

	return r, fmt.Errorf("%w: %s", ErrInvalidStrikeRule, rule)
}

func parseStrikeExpr(rule, raw string) (StrikeRule, error) {
	r := StrikeRule{raw: raw, kind: strikeExpr}

	src := strings.NewReplacer("{SPOT}", "SPOT", "{STEP}", "STEP").Replace(raw)
	if strings.ContainsAny(src, "{}") {
		return r, fmt.Errorf("%w: %s: only {SPOT} and {STEP} are known", ErrInvalidStrikeRule, rule)
	}

	expr, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return r, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeRule, rule, err)
	}
	for _, v := range expr.Vars() {
		if v != "SPOT" && v != "STEP" {
			return r, fmt.Errorf("%w: %s: unknown variable %s", ErrInvalidStrikeRule, rule, v)
		}
	}

	r.expr = expr
	return r, nil
}

func (r StrikeRule) String() string { return r.raw }

// CheckClass rejects rules that can never resolve for class. Call deltas
// are positive; put deltas may carry either sign.
func (r StrikeRule) CheckClass(class pricing.Class) error {
	if r.kind == strikeDelta && class.IsCall() && r.value < 0 {
		return fmt.Errorf("%w: %s: call delta must be positive", ErrInvalidStrikeRule, r.raw)
	}
	return nil
}

// Resolve turns the rule into a strike for spec at the given context.
func (r StrikeRule) Resolve(spec instrument.Spec, sc StrikeContext) (float64, error) {
	target := sc.Spot

	switch r.kind {
	case strikeOffset:
		target = sc.Spot + r.value
	case strikePercent:
		target = sc.Spot * (1 + r.value/100)
	case strikeDelta:
		k, err := pricing.StrikeFromDelta(sc.Spot, r.value, sc.T, sc.Rate, sc.Volatility, sc.Class)
		if err != nil {
			// at expiry delta is a step function; fall back to ATM
			logger.Warnf("event=delta_strike_fallback rule=%s err=%v", r.raw, err)
			break
		}
		target = k
	case strikeExpr:
		out, err := r.expr.Evaluate(map[string]any{"SPOT": sc.Spot, "STEP": spec.StrikeStep})
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidStrikeRule, r.raw, err)
		}
		f, ok := out.(float64)
		if !ok {
			return 0, fmt.Errorf("%w: %s: result %v is not a number", ErrInvalidStrikeRule, r.raw, out)
		}
		target = f
	}

	strike := spec.RoundToStrike(target)
	if strike <= 0 {
		return 0, fmt.Errorf("%w: %s resolved to non-positive strike %.2f", ErrInvalidStrikeRule, r.raw, strike)
	}

	logger.Tracef("event=strike_resolved rule=%s spot=%.2f target=%.2f strike=%.0f", r.raw, sc.Spot, target, strike)
	return strike, nil
}
