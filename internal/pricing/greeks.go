package pricing

import (
	"fmt"
	"math"
)

// Greeks are first and second order sensitivities of one option.
type Greeks struct {
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
	Theta      float64 `json:"theta"` // per calendar day
	Vega       float64 `json:"vega"`  // per 1 vol point
	Volatility float64 `json:"volatility"`
}

// ComputeGreeks returns the Black-Scholes greeks for in.
// At expiry delta is the intrinsic step and the rest are zero.
func ComputeGreeks(in Inputs) Greeks {
	g := Greeks{Volatility: in.Volatility}

	if in.T <= 0 {
		switch {
		case in.Class.IsCall() && in.Spot > in.Strike:
			g.Delta = 1
		case !in.Class.IsCall() && in.Spot < in.Strike:
			g.Delta = -1
		}
		return g
	}

	d1, d2 := dTerms(in)
	sqrtT := math.Sqrt(in.T)
	pdf := NormPDF(d1)
	disc := in.Strike * math.Exp(-in.Rate*in.T)
	decay := -in.Spot * pdf * in.Volatility / (2 * sqrtT)

	if in.Class.IsCall() {
		g.Delta = NormCDF(d1)
		g.Theta = (decay - in.Rate*disc*NormCDF(d2)) / 365
	} else {
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + in.Rate*disc*NormCDF(-d2)) / 365
	}
	g.Gamma = pdf / (in.Spot * in.Volatility * sqrtT)
	g.Vega = in.Spot * pdf * sqrtT / 100
	return g
}

// StrikeFromDelta inverts the delta formula: it returns the strike whose
// Black-Scholes delta equals target. Put deltas may be given as negative or
// as their absolute value.
func StrikeFromDelta(spot, target, T, r, vol float64, class Class) (float64, error) {
	if T <= 0 || vol <= 0 {
		return 0, fmt.Errorf("strike from delta: need T>0 and vol>0 (T=%g vol=%g)", T, vol)
	}

	p := target
	if !class.IsCall() {
		// N(d1) = delta + 1 for puts
		p = 1 - math.Abs(target)
	}
	if p <= 0 || p >= 1 {
		return 0, fmt.Errorf("strike from delta: delta %g out of range", target)
	}

	d1 := NormInv(p)
	volSqrtT := vol * math.Sqrt(T)
	return spot * math.Exp(-(d1*volSqrtT - (r+0.5*vol*vol)*T)), nil
}
