package pricing

import "math"

// Newton-Raphson solver limits.
const (
	ivInitial   = 0.5
	ivMaxIter   = 20
	ivTolerance = 1e-4
	ivMinVega   = 1e-5
	ivFloor     = 0.001
	ivCeiling   = 10.0
)

// DefaultNoiseFloor is the smallest observed premium worth solving for.
const DefaultNoiseFloor = 0.05

// VolSource says where a volatility figure came from.
type VolSource string

const (
	VolAssumed VolSource = "assumed"
	VolImplied VolSource = "implied"
)

// IVResult is the solver's estimate plus convergence evidence.
type IVResult struct {
	Volatility float64 `json:"volatility"`
	Iterations int     `json:"iterations"`
	Residual   float64 `json:"residual"` // observed - model at the returned volatility
	Converged  bool    `json:"converged"`
}

// SolveIV finds the volatility at which the model price matches observed.
// It always returns a value in [0.001, 10]; on non-convergence that is the
// last clamped estimate.
func SolveIV(observed, spot, strike, T, r float64, class Class) float64 {
	return SolveIVResult(observed, spot, strike, T, r, class).Volatility
}

// SolveIVResult is SolveIV with iteration diagnostics.
func SolveIVResult(observed, spot, strike, T, r float64, class Class) IVResult {
	in := Inputs{Spot: spot, Strike: strike, T: T, Rate: r, Class: class, Volatility: ivInitial}
	res := IVResult{Volatility: ivInitial}

	for i := 0; i < ivMaxIter; i++ {
		res.Residual = observed - Price(in)
		if math.Abs(res.Residual) < ivTolerance {
			res.Converged = true
			break
		}

		vega := Vega(in)
		if math.Abs(vega) < ivMinVega {
			break
		}

		in.Volatility = clampVol(in.Volatility + res.Residual/vega)
		res.Iterations = i + 1
	}

	res.Volatility = in.Volatility
	if !res.Converged {
		res.Residual = observed - Price(in)
		res.Converged = math.Abs(res.Residual) < ivTolerance
	}
	return res
}

// VolatilityFor chooses the volatility for a pricing run. An observed premium
// above noiseFloor with time left is converted to implied volatility;
// anything else falls back to the assumed figure.
func VolatilityFor(observed, fallback, noiseFloor, spot, strike, T, r float64, class Class) (float64, VolSource) {
	if observed > noiseFloor && T > 0 {
		return SolveIV(observed, spot, strike, T, r, class), VolImplied
	}
	return fallback, VolAssumed
}

func clampVol(v float64) float64 {
	return math.Min(ivCeiling, math.Max(ivFloor, v))
}
