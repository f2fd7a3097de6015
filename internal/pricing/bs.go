package pricing

import (
	"math"
	"time"
)

const sqrt2Pi = 2.5066282746310002

// yearLength is the day count used to convert wall-clock time to years.
const yearLength = 365.25 * 24 * time.Hour

// Class identifies a call or a put.
type Class string

const (
	Call Class = "CALL"
	Put  Class = "PUT"
)

// IsCall reports whether c is a call. Anything that is not a call prices as a put.
func (c Class) IsCall() bool { return c == Call }

// Inputs carries everything the Black-Scholes formula needs.
type Inputs struct {
	Spot       float64 `json:"spot"`
	Strike     float64 `json:"strike"`
	T          float64 `json:"t"` // years to expiry
	Volatility float64 `json:"volatility"`
	Rate       float64 `json:"rate"`
	Class      Class   `json:"class"`
}

// Breakdown is the intermediate state of one Black-Scholes evaluation.
// For a put, ND1 and ND2 hold N(-d1) and N(-d2), and Term1/Term2 are the
// discounted strike term and the spot term in that order.
type Breakdown struct {
	Inputs
	Price float64 `json:"price"`
	D1    float64 `json:"d1"`
	D2    float64 `json:"d2"`
	ND1   float64 `json:"nd1"`
	ND2   float64 `json:"nd2"`
	Term1 float64 `json:"term1"`
	Term2 float64 `json:"term2"`
}

// Price returns the theoretical European option price.
//
// When T is zero or negative the intrinsic value is returned:
// max(0, S-K) for a call, max(0, K-S) for a put.
func Price(in Inputs) float64 {
	if in.T <= 0 {
		return Intrinsic(in.Spot, in.Strike, in.Class)
	}

	d1, d2 := dTerms(in)
	disc := in.Strike * math.Exp(-in.Rate*in.T)

	if in.Class.IsCall() {
		return in.Spot*NormCDF(d1) - disc*NormCDF(d2)
	}
	return disc*NormCDF(-d2) - in.Spot*NormCDF(-d1)
}

// Details evaluates the formula and returns every intermediate term.
// At expiry the d-terms are zero and Price is intrinsic.
func Details(in Inputs) Breakdown {
	b := Breakdown{Inputs: in}
	if in.T <= 0 {
		b.Price = Intrinsic(in.Spot, in.Strike, in.Class)
		return b
	}

	b.D1, b.D2 = dTerms(in)
	disc := in.Strike * math.Exp(-in.Rate*in.T)

	if in.Class.IsCall() {
		b.ND1 = NormCDF(b.D1)
		b.ND2 = NormCDF(b.D2)
		b.Term1 = in.Spot * b.ND1
		b.Term2 = disc * b.ND2
	} else {
		b.ND1 = NormCDF(-b.D1)
		b.ND2 = NormCDF(-b.D2)
		b.Term1 = disc * b.ND2
		b.Term2 = in.Spot * b.ND1
	}
	b.Price = b.Term1 - b.Term2
	return b
}

// Intrinsic is the exercise value of the option right now.
func Intrinsic(spot, strike float64, class Class) float64 {
	if class.IsCall() {
		return math.Max(0, spot-strike)
	}
	return math.Max(0, strike-spot)
}

// Vega is the raw sensitivity of price to volatility (per 1.00 of vol).
// Returns 0 at or after expiry.
func Vega(in Inputs) float64 {
	if in.T <= 0 {
		return 0
	}
	d1, _ := dTerms(in)
	return in.Spot * NormPDF(d1) * math.Sqrt(in.T)
}

// YearsBetween converts the interval from..to into years of 365.25 days.
// Negative intervals clamp to 0.
func YearsBetween(from, to time.Time) float64 {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(yearLength)
}

func dTerms(in Inputs) (d1, d2 float64) {
	volSqrtT := in.Volatility * math.Sqrt(in.T)
	d1 = (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Volatility*in.Volatility)*in.T) / volSqrtT
	d2 = d1 - volSqrtT
	return d1, d2
}

// NormPDF is the standard normal density exp(-x²/2)/√(2π).
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

// Abramowitz & Stegun 26.2.17 coefficients.
const (
	asP  = 0.2316419
	asB1 = 0.319381530
	asB2 = -0.356563782
	asB3 = 1.781477937
	asB4 = -1.821255978
	asB5 = 1.330274429
)

// NormCDF approximates the standard normal cumulative distribution using the
// Abramowitz & Stegun 26.2.17 rational approximation. Absolute error is below 7.5e-8.
func NormCDF(x float64) float64 {
	k := 1 / (1 + asP*math.Abs(x))
	poly := k * (asB1 + k*(asB2+k*(asB3+k*(asB4+k*asB5))))
	tail := NormPDF(x) * poly
	if x >= 0 {
		return 1 - tail
	}
	return tail
}

// NormInv computes the inverse of the standard normal cumulative distribution function (quantile function).
// It returns the value x such that the cumulative probability at x equals p.
//
// The function uses Acklam's rational approximation with a tail split at 0.02425.
//
// Panics:
//
//	If p is not strictly between 0 and 1.
//
// Example:
//
//	NormInv(0.975) // Returns approximately 1.96
//	NormInv(0.025) // Returns approximately -1.96
func NormInv(p float64) float64 {
	if p <= 0 || p >= 1 {
		panic("NormInv: p must be in (0,1)")
	}

	a := [...]float64{
		-3.969683028665376e+01,
		2.209460984245205e+02,
		-2.759285104469687e+02,
		1.383577518672690e+02,
		-3.066479806614716e+01,
		2.506628277459239e+00,
	}
	b := [...]float64{
		-5.447609879822406e+01,
		1.615858368580409e+02,
		-1.556989798598866e+02,
		6.680131188771972e+01,
		-1.328068155288572e+01,
	}
	c := [...]float64{
		-7.784894002430293e-03,
		-3.223964580411365e-01,
		-2.400758277161838e+00,
		-2.549732539343734e+00,
		4.374664141464968e+00,
		2.938163982698783e+00,
	}
	d := [...]float64{
		7.784695709041462e-03,
		3.224671290700398e-01,
		2.445134137142996e+00,
		3.754408661907416e+00,
	}

	const plow = 0.02425

	tail := func(q float64) float64 {
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}

	switch {
	case p < plow:
		return tail(math.Sqrt(-2 * math.Log(p)))
	case p > 1-plow:
		return -tail(math.Sqrt(-2 * math.Log(1-p)))
	}

	q := p - 0.5
	r := q * q
	return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
		(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
}
