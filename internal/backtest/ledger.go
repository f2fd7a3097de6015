package backtest

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Ledger accumulates trade P&L in exact decimal arithmetic.
// Peak starts at zero, so an opening loss already counts as drawdown.
type Ledger struct {
	count       int
	wins        int
	losses      int
	cumulative  decimal.Decimal
	peak        decimal.Decimal
	drawdown    decimal.Decimal
	maxDrawdown decimal.Decimal
}

// Summary is the rounded view of a ledger.
type Summary struct {
	TotalPnL    float64
	Wins        int
	Losses      int
	WinRate     float64 // percent, 1 dp
	MaxDrawdown float64
	TotalTrades int
}

// Record books one trade. A zero P&L counts as a loss.
func (l *Ledger) Record(pnl float64) {
	v := decimal.NewFromFloat(pnl)

	l.count++
	if v.IsPositive() {
		l.wins++
	} else {
		l.losses++
	}

	l.cumulative = l.cumulative.Add(v)
	if l.cumulative.GreaterThan(l.peak) {
		l.peak = l.cumulative
	}
	l.drawdown = l.peak.Sub(l.cumulative)
	if l.drawdown.GreaterThan(l.maxDrawdown) {
		l.maxDrawdown = l.drawdown
	}
}

// Peak is the running high-water mark of cumulative P&L.
func (l *Ledger) Peak() float64 { return l.peak.InexactFloat64() }

// Drawdown is the current distance below the peak.
func (l *Ledger) Drawdown() float64 { return l.drawdown.InexactFloat64() }

func (l *Ledger) Summary() Summary {
	s := Summary{
		TotalPnL:    l.cumulative.Round(2).InexactFloat64(),
		Wins:        l.wins,
		Losses:      l.losses,
		MaxDrawdown: l.maxDrawdown.Round(2).InexactFloat64(),
		TotalTrades: l.count,
	}
	if l.count > 0 {
		s.WinRate = decimal.NewFromInt(int64(l.wins)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(l.count))).
			Round(1).
			InexactFloat64()
	}
	return s
}
