// Package report persists backtest results as JSON and CSV and renders a
// human summary.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/contactkeval/index-replay/internal/backtest"
)

const (
	JSONFile = "report.json"
	CSVFile  = "trades.csv"
)

var csvHeader = []string{
	"date", "signal", "symbol", "strike",
	"entry_time", "entry_spot", "entry_premium",
	"exit_time", "exit_spot", "exit_premium", "exit_reason",
	"spot_move", "points", "pnl", "lots", "trade_type",
	"volatility", "vol_source",
}

// Write stores rep under outdir/<run id>/ and returns that directory.
func Write(rep *backtest.Report, outdir string) (string, error) {
	dir := filepath.Join(outdir, rep.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := WriteJSON(rep, dir); err != nil {
		return "", fmt.Errorf("write %s: %w", JSONFile, err)
	}
	if err := WriteCSV(rep.Trades, dir); err != nil {
		return "", fmt.Errorf("write %s: %w", CSVFile, err)
	}
	return dir, nil
}

func WriteJSON(rep *backtest.Report, outdir string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, JSONFile), b, 0o644)
}

func WriteCSV(trades []backtest.Trade, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, CSVFile))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := EncodeCSV(f, trades); err != nil {
		return err
	}
	return f.Close()
}

// EncodeCSV writes one row per trade. Times are HH:MM in the trade's zone.
func EncodeCSV(w io.Writer, trades []backtest.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Date.String(),
			t.Signal,
			t.Symbol,
			num(t.Strike, 0),
			t.EntryTime.Format("15:04"),
			num(t.EntrySpot, 2),
			num(t.EntryPremium, 2),
			t.ExitTime.Format("15:04"),
			num(t.ExitSpot, 2),
			num(t.ExitPremium, 2),
			string(t.ExitReason),
			num(t.SpotMove, 2),
			num(t.Points, 2),
			num(t.PnL, 2),
			strconv.Itoa(t.Lots),
			string(t.TradeType),
			num(t.Diagnostics.Volatility, 4),
			string(t.Diagnostics.VolSource),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Summary prints the headline numbers of rep using tag's number grouping.
func Summary(w io.Writer, rep *backtest.Report, tag language.Tag) {
	p := message.NewPrinter(tag)
	params := rep.Params

	p.Fprintf(w, "Run %s\n", rep.RunID)
	p.Fprintf(w, "  %s %s %s  %s to %s  entry %s exit %s\n",
		params.Index, params.Signal(), params.StrikeRule,
		params.StartDate, params.EndDate, params.EntryTime, params.ExitTime)
	p.Fprintf(w, "  days: %d requested, %d with data, %d skipped\n",
		rep.DaysRequested, rep.DaysWithData, rep.DaysSkipped)
	p.Fprintf(w, "  trades: %d  wins: %d  losses: %d  win rate: %.1f%%\n",
		rep.TotalTrades, rep.Wins, rep.Losses, rep.WinRate)
	p.Fprintf(w, "  total P&L: %.2f  max drawdown: %.2f\n", rep.TotalPnL, rep.MaxDrawdown)
	if !rep.FinishedAt.IsZero() {
		p.Fprintf(w, "  took %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	}
}
