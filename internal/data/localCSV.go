package data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/contactkeval/index-replay/internal/logger"
)

// timestamp layouts accepted in candle files, tried in order
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// LocalCSVProvider reads candles from a directory tree:
//
//	<dir>/<token>/<YYYY-MM-DD>.csv            index candles
//	<dir>/options/<TRADINGSYMBOL>/<YYYY-MM-DD>.csv   option candles
//
// Each file holds rows of timestamp,open,high,low,close,volume with an
// optional header. Timestamps without a zone are read in the request's location.
type LocalCSVProvider struct {
	dir string
}

var _ OptionQuoter = (*LocalCSVProvider)(nil)

// NewLocalCSVProvider convenience constructor.
func NewLocalCSVProvider(dir string) *LocalCSVProvider {
	logger.Infof("event=provider_init kind=csv dir=%s", dir)
	return &LocalCSVProvider{dir: dir}
}

// GetCandles loads every day file between from and to. A missing file is a
// day without data, not an error.
func (p *LocalCSVProvider) GetCandles(ctx context.Context, exchange, token string, interval Interval, from, to time.Time) ([]Candle, error) {
	if interval != OneMinute && interval != "" {
		logger.Debugf("event=csv_interval_ignored interval=%s", interval)
	}
	return p.load(ctx, filepath.Join(p.dir, token), from, to)
}

// QuoteOption looks the contract up under options/ by trading symbol.
func (p *LocalCSVProvider) QuoteOption(ctx context.Context, req OptionRequest) (float64, error) {
	sym := TradingSymbol(req.Underlying, req.Expiry, req.Strike, req.Class)
	day := time.Date(req.At.Year(), req.At.Month(), req.At.Day(), 0, 0, 0, 0, req.At.Location())

	cs, err := p.load(ctx, filepath.Join(p.dir, "options", sym), day, day.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		return 0, err
	}

	price, ok := PriceAt(cs, req.At, 5*time.Minute, 5*time.Minute)
	if !ok {
		return 0, fmt.Errorf("%w: %s at %s", ErrNoQuote, sym, req.At.Format("2006-01-02 15:04"))
	}
	return price, nil
}

func (p *LocalCSVProvider) load(ctx context.Context, dir string, from, to time.Time) ([]Candle, error) {
	loc := from.Location()
	var out []Candle

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for day := start; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, day.Format("2006-01-02")+".csv")
		cs, err := readCandleFile(path, loc)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Tracef("event=csv_missing path=%s", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}

	SortCandles(out)
	return Window(out, from, to), nil
}

func readCandleFile(path string, loc *time.Location) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []Candle
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(row) < 5 {
			return nil, fmt.Errorf("%s:%d: want at least 5 columns, got %d", path, line, len(row))
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "timestamp") {
			continue
		}

		c, err := parseCandleRow(row, loc)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCandleRow(row []string, loc *time.Location) (Candle, error) {
	ts, err := parseTimestamp(strings.TrimSpace(row[0]), loc)
	if err != nil {
		return Candle{}, err
	}

	nums := make([]float64, 5)
	for i := 1; i < len(row) && i <= 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return Candle{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		nums[i-1] = v
	}

	return Candle{Time: ts, Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3], Volume: nums[4]}, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range csvTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
