package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/pricing"
)

func TestLocalCSV_MissingDayIsEmpty(t *testing.T) {
	p := NewLocalCSVProvider(t.TempDir())
	start, end := testDateRange()

	cs, err := p.GetCandles(context.Background(), "NSE", "99926000", OneMinute, start, end)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestLocalCSV_ParsesZonedTimestamps(t *testing.T) {
	dir := t.TempDir()
	writeDay(t, dir, "99926000",
		"2025-01-06T09:15:00+05:30,22000,22010,21990,22005,10\n"+
			"2025-01-06T03:46:00Z,22005,22020,22000,22018,12\n")

	start, end := testDateRange()
	cs, err := NewLocalCSVProvider(dir).GetCandles(context.Background(), "NSE", "99926000", OneMinute, start, end)
	require.NoError(t, err)
	require.Len(t, cs, 2)

	assert.Equal(t, calendar.Clock{Hour: 9, Minute: 16}, calendar.ClockOf(cs[1].Time))
	assert.Equal(t, calendar.IST, cs[1].Time.Location())
	assert.Equal(t, Candle{Time: start, Open: 22000, High: 22010, Low: 21990, Close: 22005, Volume: 10}, cs[0])
}

func TestLocalCSV_WindowFiltersRows(t *testing.T) {
	dir := t.TempDir()
	writeDay(t, dir, "99926000",
		"2025-01-06 09:00,1,1,1,1,1\n"+
			"2025-01-06 09:15,2,2,2,2,2\n"+
			"2025-01-06 15:45,3,3,3,3,3\n")

	start, end := testDateRange()
	cs, err := NewLocalCSVProvider(dir).GetCandles(context.Background(), "NSE", "99926000", OneMinute, start, end)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, 2.0, cs[0].Open)
}

func TestLocalCSV_MalformedRows(t *testing.T) {
	cases := map[string]string{
		"short row":     "2025-01-06 09:15,1,2,3\n",
		"bad number":    "2025-01-06 09:15,1,x,3,4,5\n",
		"bad timestamp": "06/01/2025 09:15,1,2,3,4,5\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeDay(t, dir, "99926000", body)

			start, end := testDateRange()
			_, err := NewLocalCSVProvider(dir).GetCandles(context.Background(), "NSE", "99926000", OneMinute, start, end)
			assert.Error(t, err)
		})
	}
}

func TestLocalCSV_QuoteOption(t *testing.T) {
	dir := t.TempDir()
	expiry := time.Date(2025, 1, 7, 15, 30, 0, 0, calendar.IST)
	sym := TradingSymbol("NIFTY", expiry, 22000, pricing.Call)

	path := filepath.Join(dir, "options", sym, "2025-01-06.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(
		"timestamp,open,high,low,close,volume\n"+
			"2025-01-06 09:18,120,121,119,120.5,10\n"+
			"2025-01-06 09:19,120.5,122,120,121.25,10\n"+
			"2025-01-06 09:40,110,111,109,110.5,10\n"), 0o644))

	p := NewLocalCSVProvider(dir)
	req := OptionRequest{
		Underlying: "NIFTY",
		Strike:     22000,
		Expiry:     expiry,
		Class:      pricing.Call,
		At:         time.Date(2025, 1, 6, 9, 20, 0, 0, calendar.IST),
	}

	q, err := p.QuoteOption(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 121.25, q)

	req.At = time.Date(2025, 1, 6, 9, 36, 0, 0, calendar.IST)
	q, err = p.QuoteOption(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 110.0, q)

	req.At = time.Date(2025, 1, 6, 12, 0, 0, 0, calendar.IST)
	_, err = p.QuoteOption(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoQuote)

	req.Class = pricing.Put
	_, err = p.QuoteOption(context.Background(), req)
	assert.ErrorIs(t, err, ErrNoQuote)
}
