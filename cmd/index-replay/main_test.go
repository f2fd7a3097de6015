package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/index-replay/internal/backtest"
	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/config"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/pricing"
)

func defaultFlags() flags {
	return flags{
		index: "nifty", start: "2025-01-06", entry: "09:20", exit: "15:15",
		lots: 1, class: "ce", position: "BUY", strike: "ATM",
	}
}

func TestFlagsParams(t *testing.T) {
	p, err := defaultFlags().params()
	require.NoError(t, err)

	n, err := p.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "NIFTY", string(n.Index))
	assert.Equal(t, pricing.Call, n.OptionType)
	assert.Equal(t, backtest.Long, n.Position)
	assert.Equal(t, calendar.MustDate("2025-01-06"), n.EndDate)
	assert.Equal(t, calendar.MustClock("15:15"), n.ExitTime)
}

func TestFlagsParams_Errors(t *testing.T) {
	f := defaultFlags()
	f.start = ""
	_, err := f.params()
	assert.Error(t, err)

	f = defaultFlags()
	f.entry = "9.20"
	_, err = f.params()
	assert.ErrorContains(t, err, "-entry")

	f = defaultFlags()
	f.end = "06-01-2025"
	_, err = f.params()
	assert.ErrorContains(t, err, "-end")
}

func TestBuildProvider(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cal := cfg.BuildCalendar()

	for _, kind := range []string{config.ProviderSynthetic, config.ProviderCSV, config.ProviderSmartAPI} {
		cfg.Provider.Kind = kind
		prov, err := buildProvider(cfg, cal)
		require.NoError(t, err, kind)
		assert.NotNil(t, prov, kind)
	}

	cfg.Provider.Kind = config.ProviderSynthetic
	prov, err := buildProvider(cfg, cal)
	require.NoError(t, err)
	_, quotes := prov.(data.OptionQuoter)
	assert.True(t, quotes)

	// configured holidays yield no synthetic bars
	mayDay := calendar.MustDate("2025-05-01")
	from, to := cal.SessionBounds(mayDay)
	candles, err := prov.GetCandles(context.Background(), "NSE", "99926000", data.OneMinute, from, to)
	require.NoError(t, err)
	assert.Empty(t, candles)

	cfg.Provider.Kind = "polygon"
	_, err = buildProvider(cfg, cal)
	assert.Error(t, err)
}
