package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/instrument"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, instrument.Defaults(), cfg.Instruments)
	assert.Equal(t, 0.10, cfg.Pricing.RiskFreeRate)
	assert.Equal(t, 0.20, cfg.Pricing.AssumedVolatility)
	assert.Equal(t, 0.05, cfg.Pricing.IVNoiseFloor)
	assert.Equal(t, time.Second, cfg.Throttle.Interval)
	assert.Equal(t, 1, cfg.Throttle.Burst)
	assert.Equal(t, ProviderSynthetic, cfg.Provider.Kind)
	assert.False(t, cfg.Provider.SkipFailedDays)
	assert.Equal(t, "Asia/Kolkata", cfg.Calendar.Timezone)
	assert.Equal(t, calendar.DefaultOpen, cfg.Calendar.SessionOpen)
	assert.Equal(t, calendar.DefaultClose, cfg.Calendar.SessionClose)
	assert.Equal(t, calendar.DefaultHolidays(), cfg.Calendar.Holidays)
	assert.Equal(t, 1, cfg.Verbosity)
	assert.Equal(t, ":8080", cfg.Listen)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	_, ok := reg.Lookup(instrument.SENSEX)
	assert.True(t, ok)

	cal := cfg.BuildCalendar()
	assert.True(t, cal.IsHoliday(calendar.MustDate("2025-08-15")))
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
instruments:
  nifty:
    lot_size: 75
  banknifty:
    lot_size: 30
    strike_step: 100
    expiry_weekday: wed
    exchange: nse
    token: "99926009"
throttle:
  interval: 250ms
provider:
  kind: CSV
  csv_dir: /tmp/candles
calendar:
  holidays: ["2025-01-07"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	reg, err := cfg.Registry()
	require.NoError(t, err)

	nifty, _ := reg.Lookup(instrument.NIFTY)
	assert.Equal(t, 75, nifty.LotSize)
	assert.Equal(t, 50.0, nifty.StrikeStep)

	bank, ok := reg.Lookup("BANKNIFTY")
	require.True(t, ok)
	assert.Equal(t, time.Wednesday, bank.ExpiryWeekday)
	assert.Equal(t, "NSE", bank.Exchange)
	assert.Equal(t, "99926009", bank.Token)

	assert.Equal(t, 250*time.Millisecond, cfg.Throttle.Interval)
	assert.Equal(t, ProviderCSV, cfg.Provider.Kind)
	assert.Equal(t, "/tmp/candles", cfg.Provider.CSVDir)
	assert.Equal(t, []calendar.Date{calendar.MustDate("2025-01-07")}, cfg.Calendar.Holidays)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REPLAY_PRICING_RISK_FREE_RATE", "0.065")
	t.Setenv("REPLAY_PROVIDER_SKIP_FAILED_DAYS", "true")
	t.Setenv("SMARTAPI_API_KEY", "key-123")
	t.Setenv("SMARTAPI_CLIENT_ID", "A123")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.065, cfg.Pricing.RiskFreeRate)
	assert.True(t, cfg.Provider.SkipFailedDays)
	assert.Equal(t, "key-123", cfg.Provider.SmartAPI.APIKey)
	assert.Equal(t, "A123", cfg.Provider.SmartAPI.ClientID)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"bad weekday":  "instruments:\n  nifty:\n    expiry_weekday: funday\n",
		"bad holiday":  "calendar:\n  holidays: [\"26/01/2025\"]\n",
		"bad session":  "calendar:\n  session_open: \"16:00\"\n",
		"bad provider": "provider:\n  kind: bloomberg\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"tuesday":  time.Tuesday,
		"THU":      time.Thursday,
		" Monday ": time.Monday,
	} {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseWeekday("funday")
	assert.ErrorIs(t, err, ErrUnknownWeekday)
}
