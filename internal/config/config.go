// Package config loads runtime settings from an optional file, environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/instrument"
)

// ErrUnknownWeekday is returned when an instrument's expiry weekday cannot be parsed.
var ErrUnknownWeekday = errors.New("unknown weekday")

const envPrefix = "REPLAY"

// Provider kinds.
const (
	ProviderSynthetic = "synthetic"
	ProviderCSV       = "csv"
	ProviderSmartAPI  = "smartapi"
)

type Config struct {
	Instruments []instrument.Spec
	Pricing     PricingConfig
	Calendar    CalendarConfig
	Throttle    ThrottleConfig
	Provider    ProviderConfig

	ReportDir string
	Verbosity int
	LogFormat string
	Listen    string
}

type PricingConfig struct {
	RiskFreeRate      float64
	AssumedVolatility float64
	IVNoiseFloor      float64
}

type CalendarConfig struct {
	Timezone     string
	SessionOpen  calendar.Clock
	SessionClose calendar.Clock
	Holidays     []calendar.Date
}

type ThrottleConfig struct {
	Interval time.Duration
	Burst    int
}

type ProviderConfig struct {
	Kind           string
	CSVDir         string
	Seed           int64
	SkipFailedDays bool
	SmartAPI       SmartAPIConfig
}

// SmartAPIConfig holds broker credentials. Never log it.
type SmartAPIConfig struct {
	BaseURL    string
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string
}

func setDefaults(v *viper.Viper) {
	for _, s := range instrument.Defaults() {
		key := "instruments." + strings.ToLower(string(s.Name))
		v.SetDefault(key+".lot_size", s.LotSize)
		v.SetDefault(key+".strike_step", s.StrikeStep)
		v.SetDefault(key+".expiry_weekday", strings.ToLower(s.ExpiryWeekday.String()))
		v.SetDefault(key+".exchange", s.Exchange)
		v.SetDefault(key+".token", s.Token)
	}

	v.SetDefault("pricing.risk_free_rate", 0.10)
	v.SetDefault("pricing.assumed_volatility", 0.20)
	v.SetDefault("pricing.iv_noise_floor", 0.05)

	holidays := make([]string, 0, len(calendar.DefaultHolidays()))
	for _, h := range calendar.DefaultHolidays() {
		holidays = append(holidays, h.String())
	}
	v.SetDefault("calendar.timezone", "Asia/Kolkata")
	v.SetDefault("calendar.session_open", calendar.DefaultOpen.String())
	v.SetDefault("calendar.session_close", calendar.DefaultClose.String())
	v.SetDefault("calendar.holidays", holidays)

	v.SetDefault("throttle.interval", "1s")
	v.SetDefault("throttle.burst", 1)

	v.SetDefault("provider.kind", ProviderSynthetic)
	v.SetDefault("provider.csv_dir", "./data")
	v.SetDefault("provider.seed", 42)
	v.SetDefault("provider.skip_failed_days", false)
	v.SetDefault("provider.smartapi.base_url", "https://apiconnect.angelone.in")

	v.SetDefault("report_dir", "./out")
	v.SetDefault("verbosity", 1)
	v.SetDefault("log_format", "console")
	v.SetDefault("listen", ":8080")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// broker credentials keep their conventional names
	_ = v.BindEnv("provider.smartapi.api_key", "SMARTAPI_API_KEY")
	_ = v.BindEnv("provider.smartapi.client_id", "SMARTAPI_CLIENT_ID")
	_ = v.BindEnv("provider.smartapi.password", "SMARTAPI_PASSWORD")
	_ = v.BindEnv("provider.smartapi.totp_secret", "SMARTAPI_TOTP_SECRET")
	return v
}

// Load reads path (YAML, JSON or TOML by extension) when non-empty, layers
// REPLAY_* environment variables on top and fills the rest from defaults.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Pricing: PricingConfig{
			RiskFreeRate:      v.GetFloat64("pricing.risk_free_rate"),
			AssumedVolatility: v.GetFloat64("pricing.assumed_volatility"),
			IVNoiseFloor:      v.GetFloat64("pricing.iv_noise_floor"),
		},
		Throttle: ThrottleConfig{
			Interval: v.GetDuration("throttle.interval"),
			Burst:    v.GetInt("throttle.burst"),
		},
		Provider: ProviderConfig{
			Kind:           strings.ToLower(v.GetString("provider.kind")),
			CSVDir:         v.GetString("provider.csv_dir"),
			Seed:           v.GetInt64("provider.seed"),
			SkipFailedDays: v.GetBool("provider.skip_failed_days"),
			SmartAPI: SmartAPIConfig{
				BaseURL:    v.GetString("provider.smartapi.base_url"),
				APIKey:     v.GetString("provider.smartapi.api_key"),
				ClientID:   v.GetString("provider.smartapi.client_id"),
				Password:   v.GetString("provider.smartapi.password"),
				TOTPSecret: v.GetString("provider.smartapi.totp_secret"),
			},
		},
		ReportDir: v.GetString("report_dir"),
		Verbosity: v.GetInt("verbosity"),
		LogFormat: v.GetString("log_format"),
		Listen:    v.GetString("listen"),
	}

	switch cfg.Provider.Kind {
	case ProviderSynthetic, ProviderCSV, ProviderSmartAPI:
	default:
		return nil, fmt.Errorf("provider.kind: unsupported %q", cfg.Provider.Kind)
	}

	specs, err := decodeInstruments(v)
	if err != nil {
		return nil, err
	}
	cfg.Instruments = specs

	cal, err := decodeCalendar(v)
	if err != nil {
		return nil, err
	}
	cfg.Calendar = cal

	return cfg, nil
}

func decodeInstruments(v *viper.Viper) ([]instrument.Spec, error) {
	names := map[string]struct{}{}
	for _, k := range v.AllKeys() {
		parts := strings.Split(k, ".")
		if len(parts) == 3 && parts[0] == "instruments" {
			names[parts[1]] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	specs := make([]instrument.Spec, 0, len(sorted))
	for _, n := range sorted {
		key := "instruments." + n
		wd, err := ParseWeekday(v.GetString(key + ".expiry_weekday"))
		if err != nil {
			return nil, fmt.Errorf("%s.expiry_weekday: %w", key, err)
		}
		specs = append(specs, instrument.Spec{
			Name:          instrument.Underlying(strings.ToUpper(n)),
			LotSize:       v.GetInt(key + ".lot_size"),
			StrikeStep:    v.GetFloat64(key + ".strike_step"),
			ExpiryWeekday: wd,
			Exchange:      strings.ToUpper(v.GetString(key + ".exchange")),
			Token:         v.GetString(key + ".token"),
		})
	}
	return specs, nil
}

func decodeCalendar(v *viper.Viper) (CalendarConfig, error) {
	cc := CalendarConfig{Timezone: v.GetString("calendar.timezone")}

	var err error
	if cc.SessionOpen, err = calendar.ParseClock(v.GetString("calendar.session_open")); err != nil {
		return cc, fmt.Errorf("calendar.session_open: %w", err)
	}
	if cc.SessionClose, err = calendar.ParseClock(v.GetString("calendar.session_close")); err != nil {
		return cc, fmt.Errorf("calendar.session_close: %w", err)
	}
	if !cc.SessionOpen.Before(cc.SessionClose) {
		return cc, fmt.Errorf("calendar: session_open %s is not before session_close %s", cc.SessionOpen, cc.SessionClose)
	}

	for _, s := range v.GetStringSlice("calendar.holidays") {
		d, err := calendar.ParseDate(strings.TrimSpace(s))
		if err != nil {
			return cc, fmt.Errorf("calendar.holidays: %w", err)
		}
		cc.Holidays = append(cc.Holidays, d)
	}
	return cc, nil
}

// ParseWeekday accepts full or three-letter English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, s)
}

// Registry builds the instrument registry.
func (c *Config) Registry() (*instrument.Registry, error) {
	return instrument.NewRegistry(c.Instruments...)
}

// BuildCalendar builds the exchange calendar.
func (c *Config) BuildCalendar() *calendar.Calendar {
	return calendar.New(calendar.Config{
		Location:     calendar.LoadLocation(c.Calendar.Timezone),
		Holidays:     c.Calendar.Holidays,
		SessionOpen:  c.Calendar.SessionOpen,
		SessionClose: c.Calendar.SessionClose,
	})
}
