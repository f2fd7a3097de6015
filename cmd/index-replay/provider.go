package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/config"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/instrument"
	"github.com/contactkeval/index-replay/internal/logger"
	"github.com/contactkeval/index-replay/internal/pricing"
)

// buildProvider picks the data source named by provider.kind.
func buildProvider(cfg *config.Config, cal *calendar.Calendar) (data.Provider, error) {
	switch cfg.Provider.Kind {
	case config.ProviderSynthetic:
		return data.NewSyntheticProvider(data.SyntheticConfig{
			Seed:         cfg.Provider.Seed,
			RiskFreeRate: cfg.Pricing.RiskFreeRate,
			SessionOpen:  sinceMidnight(cal.SessionOpen()),
			SessionClose: sinceMidnight(cal.SessionClose()),
			Holiday: func(day time.Time) bool {
				return cal.IsHoliday(calendar.DateOf(day.In(cal.Location())))
			},
		}), nil

	case config.ProviderCSV:
		return data.NewLocalCSVProvider(cfg.Provider.CSVDir), nil

	case config.ProviderSmartAPI:
		sc := cfg.Provider.SmartAPI
		if sc.APIKey == "" || sc.ClientID == "" {
			logger.Warnf("event=smartapi_incomplete_credentials hint=set SMARTAPI_API_KEY SMARTAPI_CLIENT_ID SMARTAPI_PASSWORD SMARTAPI_TOTP_SECRET")
		}
		return data.NewSmartAPIProvider(sc.BaseURL, data.SmartAPICredentials{
			APIKey:     sc.APIKey,
			ClientID:   sc.ClientID,
			Password:   sc.Password,
			TOTPSecret: sc.TOTPSecret,
		}), nil
	}
	return nil, fmt.Errorf("unsupported provider kind %q", cfg.Provider.Kind)
}

func sinceMidnight(c calendar.Clock) time.Duration {
	return time.Duration(c.Minutes()) * time.Minute
}

func instrumentName(s string) instrument.Underlying {
	return instrument.Underlying(strings.ToUpper(strings.TrimSpace(s)))
}

// optionClass leaves unknown values as-is so validation reports them.
func optionClass(s string) pricing.Class {
	return pricing.Class(strings.ToUpper(strings.TrimSpace(s)))
}
