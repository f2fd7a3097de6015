package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/text/language"

	"github.com/contactkeval/index-replay/internal/api"
	"github.com/contactkeval/index-replay/internal/backtest"
	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/config"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/logger"
	"github.com/contactkeval/index-replay/internal/ratelimit"
	"github.com/contactkeval/index-replay/internal/report"
	"github.com/contactkeval/index-replay/internal/telemetry"
)

type flags struct {
	configPath string
	rest       bool
	listen     string
	verbosity  int

	index    string
	start    string
	end      string
	entry    string
	exit     string
	sl       float64
	lots     int
	class    string
	position string
	strike   string
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to YAML/JSON config (optional)")
	flag.BoolVar(&f.rest, "rest", false, "run as REST server (accept backtest jobs)")
	flag.StringVar(&f.listen, "listen", "", "REST listen address (overrides config)")
	flag.IntVar(&f.verbosity, "v", -1, "verbosity 0=error 1=info 2=debug 3=trace (overrides config)")

	flag.StringVar(&f.index, "index", "NIFTY", "underlying index")
	flag.StringVar(&f.start, "start", "", "start date YYYY-MM-DD")
	flag.StringVar(&f.end, "end", "", "end date YYYY-MM-DD (default: start)")
	flag.StringVar(&f.entry, "entry", "09:20", "entry time HH:MM")
	flag.StringVar(&f.exit, "exit", "15:15", "exit time HH:MM")
	flag.Float64Var(&f.sl, "sl", 0, "premium stop-loss in points (0 disables)")
	flag.IntVar(&f.lots, "lots", 1, "number of lots")
	flag.StringVar(&f.class, "type", "CE", "option type CE|PE")
	flag.StringVar(&f.position, "position", "BUY", "BUY|SELL")
	flag.StringVar(&f.strike, "strike", "ATM", "strike rule, e.g. ATM, ATM:+100, DELTA:0.3, {SPOT}+2*{STEP}")
	flag.Parse()
	return f
}

func main() {
	_ = godotenv.Load()
	f := parseFlags()

	if err := run(f); err != nil {
		logger.Errorf("event=exit err=%v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.verbosity >= 0 {
		cfg.Verbosity = f.verbosity
	}
	if f.listen != "" {
		cfg.Listen = f.listen
	}
	logger.Init(logger.Options{Verbosity: cfg.Verbosity, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("instruments: %w", err)
	}
	cal := cfg.BuildCalendar()

	prov, err := buildProvider(cfg, cal)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	throttle := ratelimit.Every(cfg.Throttle.Interval, cfg.Throttle.Burst)
	engine := backtest.NewEngine(prov, cal, reg, backtest.PricingConfig{
		RiskFreeRate:      cfg.Pricing.RiskFreeRate,
		AssumedVolatility: cfg.Pricing.AssumedVolatility,
		IVNoiseFloor:      cfg.Pricing.IVNoiseFloor,
	}, backtest.Options{
		SkipFailedDays: cfg.Provider.SkipFailedDays,
		Throttle:       throttle,
		Metrics:        telemetry.New(promReg),
	})

	if f.rest {
		// direct candle requests share the engine's upstream budget
		srv := api.NewServer(engine, data.Throttled(prov, throttle), promReg)
		return srv.ListenAndServe(ctx, cfg.Listen)
	}

	params, err := f.params()
	if err != nil {
		return err
	}

	rep, err := engine.Run(ctx, params)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	dir, err := report.Write(rep, cfg.ReportDir)
	if err != nil {
		logger.Warnf("event=report_write_failed dir=%s err=%v", cfg.ReportDir, err)
	} else {
		logger.Infof("event=report_written dir=%s trades=%d", dir, len(rep.Trades))
	}

	report.Summary(os.Stdout, rep, language.MustParse("en-IN"))
	return nil
}

func (f flags) params() (backtest.StrategyParams, error) {
	if f.start == "" {
		return backtest.StrategyParams{}, errors.New("-start is required outside -rest mode")
	}

	p := backtest.StrategyParams{
		Index:      instrumentName(f.index),
		OptionType: optionClass(f.class),
		Position:   backtest.Position(f.position),
		StopLoss:   f.sl,
		Lots:       f.lots,
		StrikeRule: f.strike,
	}

	var err error
	if p.StartDate, err = calendar.ParseDate(f.start); err != nil {
		return p, fmt.Errorf("-start: %w", err)
	}
	if f.end != "" {
		if p.EndDate, err = calendar.ParseDate(f.end); err != nil {
			return p, fmt.Errorf("-end: %w", err)
		}
	}
	if p.EntryTime, err = calendar.ParseClock(f.entry); err != nil {
		return p, fmt.Errorf("-entry: %w", err)
	}
	if p.ExitTime, err = calendar.ParseClock(f.exit); err != nil {
		return p, fmt.Errorf("-exit: %w", err)
	}
	return p, nil
}
