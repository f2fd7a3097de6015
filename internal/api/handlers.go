package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/contactkeval/index-replay/internal/calendar"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/instrument"
	"github.com/contactkeval/index-replay/internal/pricing"
)

// brokerTimeLayout is how the candle endpoint takes its window.
const brokerTimeLayout = "2006-01-02 15:04"

type candlesRequest struct {
	Index       string `json:"index,omitempty"` // alternative to exchange + symboltoken
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// handleCandles proxies one candle window from the configured provider.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	var req candlesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()})
		return
	}

	if req.Index != "" {
		spec, ok := s.engine.Registry().Lookup(instrument.Underlying(req.Index))
		if !ok {
			writeJSON(w, http.StatusBadRequest, envelope{Message: fmt.Sprintf("unknown index %q", req.Index)})
			return
		}
		req.Exchange, req.SymbolToken = spec.Exchange, spec.Token
	}
	if req.Interval == "" {
		req.Interval = string(data.OneMinute)
	}
	if req.Exchange == "" || req.SymbolToken == "" || req.FromDate == "" || req.ToDate == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "exchange, symboltoken, fromdate, todate are required"})
		return
	}

	loc := s.engine.Calendar().Location()
	from, err := time.ParseInLocation(brokerTimeLayout, req.FromDate, loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "fromdate: " + err.Error()})
		return
	}
	to, err := time.ParseInLocation(brokerTimeLayout, req.ToDate, loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "todate: " + err.Error()})
		return
	}

	candles, err := s.provider.GetCandles(r.Context(), req.Exchange, req.SymbolToken,
		data.Interval(strings.ToUpper(req.Interval)), from, to)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, envelope{Message: err.Error()})
		return
	}
	if candles == nil {
		candles = []data.Candle{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: candles})
}

type optionPriceRequest struct {
	Spot       float64       `json:"spot"`
	Strike     float64       `json:"strike"`
	OptionType pricing.Class `json:"optionType"`
	// Time to expiry: either T in years, or Expiry (priced from At, default now).
	T          float64       `json:"t,omitempty"`
	Expiry     calendar.Date `json:"expiry,omitempty"`
	At         time.Time     `json:"at,omitempty"`
	Volatility float64       `json:"volatility,omitempty"`
	Rate       *float64      `json:"rate,omitempty"`
	Premium    float64       `json:"premium,omitempty"` // observed; solves IV when set
}

type optionPriceResponse struct {
	Breakdown pricing.Breakdown `json:"breakdown"`
	Greeks    pricing.Greeks    `json:"greeks"`
	VolSource pricing.VolSource `json:"volSource"`
	IV        *pricing.IVResult `json:"iv,omitempty"`
}

// handleOptionPrice evaluates the pricing model for one contract.
func (s *Server) handleOptionPrice(w http.ResponseWriter, r *http.Request) {
	var req optionPriceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Spot <= 0 || req.Strike <= 0 {
		writeError(w, http.StatusBadRequest, "spot and strike must be positive")
		return
	}

	switch strings.ToUpper(string(req.OptionType)) {
	case "CALL", "CE", "C", "":
		req.OptionType = pricing.Call
	case "PUT", "PE", "P":
		req.OptionType = pricing.Put
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("optionType %q", req.OptionType))
		return
	}

	defaults := s.engine.Pricing()
	in := pricing.Inputs{
		Spot:       req.Spot,
		Strike:     req.Strike,
		T:          req.T,
		Volatility: defaults.AssumedVolatility,
		Rate:       defaults.RiskFreeRate,
		Class:      req.OptionType,
	}
	if req.Rate != nil {
		in.Rate = *req.Rate
	}
	if req.Volatility > 0 {
		in.Volatility = req.Volatility
	}
	if in.T <= 0 && !req.Expiry.IsZero() {
		cal := s.engine.Calendar()
		at := req.At
		if at.IsZero() {
			at = time.Now()
		}
		in.T = pricing.YearsBetween(at, cal.At(req.Expiry, cal.SessionClose()))
	}

	resp := optionPriceResponse{VolSource: pricing.VolAssumed}
	if req.Premium > 0 {
		vol, src := pricing.VolatilityFor(req.Premium, in.Volatility, defaults.IVNoiseFloor,
			in.Spot, in.Strike, in.T, in.Rate, in.Class)
		in.Volatility, resp.VolSource = vol, src
		if src == pricing.VolImplied {
			iv := pricing.SolveIVResult(req.Premium, in.Spot, in.Strike, in.T, in.Rate, in.Class)
			resp.IV = &iv
		}
	}
	resp.Breakdown = pricing.Details(in)
	resp.Greeks = pricing.ComputeGreeks(in)

	writeJSON(w, http.StatusOK, resp)
}
