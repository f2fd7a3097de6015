// Package api exposes the backtest engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/contactkeval/index-replay/internal/backtest"
	"github.com/contactkeval/index-replay/internal/data"
	"github.com/contactkeval/index-replay/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// Server is the REST front of one engine.
type Server struct {
	engine   *backtest.Engine
	provider data.Provider
	gatherer prometheus.Gatherer
	router   *mux.Router
	started  time.Time
}

// NewServer wires the routes. provider serves the raw candle endpoint and
// should be the same (throttled) provider the engine uses. A nil gatherer
// leaves /metrics unmounted.
func NewServer(engine *backtest.Engine, provider data.Provider, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		engine:   engine,
		provider: provider,
		gatherer: gatherer,
		router:   mux.NewRouter(),
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestID, accessLog)

	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/backtest/run", s.handleRunBacktest).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/market/candles", s.handleCandles).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/options/price", s.handleOptionPrice).Methods(http.MethodPost)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the router behind a permissive CORS policy.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(s.router)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("event=http_listen addr=%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger.Infof("event=http_shutdown addr=%s", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"instruments": s.engine.Registry().Names(),
	})
}

// handleRunBacktest runs one backtest synchronously on the request goroutine.
func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var params backtest.StrategyParams
	if err := decodeBody(w, r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.StartDate.IsZero() || params.EntryTime.IsZero() {
		writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	rep, err := s.engine.Run(r.Context(), params)
	if err != nil {
		status := statusFor(err)
		logger.Warnf("event=backtest_failed request=%s status=%d err=%v", w.Header().Get(requestIDHeader), status, err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "Backtest execution failed"
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, backtest.ErrInvalidParams), errors.Is(err, backtest.ErrInvalidStrikeRule):
		return http.StatusBadRequest
	case errors.Is(err, backtest.ErrProviderFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("event=write_failed err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// --------------------------------------------------------------------------------------------
// Middleware
// --------------------------------------------------------------------------------------------

// requestID echoes the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Infof("event=http_request request=%s method=%s path=%s status=%d took=%s",
			w.Header().Get(requestIDHeader), r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}
