package data

// This file contains an Angel One SmartAPI-backed Provider that retrieves
// historical index candles over the broker's REST API.
//
// Design notes:
//   - Uses raw HTTP calls instead of the vendor SDK
//   - Logs in lazily on first use (client code + password + TOTP) and reuses
//     the session for every later call
//   - Waits for the next minute boundary on HTTP 429
//   - Logging is verbose at Debug/Trace levels for diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/contactkeval/index-replay/internal/logger"
)

const (
	smartAPILoginPath   = "/rest/auth/angelbroking/user/v1/loginByPassword"
	smartAPICandlesPath = "/rest/secure/angelbroking/historical/v1/getCandleData"
	smartAPITimeLayout  = "2006-01-02 15:04"
)

// SmartAPICredentials authenticate against the broker.
type SmartAPICredentials struct {
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string
}

func (c SmartAPICredentials) complete() bool {
	return c.APIKey != "" && c.ClientID != "" && c.Password != "" && c.TOTPSecret != ""
}

// smartAPISession is the immutable result of a successful login.
type smartAPISession struct {
	jwt      string
	issuedAt time.Time
}

// SmartAPIProvider implements Provider using the SmartAPI historical endpoint.
type SmartAPIProvider struct {
	// BaseURL is the root endpoint (e.g., https://apiconnect.angelone.in).
	BaseURL string

	// Client is the HTTP client used to make API requests.
	Client *http.Client

	creds SmartAPICredentials

	// RateLimitWait returns how long to back off after a 429 observed at now.
	RateLimitWait func(now time.Time) time.Duration

	mu      sync.Mutex
	session *smartAPISession
}

// smartAPIEnvelope is the common response wrapper.
type smartAPIEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// NewSmartAPIProvider constructs a SmartAPI-backed data provider.
//
// It initializes an HTTP client with sensible defaults for:
//   - timeouts
//   - connection pooling
//   - HTTP/2 support
func NewSmartAPIProvider(baseURL string, creds SmartAPICredentials) *SmartAPIProvider {
	logger.Infof("event=provider_init kind=smartapi base=%s client=%s", baseURL, creds.ClientID)

	return &SmartAPIProvider{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		creds:         creds,
		RateLimitWait: untilNextMinute,
	}
}

func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

// ensureSession logs in once and returns the cached session afterwards.
func (p *SmartAPIProvider) ensureSession(ctx context.Context) (*smartAPISession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return p.session, nil
	}
	if !p.creds.complete() {
		return nil, fmt.Errorf("%w: smartapi credentials incomplete", ErrNoSession)
	}

	code, err := totp.GenerateCode(p.creds.TOTPSecret, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: totp: %v", ErrNoSession, err)
	}

	payload := map[string]string{
		"clientcode": p.creds.ClientID,
		"password":   p.creds.Password,
		"totp":       code,
	}

	logger.Debugf("event=smartapi_login client=%s", p.creds.ClientID)

	var data struct {
		JWT string `json:"jwtToken"`
	}
	if err := p.post(ctx, smartAPILoginPath, "", payload, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if data.JWT == "" {
		return nil, fmt.Errorf("%w: login returned no token", ErrNoSession)
	}

	p.session = &smartAPISession{jwt: data.JWT, issuedAt: time.Now()}
	logger.Infof("event=smartapi_session_ready client=%s at=%s", p.creds.ClientID, p.session.issuedAt.Format(time.RFC3339))
	return p.session, nil
}

// GetCandles retrieves OHLCV candles for token between from and to.
func (p *SmartAPIProvider) GetCandles(ctx context.Context, exchange, token string, interval Interval, from, to time.Time) ([]Candle, error) {
	sess, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	logger.Debugf("event=smartapi_candles exchange=%s token=%s interval=%s from=%s to=%s",
		exchange, token, interval, from.Format(smartAPITimeLayout), to.Format(smartAPITimeLayout))

	payload := map[string]string{
		"exchange":    exchange,
		"symboltoken": token,
		"interval":    string(interval),
		"fromdate":    from.Format(smartAPITimeLayout),
		"todate":      to.Format(smartAPITimeLayout),
	}

	var rows [][]json.RawMessage
	if err := p.post(ctx, smartAPICandlesPath, sess.jwt, payload, &rows); err != nil {
		return nil, fmt.Errorf("smartapi candles %s/%s: %w", exchange, token, err)
	}

	out := make([]Candle, 0, len(rows))
	for i, row := range rows {
		c, err := decodeSmartAPIRow(row, from.Location())
		if err != nil {
			return nil, fmt.Errorf("smartapi candles row %d: %w", i, err)
		}
		out = append(out, c)
	}
	SortCandles(out)

	logger.Tracef("event=smartapi_candles_received token=%s count=%d", token, len(out))
	return out, nil
}

// decodeSmartAPIRow decodes [timestamp, open, high, low, close, volume].
func decodeSmartAPIRow(row []json.RawMessage, loc *time.Location) (Candle, error) {
	if len(row) < 6 {
		return Candle{}, fmt.Errorf("want 6 fields, got %d", len(row))
	}

	var ts string
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return Candle{}, fmt.Errorf("timestamp: %w", err)
	}

	var nums [5]float64
	for i := range nums {
		if err := json.Unmarshal(row[i+1], &nums[i]); err != nil {
			return Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}

	return Candle{Time: t.In(loc), Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3], Volume: nums[4]}, nil
}

// post sends a JSON request and decodes the envelope's data into out.
func (p *SmartAPIProvider) post(ctx context.Context, path, jwt string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := p.processRequest(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-UserType", "USER")
		req.Header.Set("X-SourceID", "WEB")
		req.Header.Set("X-PrivateKey", p.creds.APIKey)
		if jwt != "" {
			req.Header.Set("Authorization", "Bearer "+jwt)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env smartAPIEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if !env.Status {
		logger.Errorf("event=smartapi_error path=%s code=%s message=%s", path, env.ErrorCode, env.Message)
		return fmt.Errorf("smartapi error %s: %s", env.ErrorCode, env.Message)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// processRequest executes an HTTP request with rate-limit handling.
//
// Behavior:
//   - Retries on HTTP 429 after RateLimitWait, honouring ctx
//   - Returns immediately on success (<400)
//   - Returns an error for other status codes
func (p *SmartAPIProvider) processRequest(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	for {
		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := p.Client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			wait := p.RateLimitWait(time.Now())

			logger.Infof("event=smartapi_rate_limited sleep=%s", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}
