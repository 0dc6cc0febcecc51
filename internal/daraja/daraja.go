// Package daraja is a client for Safaricom's Daraja API covering the
// Lipa na M-Pesa Online (STK push) flow: OAuth credential exchange with
// token caching, push-payment initiation, status queries and callback
// payload processing.
//
// The client holds no transaction state of its own. Correlating a callback
// or poll result back to a merchant order is the caller's job, keyed on the
// CheckoutRequestID returned from InitiatePayment.
package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
)

const (
	oauthPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	// transactionType is fixed for STK push against a paybill short code.
	transactionType = "CustomerPayBillOnline"

	defaultTimezone = "Africa/Nairobi"
	defaultTimeout  = 30 * time.Second

	// Daraja's advertised token lifetime, used when the exchange response
	// carries an unparseable expires_in.
	defaultTokenLifetime = time.Hour

	maxResponseBytes = 1 << 20
)

// Config carries the merchant credentials and endpoints for one Daraja app.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timezone       string
	Timeout        time.Duration
}

// Client talks to the Daraja API on behalf of a single short code.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *TokenCache
	location   *time.Location
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the wall clock used for request signing and token
// expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger attaches a logger. The client logs request outcomes and token
// refreshes; it never logs token values or the passkey.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a Daraja client from the given config.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		location:   loc,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = NewTokenCache(c.exchangeCredentials, WithTokenClock(c.now))
	return c, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	// Daraja returns the lifetime as a string of seconds, e.g. "3599".
	ExpiresIn string `json:"expires_in"`
}

// exchangeCredentials performs the OAuth client-credentials exchange. All
// failure modes are wrapped as authentication errors.
func (c *Client) exchangeCredentials(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+oauthPath, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: building token request: %w", domainErrors.ErrAuthentication, err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", domainErrors.ErrAuthentication, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", 0, fmt.Errorf("%w: reading token response: %w", domainErrors.ErrAuthentication, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: token endpoint returned %d", domainErrors.ErrAuthentication, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("%w: decoding token response: %w", domainErrors.ErrAuthentication, err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: token response carried no access_token", domainErrors.ErrAuthentication)
	}

	lifetime := defaultTokenLifetime
	if secs, err := strconv.Atoi(tr.ExpiresIn); err == nil && secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}

	c.logger.Debug().Dur("expires_in", lifetime).Msg("daraja token refreshed")
	return tr.AccessToken, lifetime, nil
}

// upstreamError is a non-2xx response from a Daraja business endpoint.
type upstreamError struct {
	StatusCode int
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *upstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daraja returned %d (%s: %s)", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("daraja returned %d", e.StatusCode)
}

// postJSON sends a bearer-authorized POST and decodes the 2xx response into
// out. Non-2xx responses come back as *upstreamError.
func (c *Client) postJSON(ctx context.Context, path, token string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ue := &upstreamError{StatusCode: resp.StatusCode}
		// The error body is best-effort; Daraja is not consistent about it.
		_ = json.Unmarshal(respBody, ue)
		return ue
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
