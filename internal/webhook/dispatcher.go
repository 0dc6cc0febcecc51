// Package webhook delivers settled-transaction notifications to merchant
// endpoints. Payloads are signed with HMAC-SHA256 so merchants can verify
// the notification came from this gateway.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/observability"
	"github.com/pesaflow/mpesa-gateway/pkg/retry"
)

const (
	// SignatureHeader carries the hex-encoded HMAC-SHA256 of the body.
	SignatureHeader = "X-Gateway-Signature"
	// EventTypeHeader carries the event type for routing without parsing.
	EventTypeHeader = "X-Gateway-Event"

	defaultTimeout = 10 * time.Second
)

// Event is the notification body posted to the merchant.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data"`
}

// Dispatcher posts signed events to merchant webhook URLs with exponential
// backoff. It never retries toward Daraja; only merchant deliveries.
type Dispatcher struct {
	httpClient *http.Client
	secret     []byte
	retryCfg   retry.Config
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// Config controls delivery behavior.
type Config struct {
	SigningSecret string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

// NewDispatcher creates a Dispatcher. Metrics may be nil.
func NewDispatcher(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryCfg := retry.DefaultConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = uint(cfg.MaxRetries)
	}
	if cfg.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryDelay
	}

	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		secret:     []byte(cfg.SigningSecret),
		retryCfg:   retryCfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// Deliver posts the event to url, retrying with backoff until it succeeds or
// the attempts are exhausted. A 2xx response counts as delivered; anything
// else is retried.
func (d *Dispatcher) Deliver(ctx context.Context, url string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode webhook event: %w", err)
	}
	signature := d.Sign(body)

	start := time.Now()
	err = retry.Do(ctx, d.retryCfg, func() error {
		return d.post(ctx, url, event.Type, body, signature)
	})

	result := "success"
	if err != nil {
		result = "failed"
	}
	if d.metrics != nil {
		d.metrics.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
		d.metrics.WebhookDeliverySeconds.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("deliver webhook %s: %w", event.ID, err)
	}

	d.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("url", url).
		Msg("webhook delivered")
	return nil
}

func (d *Dispatcher) post(ctx context.Context, url, eventType string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(EventTypeHeader, eventType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("merchant endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex-encoded HMAC-SHA256 of body under the dispatcher's
// secret.
func (d *Dispatcher) Sign(body []byte) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body. Intended for
// merchant-side verification and for tests; comparison is constant-time.
func VerifySignature(secret, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
