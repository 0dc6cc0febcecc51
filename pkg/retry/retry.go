// Package retry wraps retry-go with the backoff policy used for merchant
// webhook deliveries. Calls toward Daraja are never retried here; a repeated
// push would prompt the customer's phone twice.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds the backoff schedule for one delivery attempt series.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns the delivery backoff used when none is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Do runs fn with exponential backoff until it succeeds, the attempts are
// exhausted, or ctx is cancelled. Only the last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
