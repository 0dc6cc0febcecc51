package daraja

import (
	"context"
	"sync"
	"time"
)

// refreshMargin is subtracted from the provider-declared token lifetime so a
// token is refreshed before Daraja actually rejects it.
const refreshMargin = 5 * time.Minute

// TokenFunc performs a credential exchange and returns the bearer token with
// its provider-declared lifetime.
type TokenFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// TokenCache holds the shared OAuth bearer token and refreshes it on demand.
// The mutex is held across the exchange, so concurrent callers that find the
// token expired trigger exactly one refresh between them.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	margin time.Duration
	now    func() time.Time
	fetch  TokenFunc
}

// TokenCacheOption configures a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithTokenClock overrides the clock used for expiry decisions.
func WithTokenClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) { c.now = now }
}

// WithRefreshMargin overrides how long before the declared expiry the cached
// token is considered stale.
func WithRefreshMargin(margin time.Duration) TokenCacheOption {
	return func(c *TokenCache) { c.margin = margin }
}

// NewTokenCache creates a cache around the given credential exchange.
func NewTokenCache(fetch TokenFunc, opts ...TokenCacheOption) *TokenCache {
	c := &TokenCache{
		margin: refreshMargin,
		now:    time.Now,
		fetch:  fetch,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached bearer token, exchanging credentials first if no
// token is held or the held one is within the refresh margin of its expiry.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	token, expiresIn, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	ttl := expiresIn
	if ttl > c.margin {
		ttl -= c.margin
	}
	c.token = token
	c.expiresAt = c.now().Add(ttl)
	return token, nil
}
