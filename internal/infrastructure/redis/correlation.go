package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
)

const correlationKeyPrefix = "correlation:checkout:"

// CorrelationStore caches CheckoutRequestID -> transaction ID mappings so a
// callback can be correlated without a database round trip. Entries expire
// after the TTL; the postgres row remains the durable record.
type CorrelationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCorrelationStore creates a correlation store. A non-positive TTL
// defaults to 48 hours, comfortably past Daraja's callback window.
func NewCorrelationStore(client *redis.Client, ttl time.Duration) *CorrelationStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &CorrelationStore{client: client, ttl: ttl}
}

// Put records the mapping with the store's TTL.
func (s *CorrelationStore) Put(ctx context.Context, checkoutRequestID, transactionID string) error {
	err := s.client.Set(ctx, correlationKeyPrefix+checkoutRequestID, transactionID, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("store checkout correlation: %w", err)
	}
	return nil
}

// Get resolves a CheckoutRequestID to the transaction it belongs to.
func (s *CorrelationStore) Get(ctx context.Context, checkoutRequestID string) (string, error) {
	val, err := s.client.Get(ctx, correlationKeyPrefix+checkoutRequestID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domainErrors.ErrCorrelationNotFound
		}
		return "", fmt.Errorf("resolve checkout correlation: %w", err)
	}
	return val, nil
}
