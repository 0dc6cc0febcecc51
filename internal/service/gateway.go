package service

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/pesaflow/mpesa-gateway/internal/daraja"
	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/observability"
)

// BreakerGateway wraps a Gateway with circuit breakers so sustained Daraja
// outages fail fast instead of tying up request handlers for the full
// upstream timeout. Provider-reported rejections are normal results and do
// not count as failures; only transport and auth errors trip the breaker.
type BreakerGateway struct {
	inner      Gateway
	initiateCB *gobreaker.CircuitBreaker[*daraja.STKPushResult]
	queryCB    *gobreaker.CircuitBreaker[*daraja.TransactionStatus]
}

// BreakerSettings controls when the gateway breakers trip.
type BreakerSettings struct {
	// Threshold is the minimum number of requests in an interval before the
	// failure ratio is considered.
	Threshold int
	// Timeout is how long an open breaker stays open before probing again.
	Timeout time.Duration
}

// NewBreakerGateway wraps inner with one breaker per upstream endpoint.
// Metrics may be nil.
func NewBreakerGateway(inner Gateway, settings BreakerSettings, metrics *observability.Metrics) *BreakerGateway {
	if settings.Threshold <= 0 {
		settings.Threshold = 10
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}

	base := gobreaker.Settings{
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= uint32(settings.Threshold) && failureRatio >= 0.6
		},
	}
	if metrics != nil {
		base.OnStateChange = func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		}
	}

	initiateSettings := base
	initiateSettings.Name = "daraja-stkpush"
	querySettings := base
	querySettings.Name = "daraja-query"

	return &BreakerGateway{
		inner:      inner,
		initiateCB: gobreaker.NewCircuitBreaker[*daraja.STKPushResult](initiateSettings),
		queryCB:    gobreaker.NewCircuitBreaker[*daraja.TransactionStatus](querySettings),
	}
}

func (g *BreakerGateway) InitiatePayment(ctx context.Context, req daraja.PaymentRequest) (*daraja.STKPushResult, error) {
	result, err := g.initiateCB.Execute(func() (*daraja.STKPushResult, error) {
		return g.inner.InitiatePayment(ctx, req)
	})
	return result, mapBreakerErr(err)
}

func (g *BreakerGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.TransactionStatus, error) {
	result, err := g.queryCB.Execute(func() (*daraja.TransactionStatus, error) {
		return g.inner.QueryStatus(ctx, checkoutRequestID)
	})
	return result, mapBreakerErr(err)
}

func mapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domainErrors.ErrProviderUnavailable
	}
	return err
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
