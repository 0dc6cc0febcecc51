package service

import (
	"context"

	"github.com/pesaflow/mpesa-gateway/internal/daraja"
)

// Gateway is the slice of the Daraja client the payment service depends on.
// Narrowed to an interface so tests can stub the provider without HTTP.
type Gateway interface {
	// InitiatePayment asks the provider to push a payment prompt to the
	// customer's phone.
	InitiatePayment(ctx context.Context, req daraja.PaymentRequest) (*daraja.STKPushResult, error)

	// QueryStatus polls the provider for the outcome of an earlier push.
	QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.TransactionStatus, error)
}

// CorrelationStore maps a CheckoutRequestID to the internal transaction it
// belongs to. The provider only echoes the CheckoutRequestID back in callbacks,
// so this mapping is what links a callback to a merchant order.
type CorrelationStore interface {
	// Put records the mapping with a bounded lifetime.
	Put(ctx context.Context, checkoutRequestID, transactionID string) error

	// Get resolves a CheckoutRequestID to a transaction ID.
	// Returns ErrCorrelationNotFound if no mapping exists.
	Get(ctx context.Context, checkoutRequestID string) (string, error)
}
