package transaction

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for transaction persistence
type Repository interface {
	// Create creates a new transaction
	Create(ctx context.Context, tx *Transaction) error

	// GetByID retrieves a transaction by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetByCheckoutRequestID retrieves a transaction by its Daraja correlation handle
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Transaction, error)

	// GetByIdempotencyKey retrieves a transaction by idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*Transaction, error)

	// Update writes back a settled transaction. The write only applies while
	// the stored row is still pending; if another writer settled it first the
	// call returns ErrInvalidStateTransition so the caller can re-read.
	Update(ctx context.Context, tx *Transaction) error

	// List lists transactions with filters
	List(ctx context.Context, filter ListFilter) ([]*Transaction, error)
}

// ListFilter defines filters for listing transactions
type ListFilter struct {
	Status      *Status
	PhoneNumber *string
	Limit       int
	Offset      int
	SortBy      string
	SortOrder   string
}
