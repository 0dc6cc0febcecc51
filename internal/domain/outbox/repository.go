package outbox

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Insert writes a notification entry, always in the same transaction as
	// the status change it announces.
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns undelivered entries up to the given limit.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished records that an entry reached the delivery stream.
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed increments the retry count, parking the entry once its
	// retries are exhausted.
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
