package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one pending merchant notification, written in the same database
// transaction as the status change it announces.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// Event types announced to merchants.
const (
	EventPaymentSuccess   = "payment.success"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
)

func NewEntry(transactionID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		TransactionID: transactionID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		RetryCount:    0,
		MaxRetries:    5,
		CreatedAt:     time.Now(),
	}
}
