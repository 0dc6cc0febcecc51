package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	transactionID := uuid.New()
	payload := map[string]any{
		"checkout_request_id":  "ws_CO_191220191020363925",
		"amount":               float64(100),
		"mpesa_receipt_number": "NLJ7RT61SV",
	}

	entry := NewEntry(transactionID, EventPaymentSuccess, payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, transactionID, entry.TransactionID)
	assert.Equal(t, "payment.success", entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewEntry_EmptyPayload(t *testing.T) {
	entry := NewEntry(uuid.New(), EventPaymentFailed, nil)

	require.NotNil(t, entry)
	assert.Nil(t, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
}

func TestNewEntry_EventTypes(t *testing.T) {
	transactionID := uuid.New()

	tests := []struct {
		name      string
		eventType string
	}{
		{"payment success", EventPaymentSuccess},
		{"payment failed", EventPaymentFailed},
		{"payment cancelled", EventPaymentCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry(transactionID, tt.eventType, nil)
			assert.Equal(t, tt.eventType, entry.EventType)
			assert.Equal(t, transactionID, entry.TransactionID)
		})
	}
}

func TestStatus_Constants(t *testing.T) {
	assert.Equal(t, Status("pending"), StatusPending)
	assert.Equal(t, Status("published"), StatusPublished)
	assert.Equal(t, Status("failed"), StatusFailed)
}

func TestEntry_UniqueIDs(t *testing.T) {
	transactionID := uuid.New()
	entry1 := NewEntry(transactionID, EventPaymentSuccess, nil)
	entry2 := NewEntry(transactionID, EventPaymentSuccess, nil)

	// Each entry should have a unique ID even for the same transaction
	assert.NotEqual(t, entry1.ID, entry2.ID)
	assert.Equal(t, entry1.TransactionID, entry2.TransactionID)
}
