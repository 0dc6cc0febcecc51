package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaflow/mpesa-gateway/internal/domain/outbox"
	"github.com/pesaflow/mpesa-gateway/internal/testutil"
)

type recordingPublisher struct {
	published []string
	failFor   map[string]error
}

func (p *recordingPublisher) PublishWebhookEvent(ctx context.Context, eventID, eventType string, data map[string]any) error {
	if err, ok := p.failFor[eventID]; ok {
		return err
	}
	p.published = append(p.published, eventID)
	return nil
}

func TestPublishPending_MarksPublishedBatch(t *testing.T) {
	outboxRepo := &testutil.MockOutboxRepository{}
	first := outbox.NewEntry(uuid.New(), outbox.EventPaymentSuccess, map[string]any{"status": "success"})
	second := outbox.NewEntry(uuid.New(), outbox.EventPaymentFailed, map[string]any{"status": "failed"})
	require.NoError(t, outboxRepo.Insert(context.Background(), first))
	require.NoError(t, outboxRepo.Insert(context.Background(), second))
	producer := &recordingPublisher{}

	err := publishPending(context.Background(), zerolog.Nop(),
		testutil.NewMockTransactionManager(), outboxRepo, producer, 10)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{first.ID.String(), second.ID.String()}, producer.published)
	assert.Equal(t, outbox.StatusPublished, first.Status)
	assert.Equal(t, outbox.StatusPublished, second.Status)
}

func TestPublishPending_FailedPublishDoesNotStallBatch(t *testing.T) {
	outboxRepo := &testutil.MockOutboxRepository{}
	broken := outbox.NewEntry(uuid.New(), outbox.EventPaymentSuccess, map[string]any{"status": "success"})
	healthy := outbox.NewEntry(uuid.New(), outbox.EventPaymentSuccess, map[string]any{"status": "success"})
	require.NoError(t, outboxRepo.Insert(context.Background(), broken))
	require.NoError(t, outboxRepo.Insert(context.Background(), healthy))
	producer := &recordingPublisher{
		failFor: map[string]error{broken.ID.String(): errors.New("stream unavailable")},
	}

	err := publishPending(context.Background(), zerolog.Nop(),
		testutil.NewMockTransactionManager(), outboxRepo, producer, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{healthy.ID.String()}, producer.published)
	assert.Equal(t, outbox.StatusPublished, healthy.Status)
	assert.Equal(t, 1, broken.RetryCount)
}

func TestPublishPending_MarkErrorIsLogged(t *testing.T) {
	outboxRepo := &testutil.MockOutboxRepository{}
	entry := outbox.NewEntry(uuid.New(), outbox.EventPaymentSuccess, map[string]any{"status": "success"})
	require.NoError(t, outboxRepo.Insert(context.Background(), entry))
	outboxRepo.MarkPublishedFunc = func(ctx context.Context, id uuid.UUID) error {
		return errors.New("connection reset")
	}
	producer := &recordingPublisher{}

	var logBuf bytes.Buffer
	logger := zerolog.New(&logBuf)

	err := publishPending(context.Background(), logger,
		testutil.NewMockTransactionManager(), outboxRepo, producer, 10)
	require.NoError(t, err, "a mark failure must not abort the drain pass")

	assert.Equal(t, []string{entry.ID.String()}, producer.published)
	assert.Contains(t, logBuf.String(), "Failed to mark outbox event published")
	assert.Contains(t, logBuf.String(), entry.ID.String())
}

func TestPublishPending_GetPendingErrorPropagates(t *testing.T) {
	outboxRepo := &testutil.MockOutboxRepository{}
	outboxRepo.GetPendingFunc = func(ctx context.Context, limit int) ([]*outbox.Entry, error) {
		return nil, errors.New("relation locked")
	}

	err := publishPending(context.Background(), zerolog.Nop(),
		testutil.NewMockTransactionManager(), outboxRepo, &recordingPublisher{}, 10)
	require.Error(t, err)
}
