package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pesaflow/mpesa-gateway/internal/bootstrap"
	"github.com/pesaflow/mpesa-gateway/internal/domain/outbox"
	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/config"
	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/observability"
	infraRedis "github.com/pesaflow/mpesa-gateway/internal/infrastructure/redis"
	"github.com/pesaflow/mpesa-gateway/internal/repository/postgres"
	"github.com/pesaflow/mpesa-gateway/internal/webhook"
)

// outboxLockKey guards the outbox poll so that concurrent worker replicas do
// not race on the same pending batch.
const outboxLockKey = "outbox:poller"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "mpesa-gateway-worker", "mpesa_gateway_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	streamProducer := infraRedis.NewStreamProducer(app.Redis)

	dispatcher := webhook.NewDispatcher(webhook.Config{
		SigningSecret: app.Config.Webhook.SigningSecret,
		Timeout:       app.Config.Webhook.Timeout,
		MaxRetries:    app.Config.Webhook.MaxRetries,
		RetryDelay:    app.Config.Webhook.RetryDelay,
	}, app.Metrics, app.Logger)

	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.WebhookStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
	}

	app.Logger.Info().
		Str("stream", infraRedis.WebhookStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox poller: pending notifications -> Redis stream.
	g.Go(func() error {
		return runOutboxPoller(gCtx, app, txManager, outboxRepo, streamProducer)
	})

	// 2. Delivery consumer: Redis stream -> merchant webhook endpoints.
	g.Go(func() error {
		return runDeliveryConsumer(gCtx, app.Logger, app.Metrics, consumer, streamProducer, dispatcher, app.Config.Webhook)
	})

	// 3. Idempotency sweeper: drop expired replay entries.
	g.Go(func() error {
		return runIdempotencySweeper(gCtx, app.Logger, idempotencyRepo)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

// runOutboxPoller drains pending outbox rows into the webhook stream. The
// distributed lock keeps replicas from publishing the same batch twice; rows
// are read FOR UPDATE SKIP LOCKED inside one transaction per tick.
func runOutboxPoller(
	ctx context.Context,
	app *bootstrap.App,
	txManager *postgres.TxManager,
	outboxRepo *postgres.OutboxRepository,
	producer *infraRedis.StreamProducer,
) error {
	pollInterval := app.Config.Worker.OutboxPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lock := infraRedis.NewDistributedLock(app.Redis, outboxLockKey, app.Config.Worker.LockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Outbox lock acquisition error")
			continue
		}
		if !acquired {
			continue
		}

		if err := publishPending(ctx, app.Logger, txManager, outboxRepo, producer, int(app.Config.Worker.BatchSize)); err != nil {
			app.Logger.Error().Err(err).Msg("Outbox poller error")
		}

		lock.Release(ctx)
	}
}

// txRunner and webhookPublisher narrow the poller's dependencies to what one
// drain pass needs.
type txRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type webhookPublisher interface {
	PublishWebhookEvent(ctx context.Context, eventID, eventType string, data map[string]any) error
}

// publishPending moves one batch of pending outbox rows onto the webhook
// stream. A failed publish marks the row failed and moves on; mark errors are
// logged so a row stuck in pending after a publish is diagnosable.
func publishPending(
	ctx context.Context,
	logger zerolog.Logger,
	txManager txRunner,
	outboxRepo outbox.Repository,
	producer webhookPublisher,
	batchSize int,
) error {
	return txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := outboxRepo.GetPending(txCtx, batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := producer.PublishWebhookEvent(ctx, entry.ID.String(), entry.EventType, entry.Payload); err != nil {
				logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Msg("Failed to publish outbox event")
				if err := outboxRepo.MarkFailed(txCtx, entry.ID); err != nil {
					logger.Error().Err(err).
						Str("outbox_id", entry.ID.String()).
						Msg("Failed to mark outbox event failed")
				}
				continue
			}
			if err := outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
				logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Msg("Failed to mark outbox event published")
			}
		}
		return nil
	})
}

// runIdempotencySweeper periodically deletes expired idempotency entries so
// the replay table does not grow without bound.
func runIdempotencySweeper(ctx context.Context, logger zerolog.Logger, repo *postgres.IdempotencyRepository) error {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		removed, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup error")
			continue
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("Expired idempotency keys removed")
		}
	}
}

// runDeliveryConsumer reads queued notifications and posts them to the
// merchant endpoint. A delivery that exhausts its retries goes to the DLQ and
// is acked; redelivering it forever would stall the stream.
func runDeliveryConsumer(
	ctx context.Context,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	consumer *infraRedis.StreamConsumer,
	producer *infraRedis.StreamProducer,
	dispatcher *webhook.Dispatcher,
	webhookCfg config.WebhookConfig,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("Failed to read from stream")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				start := time.Now()
				status := "success"
				if err := deliverMessage(ctx, dispatcher, producer, webhookCfg, msg.Values); err != nil {
					logger.Error().Err(err).Str("message_id", msg.ID).Msg("Webhook delivery failed")
					status = "failed"
				}
				metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.WebhookStream, status).Inc()
				metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.WebhookStream).Observe(time.Since(start).Seconds())
				consumer.Ack(ctx, msg.ID)
			}
		}
	}
}

// deliverMessage decodes one stream message and posts it to the merchant.
// The target URL comes from the transaction's own webhook registration,
// falling back to the gateway-wide default.
func deliverMessage(
	ctx context.Context,
	dispatcher *webhook.Dispatcher,
	producer *infraRedis.StreamProducer,
	webhookCfg config.WebhookConfig,
	values map[string]any,
) error {
	eventID, _ := values["event_id"].(string)
	eventType, _ := values["event_type"].(string)
	rawPayload, _ := values["payload"].(string)

	var data map[string]any
	if err := json.Unmarshal([]byte(rawPayload), &data); err != nil {
		return fmt.Errorf("decode webhook payload %s: %w", eventID, err)
	}

	url := webhookCfg.DefaultURL
	if u, ok := data["webhook_url"].(string); ok && u != "" {
		url = u
	}
	if url == "" {
		// No registered destination; nothing to deliver.
		return nil
	}
	delete(data, "webhook_url")

	event := webhook.Event{
		ID:        eventID,
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}
	if err := dispatcher.Deliver(ctx, url, event); err != nil {
		if dlqErr := producer.PublishToDLQ(ctx, eventID, err.Error(), data); dlqErr != nil {
			return fmt.Errorf("DLQ publish after failed delivery: %w", dlqErr)
		}
		return err
	}
	return nil
}
