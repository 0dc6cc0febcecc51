package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesaflow/mpesa-gateway/internal/daraja"
	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
	"github.com/pesaflow/mpesa-gateway/internal/domain/outbox"
	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/observability"
	"github.com/pesaflow/mpesa-gateway/internal/msisdn"
)

// PaymentService orchestrates the payment lifecycle: initiating pushes,
// reconciling outcomes from callbacks and polls, and queueing merchant
// notifications through the outbox.
type PaymentService struct {
	transactions transaction.Repository
	outboxRepo   outbox.Repository
	correlations CorrelationStore
	txManager    TransactionManager
	gateway      Gateway
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	transactions transaction.Repository,
	outboxRepo outbox.Repository,
	correlations CorrelationStore,
	txManager TransactionManager,
	gateway Gateway,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		transactions: transactions,
		outboxRepo:   outboxRepo,
		correlations: correlations,
		txManager:    txManager,
		gateway:      gateway,
		metrics:      metrics,
		logger:       logger,
	}
}

// InitiatePayment normalizes and validates the merchant input, asks Daraja to
// push the payment prompt, and persists the resulting transaction. A
// provider-reported rejection is stored as a failed transaction and returned
// as a normal response with Accepted=false, not as an error.
func (s *PaymentService) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.transactions.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil && !errors.Is(err, domainErrors.ErrTransactionNotFound) {
			return nil, err
		}
		if existing != nil {
			return replayResponse(existing), nil
		}
	}

	phone, err := msisdn.Normalize(req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	tx, err := transaction.New(req.Amount, phone, req.AccountReference, req.TransactionDesc)
	if err != nil {
		return nil, err
	}
	tx.SetIdempotencyKey(req.IdempotencyKey)
	tx.SetWebhookURL(req.WebhookURL)

	start := time.Now()
	result, err := s.gateway.InitiatePayment(ctx, daraja.PaymentRequest{
		Amount:           req.Amount,
		PhoneNumber:      phone,
		AccountReference: req.AccountReference,
		TransactionDesc:  req.TransactionDesc,
	})
	if err != nil {
		s.metrics.PushInitiationsTotal.WithLabelValues("error").Inc()
		s.metrics.PushInitiationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	tx.SetCorrelation(result.MerchantRequestID, result.CheckoutRequestID)

	if !result.Success {
		// Daraja rejected the push synchronously. Stored for audit; the
		// merchant learns the outcome in this response, no webhook follows.
		if err := tx.MarkFailed(result.Message); err != nil {
			return nil, err
		}
		if err := s.transactions.Create(ctx, tx); err != nil {
			return nil, err
		}
		s.metrics.PushInitiationsTotal.WithLabelValues("rejected").Inc()
		s.metrics.PushInitiationSeconds.WithLabelValues("rejected").Observe(time.Since(start).Seconds())
		s.logger.Info().
			Str("transaction_id", tx.ID.String()).
			Str("response_code", result.ResponseCode).
			Msg("stk push rejected by provider")
		return &InitiatePaymentResponse{
			Transaction:     tx,
			Accepted:        false,
			Message:         result.Message,
			CustomerMessage: result.CustomerMessage,
		}, nil
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, err
	}
	if err := s.correlations.Put(ctx, result.CheckoutRequestID, tx.ID.String()); err != nil {
		// The stored row carries the same mapping, so this only degrades the
		// fast-path lookup.
		s.logger.Warn().Err(err).
			Str("checkout_request_id", result.CheckoutRequestID).
			Msg("failed to cache checkout correlation")
	}

	s.metrics.PushInitiationsTotal.WithLabelValues("accepted").Inc()
	s.metrics.PushInitiationSeconds.WithLabelValues("accepted").Observe(time.Since(start).Seconds())
	s.metrics.PendingTransactions.Inc()
	s.logger.Info().
		Str("transaction_id", tx.ID.String()).
		Str("checkout_request_id", result.CheckoutRequestID).
		Str("phone_number", phone).
		Float64("amount", req.Amount).
		Msg("stk push accepted")

	return &InitiatePaymentResponse{
		Transaction:     tx,
		Accepted:        true,
		Message:         result.Message,
		CustomerMessage: result.CustomerMessage,
	}, nil
}

// GetStatus resolves the current settlement state for a CheckoutRequestID.
// A stored terminal record answers directly; a pending one triggers a live
// provider poll, and a terminal poll result settles the stored record the
// same way a callback would. Amount and phone number always come from the
// stored record because the provider's query endpoint does not report them.
func (s *PaymentService) GetStatus(ctx context.Context, checkoutRequestID string) (*StatusView, error) {
	stored, err := s.transactions.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil && !errors.Is(err, domainErrors.ErrTransactionNotFound) {
		return nil, err
	}

	if stored != nil && stored.IsTerminal() {
		return viewFromTransaction(stored), nil
	}

	polled, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}
	s.metrics.StatusQueriesTotal.WithLabelValues(string(polled.Status)).Inc()

	if stored == nil {
		return viewFromPoll(checkoutRequestID, polled), nil
	}
	if polled.Status == daraja.StatusPending {
		return viewFromTransaction(stored), nil
	}

	if err := s.settle(ctx, stored, polled, nil); err != nil {
		if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
			// A callback settled the transaction between our read and write.
			refreshed, rerr := s.transactions.GetByCheckoutRequestID(ctx, checkoutRequestID)
			if rerr == nil {
				return viewFromTransaction(refreshed), nil
			}
		}
		return nil, err
	}
	return viewFromTransaction(stored), nil
}

// HandleCallback applies a provider-pushed settlement to the stored
// transaction. The transform itself never reaches the network; all failure
// modes here are internal, and the HTTP boundary acknowledges Daraja's
// delivery regardless of what this returns. Replayed callbacks for an
// already-settled transaction are acknowledged without a second write.
func (s *PaymentService) HandleCallback(ctx context.Context, payload []byte) (*daraja.TransactionStatus, error) {
	status, err := daraja.ProcessCallback(payload)
	if err != nil {
		s.metrics.CallbacksTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	s.metrics.CallbacksTotal.WithLabelValues(string(status.Status)).Inc()

	stored := s.findByCheckoutRequestID(ctx, status.TransactionID)
	if stored == nil {
		s.logger.Warn().
			Str("checkout_request_id", status.TransactionID).
			Msg("callback for unknown transaction")
		return status, nil
	}
	if stored.IsTerminal() {
		s.logger.Info().
			Str("checkout_request_id", status.TransactionID).
			Str("status", string(stored.Status)).
			Msg("callback replay for settled transaction, skipping")
		return status, nil
	}

	if err := s.settle(ctx, stored, status, payload); err != nil {
		if errors.Is(err, domainErrors.ErrInvalidStateTransition) {
			// A concurrent poll settled the row between our read and write.
			// The outcome is already recorded and queued, so treat this like
			// a replayed callback.
			s.logger.Info().
				Str("checkout_request_id", status.TransactionID).
				Msg("callback lost settle race, already settled")
			return status, nil
		}
		return nil, err
	}
	return status, nil
}

// findByCheckoutRequestID loads the transaction a callback refers to, falling
// back to the correlation cache when the direct lookup misses.
func (s *PaymentService) findByCheckoutRequestID(ctx context.Context, checkoutRequestID string) *transaction.Transaction {
	stored, err := s.transactions.GetByCheckoutRequestID(ctx, checkoutRequestID)
	if err == nil {
		return stored
	}
	if !errors.Is(err, domainErrors.ErrTransactionNotFound) {
		s.logger.Error().Err(err).
			Str("checkout_request_id", checkoutRequestID).
			Msg("transaction lookup failed")
		return nil
	}

	txID, err := s.correlations.Get(ctx, checkoutRequestID)
	if err != nil {
		return nil
	}
	id, err := uuid.Parse(txID)
	if err != nil {
		return nil
	}
	stored, err = s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil
	}
	return stored
}

// settle transitions the transaction to its terminal state and enqueues the
// merchant notification in the same database transaction.
func (s *PaymentService) settle(ctx context.Context, tx *transaction.Transaction, outcome *daraja.TransactionStatus, rawPayload []byte) error {
	var eventType string
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		switch outcome.Status {
		case daraja.StatusSuccess:
			if err := tx.MarkSuccess(outcome.MpesaReceiptNumber, outcome.TransactionDate); err != nil {
				return err
			}
			eventType = outbox.EventPaymentSuccess
		case daraja.StatusCancelled:
			if err := tx.MarkCancelled(outcome.ErrorMessage); err != nil {
				return err
			}
			eventType = outbox.EventPaymentCancelled
		default:
			if err := tx.MarkFailed(outcome.ErrorMessage); err != nil {
				return err
			}
			eventType = outbox.EventPaymentFailed
		}
		if rawPayload != nil {
			tx.SetCallbackPayload(rawPayload)
		}
		if err := s.transactions.Update(txCtx, tx); err != nil {
			return err
		}
		return s.outboxRepo.Insert(txCtx, outbox.NewEntry(tx.ID, eventType, s.notificationPayload(tx)))
	})
	if err != nil {
		return err
	}

	s.metrics.PendingTransactions.Dec()
	s.logger.Info().
		Str("transaction_id", tx.ID.String()).
		Str("checkout_request_id", tx.CheckoutRequestID).
		Str("status", string(tx.Status)).
		Msg("transaction settled")
	return nil
}

func (s *PaymentService) notificationPayload(tx *transaction.Transaction) map[string]any {
	payload := map[string]any{
		"transaction_id":      tx.ID.String(),
		"checkout_request_id": tx.CheckoutRequestID,
		"merchant_request_id": tx.MerchantRequestID,
		"status":              string(tx.Status),
		"amount":              tx.Amount,
		"phone_number":        tx.PhoneNumber,
		"account_reference":   tx.AccountReference,
	}
	if tx.MpesaReceiptNumber != nil {
		payload["mpesa_receipt_number"] = *tx.MpesaReceiptNumber
	}
	if tx.TransactionDate != nil {
		payload["transaction_date"] = *tx.TransactionDate
	}
	if tx.ErrorMessage != nil {
		payload["error_message"] = *tx.ErrorMessage
	}
	if tx.WebhookURL != nil {
		payload["webhook_url"] = *tx.WebhookURL
	}
	return payload
}

func replayResponse(tx *transaction.Transaction) *InitiatePaymentResponse {
	resp := &InitiatePaymentResponse{
		Transaction: tx,
		Accepted:    tx.Status == transaction.StatusPending || tx.Status == transaction.StatusSuccess,
		Message:     "Payment request sent successfully",
		Replayed:    true,
	}
	if tx.ErrorMessage != nil {
		resp.Message = *tx.ErrorMessage
	}
	return resp
}

func viewFromTransaction(tx *transaction.Transaction) *StatusView {
	v := &StatusView{
		TransactionID:     tx.ID.String(),
		CheckoutRequestID: tx.CheckoutRequestID,
		MerchantRequestID: tx.MerchantRequestID,
		Status:            tx.Status,
		Amount:            tx.Amount,
		PhoneNumber:       tx.PhoneNumber,
		AccountReference:  tx.AccountReference,
	}
	if tx.MpesaReceiptNumber != nil {
		v.MpesaReceiptNumber = *tx.MpesaReceiptNumber
	}
	if tx.TransactionDate != nil {
		v.TransactionDate = *tx.TransactionDate
	}
	if tx.ErrorMessage != nil {
		v.ErrorMessage = *tx.ErrorMessage
	}
	return v
}

// viewFromPoll covers a poll for a CheckoutRequestID this gateway has no
// record of. Amount and phone number stay zero: the query endpoint does not
// report them and there is no stored row to backfill from.
func viewFromPoll(checkoutRequestID string, polled *daraja.TransactionStatus) *StatusView {
	return &StatusView{
		CheckoutRequestID:  checkoutRequestID,
		Status:             transaction.Status(polled.Status),
		MpesaReceiptNumber: polled.MpesaReceiptNumber,
		TransactionDate:    polled.TransactionDate,
		ErrorMessage:       polled.ErrorMessage,
	}
}
