package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/pesaflow/mpesa-gateway/internal/domain/errors"
	"github.com/pesaflow/mpesa-gateway/internal/msisdn"
)

// Status represents the transaction status in the state machine
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Daraja field limits for the push request.
const (
	MaxAccountReferenceLen = 12
	MaxTransactionDescLen  = 13
)

// Transaction represents one STK push payment from initiation to settlement.
// CheckoutRequestID is the correlation handle Daraja echoes back in callbacks
// and status queries.
type Transaction struct {
	ID                 uuid.UUID
	IdempotencyKey     *string
	MerchantRequestID  string
	CheckoutRequestID  string
	AccountReference   string
	TransactionDesc    string
	Amount             float64
	PhoneNumber        string
	Status             Status
	MpesaReceiptNumber *string
	TransactionDate    *string
	ErrorMessage       *string
	CallbackPayload    []byte
	WebhookURL         *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// New creates a pending transaction. PhoneNumber must already be in the
// canonical 254 form.
func New(amount float64, phoneNumber, accountReference, transactionDesc string) (*Transaction, error) {
	if !msisdn.ValidateAmount(amount) {
		return nil, errors.NewValidationError("amount", "must be between 1 and 70000")
	}
	if phoneNumber == "" {
		return nil, errors.NewValidationError("phone_number", "cannot be empty")
	}
	if accountReference == "" {
		return nil, errors.NewValidationError("account_reference", "cannot be empty")
	}
	if len(accountReference) > MaxAccountReferenceLen {
		return nil, errors.NewValidationError("account_reference", "must be at most 12 characters")
	}
	if transactionDesc == "" {
		return nil, errors.NewValidationError("transaction_desc", "cannot be empty")
	}
	if len(transactionDesc) > MaxTransactionDescLen {
		return nil, errors.NewValidationError("transaction_desc", "must be at most 13 characters")
	}

	now := time.Now()
	return &Transaction{
		ID:               uuid.New(),
		AccountReference: accountReference,
		TransactionDesc:  transactionDesc,
		Amount:           amount,
		PhoneNumber:      phoneNumber,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// SetCorrelation records the identifiers returned by a successful push.
func (t *Transaction) SetCorrelation(merchantRequestID, checkoutRequestID string) {
	t.MerchantRequestID = merchantRequestID
	t.CheckoutRequestID = checkoutRequestID
	t.UpdatedAt = time.Now()
}

// SetIdempotencyKey attaches the merchant's idempotency key.
func (t *Transaction) SetIdempotencyKey(key string) {
	if key == "" {
		return
	}
	t.IdempotencyKey = &key
}

// SetWebhookURL attaches the merchant webhook target for outcome delivery.
func (t *Transaction) SetWebhookURL(url string) {
	if url == "" {
		return
	}
	t.WebhookURL = &url
}

// SetCallbackPayload captures the raw callback body for audit.
func (t *Transaction) SetCallbackPayload(payload []byte) {
	t.CallbackPayload = payload
}

// CanTransitionTo checks if the transaction can transition to the given status
func (t *Transaction) CanTransitionTo(newStatus Status) bool {
	transitions := map[Status][]Status{
		StatusPending: {
			StatusSuccess,
			StatusFailed,
			StatusCancelled,
		},
		StatusSuccess:   {}, // Terminal state
		StatusFailed:    {}, // Terminal state
		StatusCancelled: {}, // Terminal state
	}

	allowedTransitions, exists := transitions[t.Status]
	if !exists {
		return false
	}

	for _, allowed := range allowedTransitions {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo transitions the transaction to a new status
func (t *Transaction) TransitionTo(newStatus Status) error {
	if !t.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(t.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	t.Status = newStatus
	t.UpdatedAt = time.Now()

	if newStatus == StatusSuccess || newStatus == StatusFailed || newStatus == StatusCancelled {
		now := time.Now()
		t.CompletedAt = &now
	}

	return nil
}

// MarkSuccess transitions the transaction to success and records the receipt
// details from the callback. Empty values leave the fields unset.
func (t *Transaction) MarkSuccess(receiptNumber, transactionDate string) error {
	if err := t.TransitionTo(StatusSuccess); err != nil {
		return err
	}
	if receiptNumber != "" {
		t.MpesaReceiptNumber = &receiptNumber
	}
	if transactionDate != "" {
		t.TransactionDate = &transactionDate
	}
	return nil
}

// MarkFailed transitions the transaction to failed status
func (t *Transaction) MarkFailed(errorMsg string) error {
	if err := t.TransitionTo(StatusFailed); err != nil {
		return err
	}
	if errorMsg != "" {
		t.ErrorMessage = &errorMsg
	}
	return nil
}

// MarkCancelled transitions the transaction to cancelled status
func (t *Transaction) MarkCancelled(errorMsg string) error {
	if err := t.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	if errorMsg != "" {
		t.ErrorMessage = &errorMsg
	}
	return nil
}

// IsTerminal checks if the transaction is in a terminal state
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSuccess ||
		t.Status == StatusFailed ||
		t.Status == StatusCancelled
}
