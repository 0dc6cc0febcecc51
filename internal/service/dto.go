package service

import (
	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
)

// InitiatePaymentRequest holds the input for initiating an STK push.
// Controllers convert their HTTP DTOs to this type.
type InitiatePaymentRequest struct {
	IdempotencyKey   string
	Amount           float64
	PhoneNumber      string
	AccountReference string
	TransactionDesc  string
	WebhookURL       string
}

// InitiatePaymentResponse holds the result of initiating an STK push.
// Accepted reflects Daraja's synchronous acknowledgment only: the push was
// sent to the customer's phone, not that the customer paid.
type InitiatePaymentResponse struct {
	Transaction     *transaction.Transaction
	Accepted        bool
	Message         string
	CustomerMessage string
	Replayed        bool
}

// StatusView is the merged view of a transaction's settlement state: the
// stored record overlaid with a live provider poll when still pending. The
// provider's query endpoint does not report amount or phone number, so those
// always come from the stored record.
type StatusView struct {
	TransactionID      string
	CheckoutRequestID  string
	MerchantRequestID  string
	Status             transaction.Status
	Amount             float64
	PhoneNumber        string
	AccountReference   string
	MpesaReceiptNumber string
	TransactionDate    string
	ErrorMessage       string
}
