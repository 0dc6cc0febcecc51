package controller

import (
	"time"

	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
	"github.com/pesaflow/mpesa-gateway/internal/service"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (validation tags, field naming).
// Controllers convert these to service layer DTOs before calling business logic.

// CreatePaymentRequest holds the input for initiating an STK push.
// AccountReference and TransactionDesc limits are Daraja's own field limits.
type CreatePaymentRequest struct {
	Amount           float64 `json:"amount" validate:"required,gt=0"`
	PhoneNumber      string  `json:"phone_number" validate:"required"`
	AccountReference string  `json:"account_reference" validate:"required,max=12"`
	TransactionDesc  string  `json:"transaction_desc" validate:"required,max=13"`
	WebhookURL       string  `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

// --- Response DTOs ---

// PaymentResponse is the synchronous acknowledgment of an initiation.
// Accepted means the push reached the customer's phone, not that they paid.
type PaymentResponse struct {
	TransactionID     string    `json:"transaction_id"`
	MerchantRequestID string    `json:"merchant_request_id,omitempty"`
	CheckoutRequestID string    `json:"checkout_request_id,omitempty"`
	Status            string    `json:"status"`
	Accepted          bool      `json:"accepted"`
	Amount            float64   `json:"amount"`
	PhoneNumber       string    `json:"phone_number"`
	AccountReference  string    `json:"account_reference"`
	Message           string    `json:"message,omitempty"`
	CustomerMessage   string    `json:"customer_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// FromInitiation converts a service initiation response to its HTTP shape.
func FromInitiation(resp *service.InitiatePaymentResponse) *PaymentResponse {
	tx := resp.Transaction
	return &PaymentResponse{
		TransactionID:     tx.ID.String(),
		MerchantRequestID: tx.MerchantRequestID,
		CheckoutRequestID: tx.CheckoutRequestID,
		Status:            string(tx.Status),
		Accepted:          resp.Accepted,
		Amount:            tx.Amount,
		PhoneNumber:       tx.PhoneNumber,
		AccountReference:  tx.AccountReference,
		Message:           resp.Message,
		CustomerMessage:   resp.CustomerMessage,
		CreatedAt:         tx.CreatedAt,
	}
}

// StatusResponse is the settlement state of a transaction.
type StatusResponse struct {
	TransactionID      string  `json:"transaction_id,omitempty"`
	MerchantRequestID  string  `json:"merchant_request_id,omitempty"`
	CheckoutRequestID  string  `json:"checkout_request_id"`
	Status             string  `json:"status"`
	Amount             float64 `json:"amount"`
	PhoneNumber        string  `json:"phone_number,omitempty"`
	AccountReference   string  `json:"account_reference,omitempty"`
	MpesaReceiptNumber string  `json:"mpesa_receipt_number,omitempty"`
	TransactionDate    string  `json:"transaction_date,omitempty"`
	ErrorMessage       string  `json:"error_message,omitempty"`
}

// FromStatusView converts a service status view to its HTTP shape.
func FromStatusView(v *service.StatusView) *StatusResponse {
	return &StatusResponse{
		TransactionID:      v.TransactionID,
		MerchantRequestID:  v.MerchantRequestID,
		CheckoutRequestID:  v.CheckoutRequestID,
		Status:             string(v.Status),
		Amount:             v.Amount,
		PhoneNumber:        v.PhoneNumber,
		AccountReference:   v.AccountReference,
		MpesaReceiptNumber: v.MpesaReceiptNumber,
		TransactionDate:    v.TransactionDate,
		ErrorMessage:       v.ErrorMessage,
	}
}

// TransactionResponse represents a stored transaction in list responses.
type TransactionResponse struct {
	TransactionID      string     `json:"transaction_id"`
	CheckoutRequestID  string     `json:"checkout_request_id,omitempty"`
	Status             string     `json:"status"`
	Amount             float64    `json:"amount"`
	PhoneNumber        string     `json:"phone_number"`
	AccountReference   string     `json:"account_reference"`
	MpesaReceiptNumber *string    `json:"mpesa_receipt_number,omitempty"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// FromTransaction converts a stored transaction to its HTTP shape.
func FromTransaction(tx *transaction.Transaction) *TransactionResponse {
	return &TransactionResponse{
		TransactionID:      tx.ID.String(),
		CheckoutRequestID:  tx.CheckoutRequestID,
		Status:             string(tx.Status),
		Amount:             tx.Amount,
		PhoneNumber:        tx.PhoneNumber,
		AccountReference:   tx.AccountReference,
		MpesaReceiptNumber: tx.MpesaReceiptNumber,
		ErrorMessage:       tx.ErrorMessage,
		CreatedAt:          tx.CreatedAt,
		CompletedAt:        tx.CompletedAt,
	}
}

// CallbackAck is the fixed acknowledgment body Daraja expects. Always sent
// with HTTP 200; a non-zero ResultCode only signals an internal processing
// failure, it must not trigger provider-side retries.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
