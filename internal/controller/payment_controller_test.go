package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesaflow/mpesa-gateway/internal/daraja"
	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
	"github.com/pesaflow/mpesa-gateway/internal/service"
	"github.com/pesaflow/mpesa-gateway/internal/testutil"
)

type controllerFixture struct {
	repo    *testutil.MockTransactionRepository
	gateway *testutil.MockGateway
	router  *chi.Mux
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		repo:    testutil.NewMockTransactionRepository(),
		gateway: &testutil.MockGateway{},
	}
	svc := service.NewPaymentService(
		f.repo,
		&testutil.MockOutboxRepository{},
		testutil.NewMockCorrelationStore(),
		testutil.NewMockTransactionManager(),
		f.gateway,
		testutil.Metrics(t),
		zerolog.Nop(),
	)
	h := NewPaymentController(svc, f.repo)

	r := chi.NewRouter()
	r.Post("/api/v1/payments", h.CreatePayment)
	r.Get("/api/v1/payments/{checkoutRequestID}", h.GetStatus)
	r.Get("/api/v1/payments", h.ListPayments)
	f.router = r
	return f
}

func createPaymentBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(CreatePaymentRequest{
		Amount:           100,
		PhoneNumber:      "0712345678",
		AccountReference: "ORDER123",
		TransactionDesc:  "Payment",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestCreatePayment_Accepted(t *testing.T) {
	f := newControllerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Accepted)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "254712345678", resp.PhoneNumber)
	assert.NotEmpty(t, resp.TransactionID)
	assert.NotEmpty(t, resp.CheckoutRequestID)
}

func TestCreatePayment_ProviderRejection(t *testing.T) {
	f := newControllerFixture(t)
	f.gateway.InitiatePaymentFunc = func(_ context.Context, _ daraja.PaymentRequest) (*daraja.STKPushResult, error) {
		return &daraja.STKPushResult{
			Success:      false,
			ResponseCode: "1",
			Message:      "Insufficient merchant configuration",
		}, nil
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	// Rejections are an outcome, not a transport failure.
	require.Equal(t, http.StatusOK, w.Code)

	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Accepted)
	assert.Equal(t, "failed", resp.Status)
}

func TestCreatePayment_ValidationError(t *testing.T) {
	f := newControllerFixture(t)

	body, err := json.Marshal(CreatePaymentRequest{
		Amount:      100,
		PhoneNumber: "0712345678",
		// account_reference and transaction_desc missing
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "validation_error", resp.Code)
	assert.Empty(t, f.gateway.InitiateReqs)
}

func TestCreatePayment_InvalidPhone(t *testing.T) {
	f := newControllerFixture(t)

	body, err := json.Marshal(CreatePaymentRequest{
		Amount:           100,
		PhoneNumber:      "12345",
		AccountReference: "ORDER123",
		TransactionDesc:  "Payment",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "invalid_format", resp.Code)
}

func TestCreatePayment_MalformedJSON(t *testing.T) {
	f := newControllerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePayment_ProviderUnavailable(t *testing.T) {
	f := newControllerFixture(t)
	f.gateway.InitiatePaymentFunc = func(_ context.Context, _ daraja.PaymentRequest) (*daraja.STKPushResult, error) {
		return nil, domainErrors.ErrProviderUnavailable
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", createPaymentBody(t))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "provider_unavailable", resp.Code)
}

func TestGetStatus_Settled(t *testing.T) {
	f := newControllerFixture(t)

	tx := testutil.PendingTransaction(t, "ws_CO_settled")
	require.NoError(t, tx.MarkSuccess("NLJ7RT61SV", "20191219102115"))
	f.repo.Add(tx)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/ws_CO_settled", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "NLJ7RT61SV", resp.MpesaReceiptNumber)
	// Settled rows answer from storage without a provider round trip.
	assert.Empty(t, f.gateway.QueryReqs)
}

func TestGetStatus_UnknownTransaction(t *testing.T) {
	f := newControllerFixture(t)
	f.gateway.QueryStatusFunc = func(_ context.Context, _ string) (*daraja.TransactionStatus, error) {
		return nil, domainErrors.ErrTransactionNotFound
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/ws_CO_missing", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "not_found", resp.Code)
}

func TestListPayments_StatusFilter(t *testing.T) {
	f := newControllerFixture(t)

	pending := testutil.PendingTransaction(t, "ws_CO_pending")
	f.repo.Add(pending)
	settled := testutil.PendingTransaction(t, "ws_CO_settled")
	require.NoError(t, settled.MarkSuccess("NLJ7RT61SV", "20191219102115"))
	f.repo.Add(settled)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments?status=pending", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp []*TransactionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, string(transaction.StatusPending), resp[0].Status)
	assert.Equal(t, "ws_CO_pending", resp[0].CheckoutRequestID)
}
