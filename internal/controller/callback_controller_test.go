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

	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
	"github.com/pesaflow/mpesa-gateway/internal/service"
	"github.com/pesaflow/mpesa-gateway/internal/testutil"
)

type callbackFixture struct {
	repo       *testutil.MockTransactionRepository
	outboxRepo *testutil.MockOutboxRepository
	router     *chi.Mux
}

func newCallbackFixture(t *testing.T) *callbackFixture {
	t.Helper()
	f := &callbackFixture{
		repo:       testutil.NewMockTransactionRepository(),
		outboxRepo: &testutil.MockOutboxRepository{},
	}
	svc := service.NewPaymentService(
		f.repo,
		f.outboxRepo,
		testutil.NewMockCorrelationStore(),
		testutil.NewMockTransactionManager(),
		&testutil.MockGateway{},
		testutil.Metrics(t),
		zerolog.Nop(),
	)
	h := NewCallbackController(svc, zerolog.Nop())

	r := chi.NewRouter()
	r.Post("/callbacks/mpesa", h.HandleMpesaCallback)
	f.router = r
	return f
}

func postCallback(t *testing.T, router *chi.Mux, payload []byte) (int, CallbackAck) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callbacks/mpesa", bytes.NewBuffer(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var ack CallbackAck
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ack))
	return w.Code, ack
}

func TestHandleMpesaCallback_Success(t *testing.T) {
	f := newCallbackFixture(t)
	tx := testutil.PendingTransaction(t, "ws_CO_success")
	f.repo.Add(tx)

	code, ack := postCallback(t, f.router, testutil.SuccessCallback("ws_CO_success", 100))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, "Accepted", ack.ResultDesc)

	stored, err := f.repo.GetByCheckoutRequestID(context.Background(), "ws_CO_success")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSuccess, stored.Status)
	assert.Len(t, f.outboxRepo.Entries, 1)
}

func TestHandleMpesaCallback_CancelledByUser(t *testing.T) {
	f := newCallbackFixture(t)
	tx := testutil.PendingTransaction(t, "ws_CO_cancel")
	f.repo.Add(tx)

	code, ack := postCallback(t, f.router, testutil.FailureCallback("ws_CO_cancel", 1032, "Request cancelled by user"))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, ack.ResultCode)

	stored, err := f.repo.GetByCheckoutRequestID(context.Background(), "ws_CO_cancel")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCancelled, stored.Status)
}

func TestHandleMpesaCallback_UnknownTransactionStillAcks(t *testing.T) {
	f := newCallbackFixture(t)

	code, ack := postCallback(t, f.router, testutil.SuccessCallback("ws_CO_unknown", 100))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, ack.ResultCode)
	assert.Empty(t, f.outboxRepo.Entries)
}

func TestHandleMpesaCallback_MalformedPayloadAcksFailed(t *testing.T) {
	f := newCallbackFixture(t)

	code, ack := postCallback(t, f.router, []byte("{not json"))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, ack.ResultCode)
	assert.Equal(t, "Failed", ack.ResultDesc)
}

func TestHandleMpesaCallback_PanicAcksFailed(t *testing.T) {
	f := newCallbackFixture(t)
	f.repo.GetByCheckoutRequestIDFunc = func(_ context.Context, _ string) (*transaction.Transaction, error) {
		panic("storage exploded")
	}

	code, ack := postCallback(t, f.router, testutil.SuccessCallback("ws_CO_panic", 100))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, ack.ResultCode)
}

func TestHandleMpesaCallback_ReplayDoesNotDoubleSettle(t *testing.T) {
	f := newCallbackFixture(t)
	tx := testutil.PendingTransaction(t, "ws_CO_replay")
	f.repo.Add(tx)

	payload := testutil.SuccessCallback("ws_CO_replay", 100)
	code, ack := postCallback(t, f.router, payload)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0, ack.ResultCode)

	code, ack = postCallback(t, f.router, payload)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, ack.ResultCode)

	// Only the first delivery produces a merchant notification.
	assert.Len(t, f.outboxRepo.Entries, 1)
}
