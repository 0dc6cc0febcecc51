package controller

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pesaflow/mpesa-gateway/internal/service"
)

const maxCallbackBytes = 1 << 20

// CallbackController receives Daraja's asynchronous settlement callbacks.
//
// The provider contract is acknowledge-always: every delivery gets HTTP 200
// with the fixed ack body, whatever happens internally. A non-200 (or a
// panic surfacing as 500) would put Daraja into redelivery, so this handler
// catches everything.
type CallbackController struct {
	paymentService *service.PaymentService
	logger         zerolog.Logger
}

// NewCallbackController creates a new CallbackController.
func NewCallbackController(paymentService *service.PaymentService, logger zerolog.Logger) *CallbackController {
	return &CallbackController{
		paymentService: paymentService,
		logger:         logger,
	}
}

// HandleMpesaCallback handles POST /callbacks/mpesa.
func (h *CallbackController) HandleMpesaCallback(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error().Interface("panic", rec).Msg("panic while processing mpesa callback")
			writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 1, ResultDesc: "Failed"})
		}
	}()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read mpesa callback body")
		writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 1, ResultDesc: "Failed"})
		return
	}

	status, err := h.paymentService.HandleCallback(r.Context(), payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to process mpesa callback")
		writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 1, ResultDesc: "Failed"})
		return
	}

	h.logger.Info().
		Str("checkout_request_id", status.TransactionID).
		Str("status", string(status.Status)).
		Msg("mpesa callback acknowledged")
	writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}
