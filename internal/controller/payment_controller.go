package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
	"github.com/pesaflow/mpesa-gateway/internal/service"
)

// PaymentController handles merchant-facing payment requests.
type PaymentController struct {
	paymentService  *service.PaymentService
	transactionRepo transaction.Repository
}

// NewPaymentController creates a new PaymentController.
func NewPaymentController(
	paymentService *service.PaymentService,
	transactionRepo transaction.Repository,
) *PaymentController {
	return &PaymentController{
		paymentService:  paymentService,
		transactionRepo: transactionRepo,
	}
}

// CreatePayment handles POST /api/v1/payments. A 202 means the push was
// queued on the customer's phone and settlement will arrive later; a 200
// with accepted=false carries a synchronous provider rejection.
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.paymentService.InitiatePayment(r.Context(), service.InitiatePaymentRequest{
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
		Amount:           req.Amount,
		PhoneNumber:      req.PhoneNumber,
		AccountReference: req.AccountReference,
		TransactionDesc:  req.TransactionDesc,
		WebhookURL:       req.WebhookURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if !resp.Accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, FromInitiation(resp))
}

// GetStatus handles GET /api/v1/payments/{checkoutRequestID}.
func (h *PaymentController) GetStatus(w http.ResponseWriter, r *http.Request) {
	checkoutRequestID := chi.URLParam(r, "checkoutRequestID")
	if checkoutRequestID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing checkout request id", Code: "invalid_id"})
		return
	}

	view, err := h.paymentService.GetStatus(r.Context(), checkoutRequestID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromStatusView(view))
}

// ListPayments handles GET /api/v1/payments.
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := transaction.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := transaction.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("phone_number"); s != "" {
		filter.PhoneNumber = &s
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	filter.SortBy = r.URL.Query().Get("sort_by")
	filter.SortOrder = r.URL.Query().Get("sort_order")

	transactions, err := h.transactionRepo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*TransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp = append(resp, FromTransaction(tx))
	}
	writeJSON(w, http.StatusOK, resp)
}
