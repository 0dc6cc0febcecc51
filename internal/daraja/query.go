package daraja

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
)

// stillProcessingCode is the error code Daraja returns while a push has not
// yet been resolved by the customer.
const stillProcessingCode = "500.001.1001"

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	// ResultCode is numeric but arrives as a string on this endpoint.
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// QueryStatus polls Daraja for the outcome of an earlier push. The request
// is signed with a fresh timestamp. While the customer has not acted yet,
// Daraja answers with a "still being processed" error body; that is returned
// as a pending status so callers can keep polling. Amount and phone number
// are not reported by this endpoint and stay zero-valued. Transport and
// protocol failures fail with ErrStatusQuery.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*TransactionStatus, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainErrors.ErrStatusQuery, err)
	}

	password, timestamp := Sign(c.cfg.ShortCode, c.cfg.Passkey, c.now().In(c.location))
	payload := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp stkQueryResponse
	if err := c.postJSON(ctx, stkQueryPath, token, payload, &resp); err != nil {
		var ue *upstreamError
		if errors.As(err, &ue) && ue.Code == stillProcessingCode {
			return &TransactionStatus{
				TransactionID: checkoutRequestID,
				Status:        StatusPending,
			}, nil
		}
		return nil, fmt.Errorf("%w: %w", domainErrors.ErrStatusQuery, err)
	}

	if resp.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: query not processed (%s: %s)",
			domainErrors.ErrStatusQuery, resp.ResponseCode, resp.ResponseDescription)
	}

	code, err := strconv.Atoi(resp.ResultCode)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable result code %q", domainErrors.ErrStatusQuery, resp.ResultCode)
	}

	status := &TransactionStatus{
		TransactionID: resp.CheckoutRequestID,
		Status:        StatusFromResultCode(code),
	}
	if status.TransactionID == "" {
		status.TransactionID = checkoutRequestID
	}
	if status.Status != StatusSuccess {
		status.ErrorMessage = resp.ResultDesc
	}

	c.logger.Debug().
		Str("checkout_request_id", checkoutRequestID).
		Str("status", string(status.Status)).
		Msg("stk push status queried")

	return status, nil
}
