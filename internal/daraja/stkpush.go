package daraja

import (
	"context"
	"fmt"
	"strconv"

	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
)

// initiatedMessage is the merchant-facing message for an accepted push.
const initiatedMessage = "Payment request sent successfully"

// PaymentRequest is one merchant-originated push request. PhoneNumber must
// already be in canonical 254 form and Amount inside the Daraja limits; see
// the msisdn package.
type PaymentRequest struct {
	Amount           float64
	PhoneNumber      string
	AccountReference string
	TransactionDesc  string
}

// STKPushResult is Daraja's synchronous acknowledgment of a push request.
// Success means the push was accepted and sent to the customer's phone, not
// that the customer paid; settlement arrives later via callback or polling.
type STKPushResult struct {
	Success           bool
	MerchantRequestID string
	CheckoutRequestID string
	ResponseCode      string
	Message           string
	CustomerMessage   string
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiatePayment asks Daraja to push a payment prompt to the customer's
// phone. A ResponseCode of "0" yields Success=true with the correlation
// identifiers; any other code is a provider-reported rejection returned as a
// normal result, not an error. Transport and protocol failures fail with
// ErrPaymentInitiation.
func (c *Client) InitiatePayment(ctx context.Context, req PaymentRequest) (*STKPushResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainErrors.ErrPaymentInitiation, err)
	}

	password, timestamp := Sign(c.cfg.ShortCode, c.cfg.Passkey, c.now().In(c.location))
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            strconv.FormatFloat(req.Amount, 'f', -1, 64),
		PartyA:            req.PhoneNumber,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
	}

	var resp stkPushResponse
	if err := c.postJSON(ctx, stkPushPath, token, payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", domainErrors.ErrPaymentInitiation, err)
	}

	result := &STKPushResult{
		Success:           resp.ResponseCode == "0",
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		ResponseCode:      resp.ResponseCode,
		CustomerMessage:   resp.CustomerMessage,
	}
	if result.Success {
		result.Message = initiatedMessage
	} else {
		result.Message = resp.ResponseDescription
	}

	c.logger.Info().
		Str("checkout_request_id", resp.CheckoutRequestID).
		Str("merchant_request_id", resp.MerchantRequestID).
		Str("response_code", resp.ResponseCode).
		Msg("stk push initiated")

	return result, nil
}
