package daraja

import (
	"encoding/json"
	"fmt"
	"strconv"

	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
)

// CallbackEnvelope is the payload Daraja POSTs to the callback URL after a
// push resolves.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the inner callback record.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is a flat list of name/value items, only present on
// successful transactions.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is one metadata entry. Values arrive as JSON strings or
// numbers depending on the item.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// Metadata item names used by the STK callback.
const (
	itemAmount             = "Amount"
	itemMpesaReceiptNumber = "MpesaReceiptNumber"
	itemTransactionDate    = "TransactionDate"
	itemPhoneNumber        = "PhoneNumber"
)

// ProcessCallback transforms a raw callback payload into a TransactionStatus.
// It makes no network calls. Decoding failure is the only error path; for a
// structurally valid envelope the transform is total — missing metadata items
// leave the corresponding fields zero-valued. The HTTP boundary receiving the
// callback must acknowledge delivery to Daraja regardless of what this
// function returns.
func ProcessCallback(payload []byte) (*TransactionStatus, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding stk callback: %w", domainErrors.ErrFormat, err)
	}

	cb := env.Body.STKCallback
	status := &TransactionStatus{
		TransactionID: cb.CheckoutRequestID,
		Status:        StatusFromResultCode(cb.ResultCode),
	}

	if status.Status == StatusSuccess {
		status.Amount = cb.CallbackMetadata.floatValue(itemAmount)
		status.PhoneNumber = cb.CallbackMetadata.stringValue(itemPhoneNumber)
		status.MpesaReceiptNumber = cb.CallbackMetadata.stringValue(itemMpesaReceiptNumber)
		status.TransactionDate = cb.CallbackMetadata.stringValue(itemTransactionDate)
	} else {
		status.ErrorMessage = cb.ResultDesc
	}

	return status, nil
}

func (m *CallbackMetadata) floatValue(name string) float64 {
	if m == nil {
		return 0
	}
	for _, item := range m.Item {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func (m *CallbackMetadata) stringValue(name string) string {
	if m == nil {
		return ""
	}
	for _, item := range m.Item {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
