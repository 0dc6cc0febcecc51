package testutil

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pesaflow/mpesa-gateway/internal/domain/transaction"
	"github.com/pesaflow/mpesa-gateway/internal/infrastructure/observability"
)

// PendingTransaction builds a pending transaction with Daraja correlation
// identifiers already recorded, as it looks after an accepted push.
func PendingTransaction(t *testing.T, checkoutRequestID string) *transaction.Transaction {
	t.Helper()
	tx, err := transaction.New(100, "254712345678", "ORDER123", "Payment")
	if err != nil {
		t.Fatalf("build transaction fixture: %v", err)
	}
	tx.SetCorrelation("29115-34620561-1", checkoutRequestID)
	return tx
}

// Metrics returns a Metrics set registered against a throwaway registry, so
// parallel tests never collide on collector names.
func Metrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

// SuccessCallback is a structurally complete Daraja callback for a paid
// transaction.
func SuccessCallback(checkoutRequestID string, amount float64) []byte {
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": %q,
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": %g},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "TransactionDate", "Value": 20191219102115},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`, checkoutRequestID, amount))
}

// FailureCallback is a Daraja callback carrying a non-zero result code.
func FailureCallback(checkoutRequestID string, resultCode int, resultDesc string) []byte {
	return []byte(fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": %q,
				"ResultCode": %d,
				"ResultDesc": %q
			}
		}
	}`, checkoutRequestID, resultCode, resultDesc))
}
