package daraja

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/pesaflow/mpesa-gateway/internal/domain/errors"
)

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 100},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

func TestProcessCallback_SuccessExtractsMetadata(t *testing.T) {
	status, err := ProcessCallback([]byte(successCallback))
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", status.TransactionID)
	assert.Equal(t, StatusSuccess, status.Status)
	assert.Equal(t, float64(100), status.Amount)
	assert.Equal(t, "254708374149", status.PhoneNumber)
	assert.Equal(t, "NLJ7RT61SV", status.MpesaReceiptNumber)
	assert.Equal(t, "20191219102115", status.TransactionDate)
	assert.Empty(t, status.ErrorMessage)
}

func TestProcessCallback_CancelledByUser(t *testing.T) {
	payload := `{
	  "Body": {
	    "stkCallback": {
	      "MerchantRequestID": "29115-34620561-1",
	      "CheckoutRequestID": "ws_CO_191220191020363925",
	      "ResultCode": 1032,
	      "ResultDesc": "Request cancelled by user."
	    }
	  }
	}`

	status, err := ProcessCallback([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, status.Status)
	assert.Equal(t, "Request cancelled by user.", status.ErrorMessage)
	assert.Zero(t, status.Amount)
	assert.Empty(t, status.MpesaReceiptNumber)
}

func TestProcessCallback_OtherCodesMapToFailed(t *testing.T) {
	tests := []struct {
		name string
		code int
		desc string
	}{
		{"insufficient funds", 1, "The balance is insufficient for the transaction."},
		{"push timeout", 1037, "DS timeout user cannot be reached."},
		{"wrong pin", 2001, "The initiator information is invalid."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"c",` +
				`"ResultCode":` + strconv.Itoa(tt.code) + `,"ResultDesc":"` + tt.desc + `"}}}`

			status, err := ProcessCallback([]byte(payload))
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, status.Status)
			assert.Equal(t, tt.desc, status.ErrorMessage)
		})
	}
}

func TestProcessCallback_MissingMetadataItemsYieldZeroValues(t *testing.T) {
	payload := `{
	  "Body": {
	    "stkCallback": {
	      "MerchantRequestID": "m",
	      "CheckoutRequestID": "c",
	      "ResultCode": 0,
	      "ResultDesc": "ok",
	      "CallbackMetadata": {
	        "Item": [
	          {"Name": "MpesaReceiptNumber", "Value": "ABC123"}
	        ]
	      }
	    }
	  }
	}`

	status, err := ProcessCallback([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, status.Status)
	assert.Equal(t, "ABC123", status.MpesaReceiptNumber)
	assert.Zero(t, status.Amount)
	assert.Empty(t, status.PhoneNumber)
	assert.Empty(t, status.TransactionDate)
}

func TestProcessCallback_SuccessWithoutMetadataBlock(t *testing.T) {
	payload := `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"c","ResultCode":0,"ResultDesc":"ok"}}}`

	status, err := ProcessCallback([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status.Status)
	assert.Zero(t, status.Amount)
}

func TestProcessCallback_UndecodablePayload(t *testing.T) {
	_, err := ProcessCallback([]byte(`{"Body": not-json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrFormat)
}

func TestProcessCallback_StringMetadataValues(t *testing.T) {
	payload := `{
	  "Body": {
	    "stkCallback": {
	      "MerchantRequestID": "m",
	      "CheckoutRequestID": "c",
	      "ResultCode": 0,
	      "ResultDesc": "ok",
	      "CallbackMetadata": {
	        "Item": [
	          {"Name": "Amount", "Value": "250.50"},
	          {"Name": "PhoneNumber", "Value": "254712345678"}
	        ]
	      }
	    }
	  }
	}`

	status, err := ProcessCallback([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 250.50, status.Amount)
	assert.Equal(t, "254712345678", status.PhoneNumber)
}

func TestProcessCallback_StatusAgreesWithResultCodeMapping(t *testing.T) {
	for _, code := range []int{0, 1, 1032, 1037, 2001} {
		payload := `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"c",` +
			`"ResultCode":` + strconv.Itoa(code) + `,"ResultDesc":"d"}}}`

		status, err := ProcessCallback([]byte(payload))
		require.NoError(t, err)
		assert.Equal(t, StatusFromResultCode(code), status.Status, "code %d", code)
	}
}
