package daraja

// Status is the canonical outcome of an STK push transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// resultCodeCancelled is Daraja's "request cancelled by user" result code.
const resultCodeCancelled = 1032

// StatusFromResultCode maps a Daraja numeric result code to a Status. Both
// the poll path and the callback path go through this function, so a given
// code resolves to the same status no matter how the result arrived.
func StatusFromResultCode(code int) Status {
	switch code {
	case 0:
		return StatusSuccess
	case resultCodeCancelled:
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// TransactionStatus is the normalized outcome record produced by the status
// query and callback paths. TransactionID carries the CheckoutRequestID that
// correlates the outcome with the originating push.
//
// The query endpoint does not report amount or phone number, so those fields
// are zero-valued on the poll path; callers needing them must merge in their
// own stored record.
type TransactionStatus struct {
	TransactionID      string
	Status             Status
	Amount             float64
	PhoneNumber        string
	MpesaReceiptNumber string
	TransactionDate    string
	ErrorMessage       string
}
