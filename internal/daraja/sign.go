package daraja

import (
	"encoding/base64"
	"time"
)

// timestampLayout is the second-precision wall-clock format Daraja expects,
// with no timezone offset. The clock must be in the provider's zone.
const timestampLayout = "20060102150405"

// Sign derives the request password and timestamp that authorize an STK push
// or status query. The password is the base64 encoding of
// shortCode + passkey + timestamp.
func Sign(shortCode, passkey string, now time.Time) (password, timestamp string) {
	timestamp = now.Format(timestampLayout)
	password = base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
	return password, timestamp
}
