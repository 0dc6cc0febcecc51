// Package msisdn canonicalizes merchant-supplied phone numbers and amounts
// before they are sent to the Daraja API.
package msisdn

import (
	"fmt"
	"math"
	"regexp"

	"github.com/pesaflow/mpesa-gateway/internal/domain/errors"
)

// Daraja rejects STK push amounts outside these bounds (KES, whole units).
const (
	MinAmount = 1
	MaxAmount = 70000
)

var (
	stripPattern = regexp.MustCompile(`[\s\-+]`)
	localPattern = regexp.MustCompile(`^0[17]\d{8}$`)
	intlPattern  = regexp.MustCompile(`^254[17]\d{8}$`)
)

// Normalize returns the international form (254XXXXXXXXX) of a Kenyan mobile
// number. Whitespace, dashes and a leading plus are stripped; a local-format
// number (07.. / 01..) is rewritten to the 254 prefix; a number already in
// international form is returned as-is. Anything else fails with ErrFormat.
func Normalize(input string) (string, error) {
	n := stripPattern.ReplaceAllString(input, "")
	switch {
	case intlPattern.MatchString(n):
		return n, nil
	case localPattern.MatchString(n):
		return "254" + n[1:], nil
	default:
		return "", fmt.Errorf("%w: %q is not a Kenyan mobile number", errors.ErrFormat, input)
	}
}

// ValidateAmount reports whether amount is a finite value inside the Daraja
// STK push limits. Amounts are expressed in whole/fractional shillings, not
// cents.
func ValidateAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount >= MinAmount && amount <= MaxAmount
}
