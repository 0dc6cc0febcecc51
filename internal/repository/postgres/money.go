package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// Amounts are KES in whole/fractional shillings, stored as NUMERIC(12,2).
// Daraja has no minor-unit representation, so the conversion stays in float
// space and only fixes the scale at the database edge.

func amountToNumericString(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func numericStringToAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return f, nil
}
