package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountToNumericString(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected string
	}{
		{"whole shillings", 100, "100.00"},
		{"with cents", 100.5, "100.50"},
		{"minimum stk amount", 1, "1.00"},
		{"maximum stk amount", 70000, "70000.00"},
		{"fractional", 99.99, "99.99"},
		{"rounds to scale", 5.555, "5.56"},
		{"zero", 0, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, amountToNumericString(tt.input))
		})
	}
}

func TestNumericStringToAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"whole shillings", "100", 100},
		{"with scale", "100.50", 100.5},
		{"with whitespace", "  50.25  ", 50.25},
		{"zero", "0.00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := numericStringToAmount(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNumericStringToAmount_Errors(t *testing.T) {
	for _, input := range []string{"", "abc", "KES 100", "10.5.5"} {
		_, err := numericStringToAmount(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestAmountConversion_RoundTrip(t *testing.T) {
	for _, amount := range []float64{1, 10.5, 99.99, 1000, 70000} {
		str := amountToNumericString(amount)
		back, err := numericStringToAmount(str)
		require.NoError(t, err)
		assert.Equal(t, amount, back, "amount=%v str=%s", amount, str)
	}
}
