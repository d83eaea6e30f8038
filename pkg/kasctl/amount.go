// Package kasctl holds the kasctl CLI client's HTTP transport and its
// KAS/sompi formatting helpers.
package kasctl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SompiPerKaspa is the number of sompi in one KAS.
const SompiPerKaspa = 100_000_000

var kasAmountPattern = regexp.MustCompile(`^([1-9]\d{0,11}|0)(\.\d{0,8})?$`)

// ParseKasAmount parses a KAS amount string ("1234" or "1234.12345678")
// into sompi. At most 12 integer digits and 8 decimal digits are accepted.
func ParseKasAmount(amount string) (uint64, error) {
	if !kasAmountPattern.MatchString(amount) {
		return 0, fmt.Errorf("invalid amount format: %q", amount)
	}

	parts := strings.SplitN(amount, ".", 2)
	integerPart := parts[0]
	decimalPart := ""
	if len(parts) > 1 {
		decimalPart = parts[1]
	}
	decimalPadded := decimalPart + strings.Repeat("0", 8-len(decimalPart))

	combined := integerPart + decimalPadded
	sompi, err := strconv.ParseUint(combined, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	return sompi, nil
}

// FormatKas renders a sompi amount as KAS with 8 decimal places, right
// aligned in 19 characters. A zero amount renders as blank so a balance
// table's "pending" column reads cleanly when nothing is pending.
func FormatKas(amount uint64) string {
	if amount == 0 {
		return strings.Repeat(" ", 19)
	}
	return fmt.Sprintf("%19.8f", float64(amount)/SompiPerKaspa)
}
