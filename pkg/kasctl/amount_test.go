package kasctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKasAmountWholeAndFractional(t *testing.T) {
	sompi, err := ParseKasAmount("5")
	assert.NoError(t, err)
	assert.Equal(t, uint64(5*SompiPerKaspa), sompi)

	sompi, err = ParseKasAmount("1.5")
	assert.NoError(t, err)
	assert.Equal(t, uint64(150_000_000), sompi)

	sompi, err = ParseKasAmount("0.00000001")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), sompi)
}

func TestParseKasAmountRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "abc", "-1", "1.123456789", "01"} {
		_, err := ParseKasAmount(bad)
		assert.Errorf(t, err, "expected %q to be rejected", bad)
	}
}

func TestFormatKasZeroIsBlank(t *testing.T) {
	assert.Equal(t, "                   ", FormatKas(0))
}

func TestFormatKasRoundTripsThroughParse(t *testing.T) {
	sompi := uint64(123_456_789_00)
	formatted := FormatKas(sompi)
	parsed, err := ParseKasAmount(
		// FormatKas left-pads with spaces to right-align the number;
		// ParseKasAmount expects a bare numeric string.
		trimSpaces(formatted),
	)
	assert.NoError(t, err)
	assert.Equal(t, sompi, parsed)
}

func trimSpaces(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}
