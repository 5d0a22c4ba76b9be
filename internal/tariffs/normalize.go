package tariffs

import (
	"strings"

	"github.com/shopspring/decimal"
)

// The upstream provider reports unknown values as a literal dash.
const unknownSentinel = "-"

// ParseNumber normalizes an upstream numeric field. Empty strings and the
// unknown sentinel map to null. Decimal commas are replaced with dots
// before parsing; anything that still fails to parse maps to null rather
// than an error.
func ParseNumber(raw string) decimal.NullDecimal {
	if raw == "" || raw == unknownSentinel {
		return decimal.NullDecimal{}
	}

	normalized := strings.Replace(raw, ",", ".", 1)
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseDate normalizes an upstream date field. Empty strings and the
// unknown sentinel map to nil; any other value passes through unchanged.
// Presentation formatting happens at export time, not here.
func ParseDate(raw string) *string {
	if raw == "" || raw == unknownSentinel {
		return nil
	}
	v := raw
	return &v
}

func optionalString(raw string) *string {
	if raw == "" {
		return nil
	}
	v := raw
	return &v
}
