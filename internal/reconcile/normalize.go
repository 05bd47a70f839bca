package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
)

// epsilon is the tolerance for numeric field comparison. Values that
// round-tripped through spreadsheets or JSON may differ in trailing
// precision without being a real change.
var epsilon = decimal.NewFromFloat(0.0001)

// ParseDecimal reads a spreadsheet cell as an optional decimal. Commas
// are accepted as decimal separators. Returns nil when the trimmed
// input is empty or not a number.
func ParseDecimal(s string) *decimal.Decimal {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if cleaned == "" {
		return nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

// TrimmedOrAbsent trims a cell and maps an empty result to nil so an
// omitted value stays distinguishable from a present one.
func TrimmedOrAbsent(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// DecimalsEqual compares two optional decimals. Both absent is equal,
// exactly one absent is not, and two present values match when they
// differ by less than epsilon.
func DecimalsEqual(a, b *decimal.Decimal) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Sub(*b).Abs().LessThan(epsilon)
}
