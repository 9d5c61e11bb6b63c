// Package money holds the arithmetic used by line-item tables: parsing of
// user-typed numbers, row amounts, totals and display formatting.
//
// Every value is a decimal. Rounding to two places happens once per row
// amount, so totals are exact sums of what is displayed.
package money

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits shown for amounts and prices.
const Places = 2

// plainDecimal admits an optional sign, digits and at most one point.
// Exponent forms are rejected.
var plainDecimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

// maxInputLen bounds typed numbers; longer text is treated as malformed.
const maxInputLen = 40

// Parsed is the result of reading a user-typed number. Value is zero
// whenever Valid is false.
type Parsed struct {
	Value decimal.Decimal
	Valid bool
}

// Parse reads raw as a plain decimal number. Blank, malformed or exponent
// input yields a zero value with Valid set to false; it never returns an error.
func Parse(raw string) Parsed {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > maxInputLen || !plainDecimal.MatchString(trimmed) {
		return Parsed{Value: decimal.Zero}
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Parsed{Value: decimal.Zero}
	}
	return Parsed{Value: value, Valid: true}
}

// ParseOrZero is Parse without the validity flag.
func ParseOrZero(raw string) decimal.Decimal {
	return Parse(raw).Value
}

// FromFloat converts a wire price. NaN and infinities become zero.
func FromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// RowAmount is quantity × unit price rounded half away from zero to two places.
func RowAmount(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(Places)
}

// Sum adds amounts. An empty slice sums to zero.
func Sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// FormatFloat renders a wire price the way Format renders a decimal.
func FormatFloat(f float64) string {
	return Format(FromFloat(f))
}
