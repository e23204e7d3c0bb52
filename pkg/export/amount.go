package export

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Amount formats a money value with thousands separators and two decimals, e.g. 1,234.50.
func Amount(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole := decimal.RequireFromString(intPart)
	out := humanize.BigComma(whole.BigInt()) + "." + frac
	if d.Sign() < 0 {
		return "-" + out
	}
	return out
}

// Quantity formats a quantity without trailing zeros.
func Quantity(d decimal.Decimal) string {
	return d.String()
}
