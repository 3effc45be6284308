package ocr

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount normalizes a matched substring into a decimal amount. The
// last separator is the decimal point when one or two digits follow it;
// every other separator is a thousands grouping. Both 1.234,56 and
// 1,234.56 parse to 1234.56.
func ParseAmount(found string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range found {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := strings.Trim(b.String(), ".,")
	if onlyDigits(s) == "" {
		return decimal.Zero, fmt.Errorf("no digits extracted from %q", found)
	}
	intPart, frac := s, ""
	if last := strings.LastIndexAny(s, ".,"); last >= 0 {
		if tail := s[last+1:]; len(tail) == 1 || len(tail) == 2 {
			intPart, frac = s[:last], tail
		}
	}
	digits := onlyDigits(intPart)
	if digits == "" {
		digits = "0"
	}
	if frac != "" {
		digits += "." + frac
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", digits, err)
	}
	return d.Abs().Round(2), nil
}
