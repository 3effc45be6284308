package ocr

import (
	"strings"

	"github.com/shopspring/decimal"
)

var maxPlausible = decimal.NewFromInt(1_000_000)

// isPlausibleAmount rejects matches that look like phone numbers, card
// fragments or transaction ids rather than money.
func isPlausibleAmount(raw string, amt decimal.Decimal) bool {
	if !amt.IsPositive() || amt.GreaterThanOrEqual(maxPlausible) {
		return false
	}
	d := onlyDigits(raw)
	if len(d) > 9 {
		return false
	}
	if hasMarker(raw) || hasCents(raw) {
		return true
	}
	// bare integers: only grouped values survive
	return strings.ContainsAny(raw, ".,") && d[0] != '0'
}

func hasCents(raw string) bool {
	raw = strings.TrimSpace(raw)
	i := strings.LastIndexAny(raw, ".,")
	if i < 0 || len(raw)-i-1 != 2 {
		return false
	}
	return onlyDigits(raw[i+1:]) == raw[i+1:]
}
