package ocr

import (
	"regexp"
	"strings"
)

const (
	symbolClass = `[£€$¥₹]`
	codeAlt     = `GBP|USD|EUR|CAD|AUD|JPY|CHF|CNY|INR|SGD`
)

var (
	codeRE   = regexp.MustCompile(`(?i)\b(` + codeAlt + `)\b`)
	prefixed = regexp.MustCompile(`(?i)\b(C|A|S|US)\$`)
)

// hasMarker reports whether raw carries a currency symbol or ISO code.
func hasMarker(raw string) bool {
	return markerCurrency(raw) != ""
}

// markerCurrency maps the first currency marker in s to an ISO code.
func markerCurrency(s string) string {
	if m := codeRE.FindStringSubmatch(s); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := prefixed.FindStringSubmatch(s); m != nil {
		switch strings.ToUpper(m[1]) {
		case "C":
			return "CAD"
		case "A":
			return "AUD"
		case "S":
			return "SGD"
		}
		return "USD"
	}
	switch {
	case strings.Contains(s, "£"):
		return "GBP"
	case strings.Contains(s, "€"):
		return "EUR"
	case strings.Contains(s, "₹"):
		return "INR"
	case strings.Contains(s, "¥"):
		if strings.Contains(strings.ToUpper(s), "RMB") || strings.Contains(s, "元") {
			return "CNY"
		}
		return "JPY"
	case strings.Contains(s, "$"):
		return "USD"
	}
	return ""
}

// DetectCurrency guesses the receipt currency from its full text. It
// returns "" when the text carries no marker.
func DetectCurrency(text string) string {
	return markerCurrency(text)
}
