// Package currency holds the fixed table of currencies an expense may be
// recorded in, plus display formatting.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Default is used when an expense or claim has no currency of its own.
const Default = "GBP"

type Currency struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	// Places is the number of minor-unit digits shown when formatting.
	Places int32 `json:"places"`
}

var table = []Currency{
	{Code: "GBP", Name: "British Pound", Symbol: "£", Places: 2},
	{Code: "USD", Name: "US Dollar", Symbol: "$", Places: 2},
	{Code: "EUR", Name: "Euro", Symbol: "€", Places: 2},
	{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$", Places: 2},
	{Code: "AUD", Name: "Australian Dollar", Symbol: "A$", Places: 2},
	{Code: "JPY", Name: "Japanese Yen", Symbol: "¥", Places: 0},
	{Code: "CHF", Name: "Swiss Franc", Symbol: "CHF ", Places: 2},
	{Code: "CNY", Name: "Chinese Yuan", Symbol: "¥", Places: 2},
	{Code: "INR", Name: "Indian Rupee", Symbol: "₹", Places: 2},
	{Code: "SGD", Name: "Singapore Dollar", Symbol: "S$", Places: 2},
}

// All returns a copy of the currency table in display order.
func All() []Currency {
	out := make([]Currency, len(table))
	copy(out, table)
	return out
}

// Lookup finds a currency by ISO code (case-insensitive).
func Lookup(code string) (Currency, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range table {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// Valid reports whether code is in the table.
func Valid(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// Normalize upper-cases code and substitutes Default for an empty value.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Default
	}
	return code
}

// Format renders amount with the currency symbol and thousands grouping,
// e.g. "£1,234.50". Unknown codes are formatted as GBP.
func Format(amount decimal.Decimal, code string) string {
	c, ok := Lookup(code)
	if !ok {
		c, _ = Lookup(Default)
	}
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	s := amount.StringFixedBank(c.Places)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	return sign + c.Symbol + group(intPart) + frac
}

func group(ds string) string {
	if len(ds) <= 3 {
		return ds
	}
	var b strings.Builder
	lead := len(ds) % 3
	if lead > 0 {
		b.WriteString(ds[:lead])
	}
	for i := lead; i < len(ds); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(ds[i : i+3])
	}
	return b.String()
}
