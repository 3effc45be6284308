package ocr

import (
	"regexp"
	"strings"
	"time"
)

const numPat = `(\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

var matchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:grand total|total due|amount due|balance due|total|to pay)\s*[:\-]?\s*(?:` + symbolClass + `|\b(?:` + codeAlt + `)\b)?\s*` + numPat),
	regexp.MustCompile(symbolClass + `\s*` + numPat),
	regexp.MustCompile(`(?i)\b(?:` + codeAlt + `)\s*` + numPat),
	regexp.MustCompile(`(?i)` + numPat + `\s*(?:€|\b(?:` + codeAlt + `)\b)`),
	regexp.MustCompile(`\b\d+[.,]\d{2}\b`),
}

// FindAllMatches returns the raw amount-like substrings of text in
// pattern order, without duplicates.
func FindAllMatches(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, re := range matchPatterns {
		for _, m := range re.FindAllString(text, -1) {
			add(m)
		}
	}
	for _, m := range fuzzyMarkedAmounts(text) {
		add(m)
	}
	return out
}

var confusables = strings.NewReplacer("o", "0", "O", "0", "D", "0", "s", "5", "S", "5", "l", "1", "I", "1")

var leadingNum = regexp.MustCompile(`^` + numPat)

// fuzzyMarkedAmounts rebuilds amounts that follow a currency symbol but were
// split by spaces or misread as letters, e.g. "£ 1 2.5O".
func fuzzyMarkedAmounts(text string) []string {
	var out []string
	runes := []rune(text)
	for i, r := range runes {
		if !strings.ContainsRune("£€$¥₹", r) {
			continue
		}
		var b strings.Builder
		tok := 0
		for _, c := range runes[i+1:] {
			if c == ' ' {
				if tok > 1 {
					break
				}
				tok = 0
				continue
			}
			if b.Len() >= 16 || !strings.ContainsRune("0123456789oOsSlID.,", c) {
				break
			}
			b.WriteRune(c)
			tok++
		}
		if m := leadingNum.FindString(confusables.Replace(b.String())); m != "" {
			out = append(out, string(r)+m)
		}
	}
	return out
}

var (
	isoDateRE = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dmyDateRE = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{2}|\d{4})\b`)
)

// findDate returns the first date printed on the receipt. Slash dates are
// read day first.
func findDate(text string) (time.Time, bool) {
	if m := isoDateRE.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}
	for _, m := range dmyDateRE.FindAllStringSubmatch(text, -1) {
		y := m[3]
		if len(y) == 2 {
			y = "20" + y
		}
		s := y + "-" + pad2(m[2]) + "-" + pad2(m[1])
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
