package ocr

import (
	"regexp"

	"github.com/shopspring/decimal"
)

var totalRE = regexp.MustCompile(`(?i)\b(total|amount due|balance due|to pay)\b`)

// Candidate is a parsed amount match with its ranking score.
type Candidate struct {
	Amount decimal.Decimal
	Raw    string
	Score  int
}

func scoreFor(raw string) int {
	s := 0
	if hasMarker(raw) {
		s += 10
	}
	if totalRE.MatchString(raw) {
		s += 8
	}
	if hasCents(raw) {
		s += 5
	}
	return s
}

// BestCandidate picks the highest scoring plausible match. Ties go to the
// larger amount, then to the longer raw text.
func BestCandidate(matches []string) (Candidate, bool) {
	var best Candidate
	found := false
	for _, m := range matches {
		amt, err := ParseAmount(m)
		if err != nil || !isPlausibleAmount(m, amt) {
			continue
		}
		c := Candidate{Amount: amt, Raw: m, Score: scoreFor(m)}
		if !found || better(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func better(c, best Candidate) bool {
	if c.Score != best.Score {
		return c.Score > best.Score
	}
	if !c.Amount.Equal(best.Amount) {
		return c.Amount.GreaterThan(best.Amount)
	}
	if len(c.Raw) != len(best.Raw) {
		return len(c.Raw) > len(best.Raw)
	}
	return c.Raw < best.Raw
}

// confidenceFor maps a score onto [0.2, 0.95].
func confidenceFor(score int) float64 {
	c := 0.2 + 0.03*float64(score)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
