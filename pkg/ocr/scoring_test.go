package ocr

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBestAmountTotalPriority(t *testing.T) {
	// £50.00 is larger, but the TOTAL line should win.
	c, ok := BestCandidate([]string{"£50.00", "TOTAL £40.00"})
	if !ok {
		t.Fatalf("no amount chosen")
	}
	if !c.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected 40 (TOTAL) got %s raw=%s", c.Amount, c.Raw)
	}
}

func TestBestCandidateRejectsIds(t *testing.T) {
	if _, ok := BestCandidate([]string{"0123456789", "12345678901"}); ok {
		t.Fatalf("expected ids to be rejected")
	}
}

func TestExtractFromText(t *testing.T) {
	text := `PRET A MANGER
	12/02/2025
	Flat white   3.40
	Croissant    2.95
	SUBTOTAL     6.35
	TOTAL £6.35
	CASH £10.00
	CHANGE £3.65`
	res, err := ExtractFromText(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Amount.Equal(decimal.RequireFromString("6.35")) {
		t.Fatalf("expected 6.35 got %s (raw %q)", res.Amount, res.Raw)
	}
	if res.Currency != "GBP" {
		t.Fatalf("expected GBP got %q", res.Currency)
	}
	if res.Confidence < 0.3 {
		t.Fatalf("confidence too low: %v", res.Confidence)
	}
	if res.Date.Format("2006-01-02") != "2025-02-12" {
		t.Fatalf("unexpected date %v", res.Date)
	}
}

func TestExtractFromTextFuzzyDigits(t *testing.T) {
	res, err := ExtractFromText("Amount € 1 2.5O thank you")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Amount.Equal(decimal.RequireFromString("12.50")) || res.Currency != "EUR" {
		t.Fatalf("got %s %s", res.Amount, res.Currency)
	}
}

func TestExtractFromTextNoAmount(t *testing.T) {
	if _, err := ExtractFromText("THANK YOU FOR VISITING", "call 07700900123"); err != ErrNoAmount {
		t.Fatalf("expected ErrNoAmount got %v", err)
	}
}
