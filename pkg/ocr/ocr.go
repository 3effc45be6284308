// Package ocr reads totals from receipt photos with Tesseract. It is the
// local fallback when the AI extractor is unavailable.
package ocr

import (
	"strings"
	"time"

	"boringexpenses/pkg/logging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Result struct {
	Amount     decimal.Decimal
	Currency   string
	Date       time.Time
	Confidence float64
	Raw        string
	Text       string
}

// ExtractReceipt runs OCR over the image at path and picks the most likely
// total. It returns ErrNoAmount when nothing plausible is printed.
func ExtractReceipt(path string) (*Result, error) {
	variants, err := runPasses(path)
	if err != nil {
		return nil, err
	}
	res, err := ExtractFromText(variants...)
	if err != nil {
		logging.Logger().Debug("ocr found no amount",
			zap.String("file", path),
			zap.Int("variants", len(variants)),
			zap.String("snippet", snippet(strings.Join(variants, " | "), 160)))
		return nil, err
	}
	logging.Logger().Debug("ocr amount chosen",
		zap.String("file", path),
		zap.String("raw", res.Raw),
		zap.String("amount", res.Amount.String()),
		zap.String("currency", res.Currency),
		zap.Float64("confidence", res.Confidence))
	return res, nil
}

// ExtractFromText picks the receipt total from one or more OCR texts of the
// same image.
func ExtractFromText(texts ...string) (*Result, error) {
	var matches []string
	for _, t := range texts {
		matches = append(matches, FindAllMatches(normalizeOCRText(t))...)
	}
	best, ok := BestCandidate(matches)
	if !ok {
		return nil, ErrNoAmount
	}
	all := normalizeOCRText(strings.Join(texts, " "))
	res := &Result{
		Amount:     best.Amount,
		Currency:   markerCurrency(best.Raw),
		Confidence: confidenceFor(best.Score),
		Raw:        best.Raw,
	}
	if len(texts) > 0 {
		res.Text = normalizeOCRText(texts[0])
	}
	if res.Currency == "" {
		res.Currency = DetectCurrency(all)
	}
	if d, ok := findDate(all); ok {
		res.Date = d
	}
	return res, nil
}
