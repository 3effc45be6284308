package ocr

import (
	"context"
	"os"
	"strings"

	"boringexpenses/pkg/receipts"
)

// Extractor adapts ExtractReceipt to receipts.Extractor.
type Extractor struct{}

func (Extractor) Name() string { return "ocr" }

func (Extractor) Extract(ctx context.Context, image []byte, mime string) (*receipts.Data, error) {
	if !strings.HasPrefix(mime, "image/") {
		return nil, ErrUnsupportedImage
	}
	f, err := os.CreateTemp("", "receipt-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(image); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := ExtractReceipt(f.Name())
	if err != nil {
		return nil, err
	}
	return res.Data(), nil
}

// Data converts r to the shared receipt shape.
func (r *Result) Data() *receipts.Data {
	d := &receipts.Data{
		Amount:     r.Amount,
		Currency:   r.Currency,
		Confidence: r.Confidence,
		Source:     "ocr",
	}
	if !r.Date.IsZero() {
		d.Date = r.Date.Format("2006-01-02")
	}
	return d
}
