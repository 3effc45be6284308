package ocr

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
)

func TestExtractorBlankImageHasNoAmount(t *testing.T) {
	img := imaging.New(400, 200, color.NRGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	_, err := Extractor{}.Extract(context.Background(), buf.Bytes(), "image/png")
	if !errors.Is(err, ErrNoAmount) {
		t.Fatalf("expected ErrNoAmount got %v", err)
	}
}

func TestExtractorRejectsPDF(t *testing.T) {
	_, err := Extractor{}.Extract(context.Background(), []byte("%PDF-1.4"), "application/pdf")
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage got %v", err)
	}
}

func TestResultData(t *testing.T) {
	r := &Result{
		Amount:     decimal.RequireFromString("12.50"),
		Currency:   "EUR",
		Date:       time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		Confidence: 0.7,
	}
	d := r.Data()
	if d.Date != "2024-03-09" || d.Currency != "EUR" || d.Source != "ocr" || !d.Amount.Equal(r.Amount) {
		t.Fatalf("unexpected data %+v", d)
	}
	if (&Result{}).Data().Date != "" {
		t.Fatal("zero date should stay empty")
	}
}
