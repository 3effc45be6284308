package ocr

import "errors"

var (
	// ErrNoAmount is returned when no plausible monetary amount can be extracted.
	ErrNoAmount = errors.New("no amount detected")
	// ErrUnsupportedImage is returned for inputs Tesseract cannot read, such as PDFs.
	ErrUnsupportedImage = errors.New("unsupported image type for OCR")
)
