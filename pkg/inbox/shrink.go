package inbox

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"boringexpenses/pkg/storage"

	"github.com/disintegration/imaging"
)

// readForUpload returns the file contents, downscaled as JPEG when the
// original exceeds storage.MaxUploadSize.
func readForUpload(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) <= storage.MaxUploadSize {
		return data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode oversized image: %w", err)
	}
	// encoded size roughly follows pixel area
	scale := math.Sqrt(float64(storage.MaxUploadSize) / float64(len(data)))
	for attempt := 0; attempt < 4; attempt++ {
		w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
		small := imaging.Resize(img, w, 0, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
			return nil, err
		}
		if buf.Len() <= storage.MaxUploadSize {
			return buf.Bytes(), nil
		}
		scale *= 0.8
	}
	return nil, storage.ErrTooLarge
}
