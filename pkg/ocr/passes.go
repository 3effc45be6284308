package ocr

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// recognize runs one Tesseract pass over the image file at path.
func recognize(path string, psm gosseract.PageSegMode) (string, error) {
	cl := gosseract.NewClient()
	defer cl.Close()
	_ = cl.SetLanguage("eng")
	if err := cl.SetPageSegMode(psm); err != nil {
		return "", err
	}
	if err := cl.SetImage(path); err != nil {
		return "", err
	}
	t, err := cl.Text()
	if err != nil {
		return "", err
	}
	return normalizeOCRText(t), nil
}

func saveTemp(img image.Image, pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	_ = f.Close()
	if err := imaging.Save(img, name); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// runPasses executes the multi-pass OCR strategy and returns every variant
// text that Tesseract produced. The first entry is the preprocessed base pass.
func runPasses(path string) ([]string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	base, adv := prepare(img)

	type pass struct {
		img  image.Image
		psm  gosseract.PageSegMode
		name string
	}
	passes := []pass{
		{base, gosseract.PSM_AUTO, "base"},
		{adv, gosseract.PSM_AUTO, "adaptive"},
		{binarize(base, 160), gosseract.PSM_AUTO, "binary"},
		{base, gosseract.PSM_SPARSE_TEXT, "sparse"},
		{imaging.Invert(base), gosseract.PSM_AUTO, "inverted"},
	}
	// bottom half, where totals usually sit
	if h := base.Bounds().Dy(); h > 100 {
		passes = append(passes, pass{imaging.Crop(base, image.Rect(0, h/2, base.Bounds().Dx(), h)), gosseract.PSM_SINGLE_BLOCK, "bottom"})
	}

	var variants []string
	var lastErr error
	for _, p := range passes {
		tmp, err := saveTemp(p.img, "ocr-"+p.name+"-*.png")
		if err != nil {
			lastErr = err
			continue
		}
		text, err := recognize(tmp, p.psm)
		_ = os.Remove(tmp)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(text) != "" {
			variants = append(variants, text)
		}
	}
	if len(variants) == 0 && lastErr != nil {
		return nil, fmt.Errorf("ocr passes: %w", lastErr)
	}
	return variants, nil
}
