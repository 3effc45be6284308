package ocr

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// luminance returns the 8-bit gray levels of img, row major.
func luminance(img image.Image) ([]int, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]int, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out[y*w+x] = int((r + g + bb) / 3 >> 8)
		}
	}
	return out, w, h
}

var (
	black = color.NRGBA{0, 0, 0, 255}
	white = color.NRGBA{255, 255, 255, 255}
)

// binarize applies a global threshold.
func binarize(img image.Image, threshold int) *image.NRGBA {
	lum, w, h := luminance(img)
	out := imaging.New(w, h, white)
	for i, v := range lum {
		if v <= threshold {
			out.Set(i%w, i/w, black)
		}
	}
	return out
}

// adaptiveThreshold compares each pixel with the mean of its window using
// an integral image. Thermal receipts fade unevenly, which a global
// threshold handles poorly.
func adaptiveThreshold(img image.Image, window, bias int) *image.NRGBA {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	lum, w, h := luminance(img)
	integral := make([]int, (w+1)*(h+1))
	for y := 1; y <= h; y++ {
		row := 0
		for x := 1; x <= w; x++ {
			row += lum[(y-1)*w+x-1]
			integral[y*(w+1)+x] = integral[(y-1)*(w+1)+x] + row
		}
	}
	half := window / 2
	out := imaging.New(w, h, white)
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h-1, y+half)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w-1, x+half)
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] - integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := sum / ((x1 - x0 + 1) * (y1 - y0 + 1))
			if lum[y*w+x] < max(0, mean-bias) {
				out.Set(x, y, black)
			}
		}
	}
	return out
}

// dilate thickens dark strokes by radius pixels (4-neighbourhood).
func dilate(img *image.NRGBA, radius int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cur := img
	for r := 0; r < radius; r++ {
		next := imaging.New(w, h, white)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for _, d := range [5][2]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					x2, y2 := x+d[0], y+d[1]
					if x2 < 0 || y2 < 0 || x2 >= w || y2 >= h {
						continue
					}
					if cur.NRGBAAt(x2, y2).R == 0 {
						next.Set(x, y, black)
						break
					}
				}
			}
		}
		cur = next
	}
	return cur
}

// prepare returns the grayscale base image and its adaptive-threshold variant.
func prepare(img image.Image) (base image.Image, adv image.Image) {
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < 900 {
		gray = imaging.Resize(gray, 0, 1300, imaging.Lanczos)
	}
	return gray, dilate(adaptiveThreshold(gray, 15, 7), 1)
}
