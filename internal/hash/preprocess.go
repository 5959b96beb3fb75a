package hash

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Luma converts img to an 8-bit luminance image using ITU-R 601 weights
func Luma(img image.Image) *image.Gray {
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+b.Dx()*4]
		dst := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return gray
}

// MedianFilter applies a 3x3 median filter. Edge pixels use the clamped
// neighbourhood.
func MedianFilter(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	var window [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clamp(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					xx := clamp(x+dx, 0, w-1)
					window[n] = src.Pix[yy*src.Stride+xx]
					n++
				}
			}
			dst.Pix[y*dst.Stride+x] = median9(&window)
		}
	}
	return dst
}

func median9(v *[9]uint8) uint8 {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
	return v[4]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// grayMatrix resamples a luminance image to w x h with a Lanczos filter and
// returns the pixel values indexed [y][x]
func grayMatrix(gray *image.Gray, w, h int) [][]float64 {
	resized := imaging.Resize(gray, w, h, imaging.Lanczos)
	m := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		off := y * resized.Stride
		for x := 0; x < w; x++ {
			row[x] = float64(resized.Pix[off+x*4])
		}
		m[y] = row
	}
	return m
}

// prepare runs the shared hash preprocessing: luma, median filter and a
// Lanczos resize to w x h
func prepare(img image.Image, w, h int) ([][]float64, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image: %w", ErrInvalidParameter)
	}
	return grayMatrix(MedianFilter(Luma(img)), w, h), nil
}
