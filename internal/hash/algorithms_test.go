package hash

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

// sceneImage draws a diagonal gradient with a bright rectangle and a dark
// disc so every algorithm sees some structure
func sceneImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*255/w + y*255/h) / 2)
			c := color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255}
			if x > w/8 && x < w/3 && y > h/6 && y < h/2 {
				c = color.RGBA{R: 250, G: 250, B: 240, A: 255}
			}
			dx, dy := x-2*w/3, y-2*h/3
			if dx*dx+dy*dy < (w/6)*(w/6) {
				c = color.RGBA{R: 10, G: 20, B: 10, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func allHashers(t *testing.T, size int) map[string]Hasher {
	t.Helper()
	out := make(map[string]Hasher)
	for _, alg := range []Algorithm{Average, Difference, Perceptual, Ring} {
		h, err := NewHasher(alg, size, 0)
		if err != nil {
			t.Fatalf("NewHasher(%v, %d) failed: %v", alg, size, err)
		}
		out[alg.String()] = h
	}
	return out
}

func TestHashLength(t *testing.T) {
	img := sceneImage(120, 90)

	for _, size := range []int{8, 16, 32} {
		for name, h := range allHashers(t, size) {
			if name == "perceptual" && size > 16 {
				continue
			}
			got, err := h.Hash(img)
			if err != nil {
				t.Fatalf("%s size %d failed: %v", name, size, err)
			}
			if got.Len() != size*size {
				t.Errorf("%s size %d: Len() = %d, want %d", name, size, got.Len(), size*size)
			}
		}
	}

	for _, fn := range []func(image.Image, int) (Hash, error){DifferenceHashHorizontal, DifferenceHashVertical} {
		got, err := fn(img, 8)
		if err != nil {
			t.Fatalf("directional hash failed: %v", err)
		}
		if got.Len() != 64 {
			t.Errorf("directional hash Len() = %d, want 64", got.Len())
		}
	}
}

func TestAverageHashLengthAllSizes(t *testing.T) {
	img := sceneImage(200, 200)
	for _, size := range []int{8, 16, 32, 64, 128} {
		h, err := AverageHash(img, size)
		if err != nil {
			t.Fatalf("AverageHash(%d) failed: %v", size, err)
		}
		if h.Len() != size*size {
			t.Errorf("AverageHash(%d) Len() = %d, want %d", size, h.Len(), size*size)
		}
		if len(h.Hex()) != size*size/4 {
			t.Errorf("AverageHash(%d) hex length = %d, want %d", size, len(h.Hex()), size*size/4)
		}
	}
}

func TestInvalidSize(t *testing.T) {
	img := sceneImage(32, 32)
	calls := map[string]func(int) error{
		"average":    func(n int) error { _, err := AverageHash(img, n); return err },
		"difference": func(n int) error { _, err := DifferenceHash(img, n); return err },
		"perceptual": func(n int) error { _, err := PerceptualHash(img, n, 4); return err },
		"ring":       func(n int) error { _, err := RingHash(img, n, 4); return err },
		"horizontal": func(n int) error { _, err := DifferenceHashHorizontal(img, n); return err },
		"vertical":   func(n int) error { _, err := DifferenceHashVertical(img, n); return err },
	}

	for name, call := range calls {
		for _, n := range []int{0, -4, 3, 12} {
			if err := call(n); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("%s(%d) error = %v, want ErrInvalidParameter", name, n, err)
			}
		}
	}

	if _, err := PerceptualHash(img, 8, 3); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("PerceptualHash high frequency 3 error = %v, want ErrInvalidParameter", err)
	}
	if _, err := RingHash(img, 8, 6); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("RingHash block 6 error = %v, want ErrInvalidParameter", err)
	}
	if _, err := RingHash(img, 1, 4); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("RingHash size 1 error = %v, want ErrInvalidParameter", err)
	}
	if _, err := NewHasher(Average, 24, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("NewHasher size 24 error = %v, want ErrInvalidParameter", err)
	}
}

func TestEmptyImage(t *testing.T) {
	empty := image.NewRGBA(image.Rect(0, 0, 0, 0))
	if _, err := AverageHash(empty, 8); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("AverageHash(empty) error = %v, want ErrInvalidParameter", err)
	}
}

func TestIdenticalImagesZeroDistance(t *testing.T) {
	a := sceneImage(160, 120)
	b := sceneImage(160, 120)

	for name, h := range allHashers(t, 8) {
		ha, err := h.Hash(a)
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		hb, err := h.Hash(b)
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		d, err := ha.Distance(hb)
		if err != nil {
			t.Fatalf("%s distance failed: %v", name, err)
		}
		if d != 0 {
			t.Errorf("%s: identical images distance = %v, want 0", name, d)
		}
	}
}

func TestRingHashRotation(t *testing.T) {
	img := sceneImage(256, 256)
	rotated := imaging.Rotate180(img)

	a, err := RingHash(img, 8, 16)
	if err != nil {
		t.Fatalf("RingHash failed: %v", err)
	}
	b, err := RingHash(rotated, 8, 16)
	if err != nil {
		t.Fatalf("RingHash failed: %v", err)
	}
	d, err := a.Distance(b)
	if err != nil {
		t.Fatal(err)
	}
	if d > 0.05 {
		t.Errorf("rotated ring hash distance = %v, want <= 0.05", d)
	}

	// The average hash has no orientation normalisation
	avgA, err := AverageHash(img, 8)
	if err != nil {
		t.Fatalf("AverageHash failed: %v", err)
	}
	avgB, err := AverageHash(rotated, 8)
	if err != nil {
		t.Fatalf("AverageHash failed: %v", err)
	}
	avgD, err := avgA.Distance(avgB)
	if err != nil {
		t.Fatal(err)
	}
	if avgD < 0.25 {
		t.Errorf("rotated average hash distance = %v, want >= 0.25", avgD)
	}
}

func TestCanonicalFlip(t *testing.T) {
	grid := bitsOf("1100" + "0000" + "0000" + "0001")

	tests := []struct {
		quarter  int
		expected string
	}{
		{0, "1100" + "0000" + "0000" + "0001"},
		{1, "0011" + "0000" + "0000" + "1000"},
		{2, "0001" + "0000" + "0000" + "1100"},
		{3, "1000" + "0000" + "0000" + "0011"},
	}

	for _, tt := range tests {
		got := New(canonicalFlip(grid, 4, tt.quarter))
		if want := New(bitsOf(tt.expected)); !got.Equal(want) {
			t.Errorf("canonicalFlip(quarter %d) = %s, want %s", tt.quarter, got.Hex(), want.Hex())
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in       string
		expected Algorithm
	}{
		{"average", Average},
		{"ahash", Average},
		{"Difference", Difference},
		{"phash", Perceptual},
		{"ring", Ring},
		{"rhash", Ring},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q) failed: %v", tt.in, err)
		}
		if got != tt.expected {
			t.Errorf("ParseAlgorithm(%q) = %v, want %v", tt.in, got, tt.expected)
		}
	}

	if _, err := ParseAlgorithm("colorhash"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ParseAlgorithm(colorhash) error = %v, want ErrInvalidParameter", err)
	}
}

func TestMedianFilterRemovesSpeck(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 5, 5))
	img.Pix[2*img.Stride+2] = 255

	out := MedianFilter(img)
	if v := out.Pix[2*out.Stride+2]; v != 0 {
		t.Errorf("median at speck = %d, want 0", v)
	}
}
