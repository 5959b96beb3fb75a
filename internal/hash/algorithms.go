package hash

import (
	"fmt"
	"image"
	"strings"

	"github.com/corona10/goimagehash/transforms"
	"gonum.org/v1/gonum/stat"
)

// Algorithm selects one of the perceptual hash variants
type Algorithm int

const (
	Average Algorithm = iota
	Difference
	Perceptual
	Ring
)

var algorithmNames = map[Algorithm]string{
	Average:    "average",
	Difference: "difference",
	Perceptual: "perceptual",
	Ring:       "ring",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm accepts the long names and the usual short aliases
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "average", "ahash":
		return Average, nil
	case "difference", "dhash":
		return Difference, nil
	case "perceptual", "phash":
		return Perceptual, nil
	case "ring", "rhash":
		return Ring, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q: %w", s, ErrInvalidParameter)
}

// Hasher computes a single bit-vector hash from a decoded image
type Hasher interface {
	Hash(img image.Image) (Hash, error)
}

// HasherFunc adapts a function to the Hasher interface
type HasherFunc func(img image.Image) (Hash, error)

// Hash calls f(img)
func (f HasherFunc) Hash(img image.Image) (Hash, error) {
	return f(img)
}

// NewHasher builds the Hasher for an algorithm. aux is the ring block size
// or the perceptual high-frequency factor; 0 derives it as 2*size.
func NewHasher(alg Algorithm, size, aux int) (Hasher, error) {
	if !IsPowerOfTwo(size) {
		return nil, fmt.Errorf("hash size %d is not a power of two: %w", size, ErrInvalidParameter)
	}
	if aux == 0 {
		aux = size * 2
	}
	switch alg {
	case Average:
		return HasherFunc(func(img image.Image) (Hash, error) { return AverageHash(img, size) }), nil
	case Difference:
		return HasherFunc(func(img image.Image) (Hash, error) { return DifferenceHash(img, size) }), nil
	case Perceptual:
		if !IsPowerOfTwo(aux) {
			return nil, fmt.Errorf("high frequency factor %d is not a power of two: %w", aux, ErrInvalidParameter)
		}
		return HasherFunc(func(img image.Image) (Hash, error) { return PerceptualHash(img, size, aux) }), nil
	case Ring:
		if !IsPowerOfTwo(aux) {
			return nil, fmt.Errorf("block size %d is not a power of two: %w", aux, ErrInvalidParameter)
		}
		return HasherFunc(func(img image.Image) (Hash, error) { return RingHash(img, size, aux) }), nil
	}
	return nil, fmt.Errorf("unknown algorithm %v: %w", alg, ErrInvalidParameter)
}

func checkSize(name string, n int) error {
	if !IsPowerOfTwo(n) {
		return fmt.Errorf("%s %d is not a power of two: %w", name, n, ErrInvalidParameter)
	}
	return nil
}

// AverageHash sets a bit for every pixel at or above the mean of a
// size x size thumbnail
func AverageHash(img image.Image, size int) (Hash, error) {
	if err := checkSize("hash size", size); err != nil {
		return Hash{}, err
	}
	pixels, err := prepare(img, size, size)
	if err != nil {
		return Hash{}, err
	}
	flat := flatten(pixels)
	mean := stat.Mean(flat, nil)
	bits := make([]bool, len(flat))
	for i, v := range flat {
		bits[i] = v >= mean
	}
	return Hash{bits: bits}, nil
}

// DifferenceHash sets a bit where the pixel to the right and the pixel below
// are both at least as bright
func DifferenceHash(img image.Image, size int) (Hash, error) {
	if err := checkSize("hash size", size); err != nil {
		return Hash{}, err
	}
	p, err := prepare(img, size+1, size+1)
	if err != nil {
		return Hash{}, err
	}
	bits := make([]bool, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			bits = append(bits, p[y][x+1] >= p[y][x] && p[y+1][x] >= p[y][x])
		}
	}
	return Hash{bits: bits}, nil
}

// DifferenceHashHorizontal compares horizontally adjacent pixels of a
// (size+1) x size thumbnail
func DifferenceHashHorizontal(img image.Image, size int) (Hash, error) {
	if err := checkSize("hash size", size); err != nil {
		return Hash{}, err
	}
	p, err := prepare(img, size+1, size)
	if err != nil {
		return Hash{}, err
	}
	bits := make([]bool, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			bits = append(bits, p[y][x+1] >= p[y][x])
		}
	}
	return Hash{bits: bits}, nil
}

// DifferenceHashVertical compares vertically adjacent pixels of a
// size x (size+1) thumbnail
func DifferenceHashVertical(img image.Image, size int) (Hash, error) {
	if err := checkSize("hash size", size); err != nil {
		return Hash{}, err
	}
	p, err := prepare(img, size, size+1)
	if err != nil {
		return Hash{}, err
	}
	bits := make([]bool, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			bits = append(bits, p[y+1][x] >= p[y][x])
		}
	}
	return Hash{bits: bits}, nil
}

// PerceptualHash thresholds the low-frequency DCT coefficients, excluding the
// DC row and column, against their mean
func PerceptualHash(img image.Image, size, highFreqFactor int) (Hash, error) {
	if err := checkSize("hash size", size); err != nil {
		return Hash{}, err
	}
	if err := checkSize("high frequency factor", highFreqFactor); err != nil {
		return Hash{}, err
	}
	n := size * highFreqFactor
	pixels, err := prepare(img, n, n)
	if err != nil {
		return Hash{}, err
	}
	dct := transforms.DCT2D(pixels, n, n)

	low := make([]float64, 0, size*size)
	for y := 1; y <= size; y++ {
		low = append(low, dct[y][1:size+1]...)
	}
	mean := stat.Mean(low, nil)
	bits := make([]bool, len(low))
	for i, v := range low {
		bits[i] = v >= mean
	}
	return Hash{bits: bits}, nil
}

// RingHash averages block x block cells into a size x size grid, thresholds
// each quarter of the grid against its own mean and flips the result so the
// darkest quarter comes first
func RingHash(img image.Image, size, blockSize int) (Hash, error) {
	if err := checkSize("hash size", size); err != nil {
		return Hash{}, err
	}
	if err := checkSize("block size", blockSize); err != nil {
		return Hash{}, err
	}
	if size < 2 {
		return Hash{}, fmt.Errorf("hash size %d leaves empty quarters: %w", size, ErrInvalidParameter)
	}
	n := size * blockSize
	pixels, err := prepare(img, n, n)
	if err != nil {
		return Hash{}, err
	}

	cells := make([]float64, 0, size*size)
	block := make([]float64, 0, blockSize*blockSize)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			block = block[:0]
			for y := i * blockSize; y < (i+1)*blockSize; y++ {
				block = append(block, pixels[y][j*blockSize:(j+1)*blockSize]...)
			}
			cells = append(cells, stat.Mean(block, nil))
		}
	}

	quarter := len(cells) / 4
	bits := make([]bool, len(cells))
	minIdx, minMean := 0, 0.0
	for q := 0; q < 4; q++ {
		part := cells[q*quarter : (q+1)*quarter]
		mean := stat.Mean(part, nil)
		if q == 0 || mean < minMean {
			minIdx, minMean = q, mean
		}
		for k, v := range part {
			bits[q*quarter+k] = v >= mean
		}
	}
	return Hash{bits: canonicalFlip(bits, size, minIdx)}, nil
}

// canonicalFlip mirrors a size x size bit grid according to which quarter had
// the lowest mean: 1 mirrors left-right, 2 top-bottom, 3 both
func canonicalFlip(bits []bool, size, quarter int) []bool {
	flipLR := quarter == 1 || quarter == 3
	flipUD := quarter == 2 || quarter == 3
	if !flipLR && !flipUD {
		return bits
	}
	out := make([]bool, len(bits))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sy, sx := y, x
			if flipUD {
				sy = size - 1 - y
			}
			if flipLR {
				sx = size - 1 - x
			}
			out[y*size+x] = bits[sy*size+sx]
		}
	}
	return out
}

func flatten(m [][]float64) []float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]float64, 0, len(m)*len(m[0]))
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}
