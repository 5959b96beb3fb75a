package hash

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidParameter is returned when a size parameter is not a power of two
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrShapeMismatch is returned when comparing hashes of different lengths
	ErrShapeMismatch = errors.New("hash shape mismatch")
	// ErrEmptyHash is returned when a multi-hash without members is compared
	ErrEmptyHash = errors.New("empty hash")
	// ErrKindMismatch is returned when a fingerprint is neither a hash nor a multi-hash
	ErrKindMismatch = errors.New("hash kind mismatch")
	// ErrInvalidHex is returned when hash text is not hexadecimal
	ErrInvalidHex = errors.New("invalid hex")
)

const hexDigits = "0123456789abcdef"

// Hash is an immutable ordered bit vector
type Hash struct {
	bits []bool
}

// New creates a Hash from a bit sequence. The slice is copied.
func New(bits []bool) Hash {
	b := make([]bool, len(bits))
	copy(b, bits)
	return Hash{bits: b}
}

// FromHex decodes hash text. The result always has len(s)*4 bits, so leading
// zero nibbles are preserved.
func FromHex(s string) (Hash, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Hash{}, fmt.Errorf("decode %q: %w", s, ErrInvalidHex)
	}
	bits := make([]bool, 0, len(s)*4)
	for i := 0; i < len(s); i++ {
		v := strings.IndexByte(hexDigits, s[i])
		if v < 0 {
			return Hash{}, fmt.Errorf("decode %q: %w", s, ErrInvalidHex)
		}
		for shift := 3; shift >= 0; shift-- {
			bits = append(bits, v>>shift&1 == 1)
		}
	}
	return Hash{bits: bits}, nil
}

// Len returns the number of bits
func (h Hash) Len() int {
	return len(h.bits)
}

// Bit returns the bit at position i
func (h Hash) Bit(i int) bool {
	return h.bits[i]
}

// Bits returns a copy of the bit sequence
func (h Hash) Bits() []bool {
	b := make([]bool, len(h.bits))
	copy(b, h.bits)
	return b
}

// Hex packs the bits MSB-first into lowercase hex digits. Trailing bits that
// do not fill a whole nibble are dropped.
func (h Hash) Hex() string {
	var sb strings.Builder
	sb.Grow(len(h.bits) / 4)
	for i := 0; i+4 <= len(h.bits); i += 4 {
		v := 0
		for j := 0; j < 4; j++ {
			v <<= 1
			if h.bits[i+j] {
				v |= 1
			}
		}
		sb.WriteByte(hexDigits[v])
	}
	return sb.String()
}

// String implements fmt.Stringer
func (h Hash) String() string {
	return h.Hex()
}

// Equal reports whether both hashes have the same bits
func (h Hash) Equal(other Hash) bool {
	if len(h.bits) != len(other.bits) {
		return false
	}
	for i := range h.bits {
		if h.bits[i] != other.bits[i] {
			return false
		}
	}
	return true
}

// HammingDistance counts differing bit positions
func (h Hash) HammingDistance(other Hash) (int, error) {
	if len(h.bits) != len(other.bits) {
		return 0, fmt.Errorf("%d vs %d bits: %w", len(h.bits), len(other.bits), ErrShapeMismatch)
	}
	count := 0
	for i := range h.bits {
		if h.bits[i] != other.bits[i] {
			count++
		}
	}
	return count, nil
}

// Distance returns the Hamming distance normalized to [0,1]
func (h Hash) Distance(other Hash) (float64, error) {
	d, err := h.HammingDistance(other)
	if err != nil {
		return 0, err
	}
	if len(h.bits) == 0 {
		return 0, nil
	}
	return float64(d) / float64(len(h.bits)), nil
}

// IsPowerOfTwo reports whether n is a positive power of two
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
