package hash

import (
	"fmt"
	"sort"
	"strings"
)

// Fingerprint is either a single Hash or a MultiHash
type Fingerprint interface {
	String() string
	Len() int
	fingerprint()
}

func (Hash) fingerprint()      {}
func (MultiHash) fingerprint() {}

// MultiHash is an unordered collection of hashes, one per image segment
type MultiHash struct {
	members []Hash
}

// NewMulti creates a MultiHash from the given members
func NewMulti(members []Hash) MultiHash {
	m := make([]Hash, len(members))
	copy(m, members)
	return MultiHash{members: m}
}

// ParseMulti decodes comma-joined hex members
func ParseMulti(s string) (MultiHash, error) {
	parts := strings.Split(s, ",")
	members := make([]Hash, 0, len(parts))
	for _, p := range parts {
		h, err := FromHex(p)
		if err != nil {
			return MultiHash{}, err
		}
		members = append(members, h)
	}
	return MultiHash{members: members}, nil
}

// Parse decodes hash text. A comma means multi-hash.
func Parse(s string) (Fingerprint, error) {
	if strings.Contains(s, ",") {
		return ParseMulti(s)
	}
	return FromHex(s)
}

// Len returns the number of members
func (m MultiHash) Len() int {
	return len(m.members)
}

// Members returns a copy of the member hashes
func (m MultiHash) Members() []Hash {
	out := make([]Hash, len(m.members))
	copy(out, m.members)
	return out
}

func (m MultiHash) sortedHex() []string {
	out := make([]string, len(m.members))
	for i, h := range m.members {
		out[i] = h.Hex()
	}
	sort.Strings(out)
	return out
}

// String returns the members' hex text sorted ascending and joined by commas
func (m MultiHash) String() string {
	return strings.Join(m.sortedHex(), ",")
}

// Equal reports whether both collections hold the same member texts
func (m MultiHash) Equal(other MultiHash) bool {
	if len(m.members) != len(other.members) {
		return false
	}
	a, b := m.sortedHex(), other.sortedHex()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Distance is the mean, over the members of both sides, of each member's
// smallest distance to the other side. Members of unequal length count as
// fully different.
func (m MultiHash) Distance(other MultiHash) (float64, error) {
	if len(m.members) == 0 || len(other.members) == 0 {
		return 0, fmt.Errorf("%d vs %d members: %w", len(m.members), len(other.members), ErrEmptyHash)
	}
	sum := 0.0
	for _, a := range m.members {
		sum += nearest(a, other.members)
	}
	for _, b := range other.members {
		sum += nearest(b, m.members)
	}
	return sum / float64(len(m.members)+len(other.members)), nil
}

func nearest(h Hash, candidates []Hash) float64 {
	best := 1.0
	for _, c := range candidates {
		d, err := h.Distance(c)
		if err != nil {
			continue
		}
		if d < best {
			best = d
		}
	}
	return best
}

// Distance compares two fingerprints. A single hash facing a multi-hash is
// treated as a multi-hash of one segment, which is how a crop-resistant hash
// of an image with one segment reads back from its text.
func Distance(a, b Fingerprint) (float64, error) {
	switch x := a.(type) {
	case Hash:
		switch y := b.(type) {
		case Hash:
			return x.Distance(y)
		case MultiHash:
			return NewMulti([]Hash{x}).Distance(y)
		}
	case MultiHash:
		switch y := b.(type) {
		case MultiHash:
			return x.Distance(y)
		case Hash:
			return x.Distance(NewMulti([]Hash{y}))
		}
	}
	return 0, ErrKindMismatch
}
