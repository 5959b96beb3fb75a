package match

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"dupsieve/internal/hash"
	"dupsieve/internal/models"
)

func mustHex(t testing.TB, s string) hash.Hash {
	t.Helper()
	h, err := hash.FromHex(s)
	if err != nil {
		t.Fatalf("FromHex(%q) failed: %v", s, err)
	}
	return h
}

func TestBKTree_Empty(t *testing.T) {
	tree := newBKTree()

	results := tree.findWithinDistance(mustHex(t, "00"), 10)
	if len(results) != 0 {
		t.Errorf("expected empty results for empty tree, got %d", len(results))
	}

	if tree.size() != 0 {
		t.Errorf("expected size 0, got %d", tree.size())
	}
}

func TestBKTree_SingleElement(t *testing.T) {
	tree := newBKTree()
	tree.insert(mustHex(t, "0f"), 0)

	// Exact match
	results := tree.findWithinDistance(mustHex(t, "0f"), 0)
	if len(results) != 1 || results[0] != 0 {
		t.Errorf("expected [0], got %v", results)
	}

	// Within threshold
	results = tree.findWithinDistance(mustHex(t, "0e"), 1) // distance 1
	if len(results) != 1 || results[0] != 0 {
		t.Errorf("expected [0], got %v", results)
	}

	// Outside threshold
	results = tree.findWithinDistance(mustHex(t, "00"), 3) // distance 4
	if len(results) != 0 {
		t.Errorf("expected [], got %v", results)
	}

	// Different length never matches
	results = tree.findWithinDistance(mustHex(t, "000f"), 64)
	if len(results) != 0 {
		t.Errorf("expected [] for 16-bit query, got %v", results)
	}
}

func TestBKTree_MultipleElements(t *testing.T) {
	tree := newBKTree()

	// Insert hashes with known distances
	hashes := []string{
		"00", // index 0
		"01", // index 1, distance 1 from 0
		"03", // index 2, distance 2 from 0, distance 1 from 1
		"0f", // index 3, distance 4 from 0
		"00", // index 4, distance 0 from 0 (duplicate hash)
	}

	for i, h := range hashes {
		tree.insert(mustHex(t, h), i)
	}

	if tree.size() != 5 {
		t.Errorf("expected size 5, got %d", tree.size())
	}

	tests := []struct {
		radius   int
		expected []int
	}{
		{0, []int{0, 4}},
		{1, []int{0, 1, 4}},
		{2, []int{0, 1, 2, 4}},
		{4, []int{0, 1, 2, 3, 4}},
	}

	for _, tt := range tests {
		results := tree.findWithinDistance(mustHex(t, "00"), tt.radius)
		if !containsAll(results, tt.expected) {
			t.Errorf("radius %d: expected %v, got %v", tt.radius, tt.expected, results)
		}
	}
}

// Helper function to check if all expected values are in results
func containsAll(results []int, expected []int) bool {
	if len(results) != len(expected) {
		return false
	}
	found := make(map[int]bool)
	for _, r := range results {
		found[r] = true
	}
	for _, e := range expected {
		if !found[e] {
			return false
		}
	}
	return true
}

func records(hashes ...string) []*models.Record {
	out := make([]*models.Record, len(hashes))
	for i, h := range hashes {
		out[i] = &models.Record{ID: int64(i + 1), Path: fmt.Sprintf("%c.png", 'a'+i), Hash: h, Width: 10, Height: 10, DPI: 72}
	}
	return out
}

func TestPairwiseMatcher_NoDuplicates(t *testing.T) {
	m := NewPairwiseMatcher(records("0000", "ffff", "00ff"), 97)
	if pairs := MatchAll(m); len(pairs) != 0 {
		t.Errorf("expected no pairs for distant hashes, got %v", pairs)
	}
}

func TestPairwiseMatcher_Threshold(t *testing.T) {
	// 16-bit hashes one bit apart: similarity 0.9375
	recs := records("0000", "0001")

	tests := []struct {
		threshold float64
		expected  int
	}{
		{90, 1},
		{93.4, 1},
		{94, 0},
		{100, 0},
	}

	for _, tt := range tests {
		pairs := MatchAll(NewPairwiseMatcher(recs, tt.threshold))
		if len(pairs) != tt.expected {
			t.Errorf("threshold %v: got %d pairs, want %d", tt.threshold, len(pairs), tt.expected)
		}
	}
}

func TestPairwiseMatcher_IncompatibleHashesSkipped(t *testing.T) {
	m := NewPairwiseMatcher(records("00", "0000", "000000,ffffff", "zz"), 10)
	if pairs := MatchAll(m); len(pairs) != 0 {
		t.Errorf("expected no pairs across incompatible hashes, got %v", pairs)
	}
}

func TestPairwiseMatcher_RowCost(t *testing.T) {
	m := NewPairwiseMatcher(records("00", "01", "02", "03"), 90)
	total := 0
	for i := 0; i < m.Rows(); i++ {
		total += m.RowCost(i)
	}
	if total != 6 {
		t.Errorf("total row cost = %d, want 6", total)
	}
}

func TestBKTreeMatcher_EquivalenceWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var hashes []string
	base := make([]byte, 16)
	rng.Read(base)
	for i := 0; i < 80; i++ {
		b := make([]byte, 16)
		copy(b, base)
		// flip a few random bits so some hashes are near each other
		for k := 0; k < rng.Intn(12); k++ {
			b[rng.Intn(16)] ^= 1 << uint(rng.Intn(8))
		}
		if i%5 == 0 {
			rng.Read(b)
		}
		hashes = append(hashes, fmt.Sprintf("%x", b))
	}
	recs := records(hashes...)

	for _, threshold := range []float64{90, 95, 97, 99, 100} {
		brute := MatchAll(NewPairwiseMatcher(recs, threshold))
		bk := MatchAll(NewBKTreeMatcher(recs, threshold))
		if !reflect.DeepEqual(pairSet(brute), pairSet(bk)) {
			t.Errorf("threshold %v: BK-tree found %d pairs, brute force found %d", threshold, len(bk), len(brute))
		}
	}
}

func pairSet(pairs []Pair) map[[2]int64]bool {
	out := make(map[[2]int64]bool)
	for _, p := range pairs {
		out[[2]int64{p.A, p.B}] = true
	}
	return out
}

func BenchmarkBKTree_Find(b *testing.B) {
	tree := newBKTree()
	for i := 0; i < 10000; i++ {
		tree.insert(hash.New(uintBits(uint64(i*12345))), i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.findWithinDistance(hash.New(uintBits(uint64(i*67890))), 10)
	}
}

func uintBits(v uint64) []bool {
	bits := make([]bool, 64)
	for i := range bits {
		bits[i] = v>>(63-i)&1 == 1
	}
	return bits
}

func TestSearchRadius(t *testing.T) {
	tests := []struct {
		bits      int
		threshold float64
		expected  int
	}{
		{64, 97, 2},
		{256, 97, 8},
		{256, 97.5, 8},
		{256, 98, 6},
		{64, 100, 1},
	}

	for _, tt := range tests {
		if got := searchRadius(tt.bits, tt.threshold); got != tt.expected {
			t.Errorf("searchRadius(%d, %v) = %d, want %d", tt.bits, tt.threshold, got, tt.expected)
		}
	}
}
