package match

import (
	"math"

	"dupsieve/internal/hash"
	"dupsieve/internal/models"
)

// PairwiseMatcher compares every unordered pair of records
type PairwiseMatcher struct {
	ids       []int64
	fps       []hash.Fingerprint
	threshold float64
}

// NewPairwiseMatcher parses every record hash up front. Records whose hash
// does not parse never match.
func NewPairwiseMatcher(records []*models.Record, threshold float64) *PairwiseMatcher {
	m := &PairwiseMatcher{
		ids:       make([]int64, len(records)),
		fps:       make([]hash.Fingerprint, len(records)),
		threshold: threshold,
	}
	for i, r := range records {
		m.ids[i] = r.ID
		if fp, err := hash.Parse(r.Hash); err == nil {
			m.fps[i] = fp
		}
	}
	return m
}

func (m *PairwiseMatcher) Rows() int {
	return len(m.ids)
}

func (m *PairwiseMatcher) RowCost(i int) int {
	return len(m.ids) - 1 - i
}

func (m *PairwiseMatcher) MatchRow(i int) []Pair {
	var pairs []Pair
	for j := i + 1; j < len(m.ids); j++ {
		if p, ok := m.compare(i, j); ok {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// compare treats incompatible or unparsable hashes as not duplicate
func (m *PairwiseMatcher) compare(i, j int) (Pair, bool) {
	d, err := hash.Distance(m.fps[i], m.fps[j])
	if err != nil {
		return Pair{}, false
	}
	if 1-d < Similarity(m.threshold) {
		return Pair{}, false
	}
	return Pair{A: m.ids[i], B: m.ids[j], Distance: d}, true
}

// BKTreeMatcher finds candidate pairs through a BK-tree over single hashes
// and confirms each with the pairwise comparison. On single-hash records it
// produces the same pairs as PairwiseMatcher.
type BKTreeMatcher struct {
	*PairwiseMatcher
	tree   *bkTree
	radius map[int]int // hash length -> search radius in bits
}

// NewBKTreeMatcher indexes every single-hash record. Multi-hash records are
// not indexed and never match.
func NewBKTreeMatcher(records []*models.Record, threshold float64) *BKTreeMatcher {
	m := &BKTreeMatcher{
		PairwiseMatcher: NewPairwiseMatcher(records, threshold),
		tree:            newBKTree(),
		radius:          make(map[int]int),
	}
	for i, fp := range m.fps {
		h, ok := fp.(hash.Hash)
		if !ok {
			continue
		}
		m.tree.insert(h, i)
		if _, ok := m.radius[h.Len()]; !ok {
			m.radius[h.Len()] = searchRadius(h.Len(), threshold)
		}
	}
	return m
}

// searchRadius is the largest Hamming distance that can still pass the
// threshold for an n-bit hash, plus one bit of slack for rounding
func searchRadius(n int, threshold float64) int {
	return int(math.Floor(float64(n)*(1-Similarity(threshold)))) + 1
}

func (m *BKTreeMatcher) MatchRow(i int) []Pair {
	h, ok := m.fps[i].(hash.Hash)
	if !ok {
		return nil
	}
	var pairs []Pair
	for _, j := range m.tree.findWithinDistance(h, m.radius[h.Len()]) {
		if j <= i {
			continue
		}
		if p, ok := m.compare(i, j); ok {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// bkTree is a BK-tree for efficient similarity search using metric distances.
// It supports O(log n) average-case lookup for finding all elements within
// a given distance threshold. Hashes of different lengths live in separate
// roots.
type bkTree struct {
	roots map[int]*bkNode // hash length -> root
}

type bkNode struct {
	hash     hash.Hash
	index    int
	children map[int]*bkNode // distance -> child node
}

func newBKTree() *bkTree {
	return &bkTree{roots: make(map[int]*bkNode)}
}

func hamming(a, b hash.Hash) int {
	d, _ := a.HammingDistance(b)
	return d
}

// insert adds a new hash with its associated index to the tree.
func (t *bkTree) insert(h hash.Hash, index int) {
	node := &bkNode{
		hash:     h,
		index:    index,
		children: make(map[int]*bkNode),
	}

	current, ok := t.roots[h.Len()]
	if !ok {
		t.roots[h.Len()] = node
		return
	}

	for {
		dist := hamming(h, current.hash)
		if child, exists := current.children[dist]; exists {
			current = child
		} else {
			current.children[dist] = node
			return
		}
	}
}

// findWithinDistance returns all indices of elements within the given
// distance threshold from the query hash.
func (t *bkTree) findWithinDistance(h hash.Hash, threshold int) []int {
	root, ok := t.roots[h.Len()]
	if !ok {
		return nil
	}

	var results []int
	t.searchNode(root, h, threshold, &results)
	return results
}

func (t *bkTree) searchNode(node *bkNode, h hash.Hash, threshold int, results *[]int) {
	dist := hamming(h, node.hash)

	if dist <= threshold {
		*results = append(*results, node.index)
	}

	// Triangle inequality: only need to check children with distance
	// in range [dist - threshold, dist + threshold]
	minDist := dist - threshold
	if minDist < 0 {
		minDist = 0
	}
	maxDist := dist + threshold

	for childDist, child := range node.children {
		if childDist >= minDist && childDist <= maxDist {
			t.searchNode(child, h, threshold, results)
		}
	}
}

// size returns the number of elements in the tree.
func (t *bkTree) size() int {
	count := 0
	for _, root := range t.roots {
		count += t.countNodes(root)
	}
	return count
}

func (t *bkTree) countNodes(node *bkNode) int {
	count := 1
	for _, child := range node.children {
		count += t.countNodes(child)
	}
	return count
}
