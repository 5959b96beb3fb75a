package match

import "sort"

// UnionFind maintains disjoint sets of record ids
type UnionFind struct {
	parent map[int64]int64
	size   map[int64]int
}

// NewUnionFind creates an empty UnionFind
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[int64]int64),
		size:   make(map[int64]int),
	}
}

func (uf *UnionFind) add(x int64) {
	if _, ok := uf.parent[x]; !ok {
		uf.parent[x] = x
		uf.size[x] = 1
	}
}

// Find returns the representative of x's set, adding x if unseen
func (uf *UnionFind) Find(x int64) int64 {
	uf.add(x)
	root := x
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	// Path compression
	for uf.parent[x] != root {
		next := uf.parent[x]
		uf.parent[x] = root
		x = next
	}
	return root
}

// Union merges the sets holding x and y
func (uf *UnionFind) Union(x, y int64) {
	px, py := uf.Find(x), uf.Find(y)
	if px == py {
		return
	}
	// Union by size
	if uf.size[px] < uf.size[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	uf.size[px] += uf.size[py]
}

// Link merges all ids of one fact into a single set
func (uf *UnionFind) Link(ids ...int64) {
	for i, id := range ids {
		if i == 0 {
			uf.add(id)
			continue
		}
		uf.Union(ids[0], id)
	}
}

// Sets returns every set with at least two members. Members are ascending
// and sets are ordered by their smallest member.
func (uf *UnionFind) Sets() [][]int64 {
	byRoot := make(map[int64][]int64)
	for id := range uf.parent {
		root := uf.Find(id)
		byRoot[root] = append(byRoot[root], id)
	}

	var sets [][]int64
	for _, members := range byRoot {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		sets = append(sets, members)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i][0] < sets[j][0] })
	return sets
}

// Groups merges linked-id facts of any size into disjoint groups
func Groups(facts [][]int64) [][]int64 {
	uf := NewUnionFind()
	for _, f := range facts {
		uf.Link(f...)
	}
	return uf.Sets()
}

// PairGroups merges matched pairs into disjoint groups
func PairGroups(pairs []Pair) [][]int64 {
	uf := NewUnionFind()
	for _, p := range pairs {
		uf.Union(p.A, p.B)
	}
	return uf.Sets()
}
