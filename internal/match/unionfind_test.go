package match

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind()

	// Initially all separate
	for i := int64(0); i < 5; i++ {
		if uf.Find(i) != i {
			t.Errorf("expected %d to be its own root", i)
		}
	}

	// Union 0 and 1
	uf.Union(0, 1)
	if uf.Find(0) != uf.Find(1) {
		t.Error("expected 0 and 1 to be in same group")
	}

	// Union 2 and 3
	uf.Union(2, 3)
	if uf.Find(2) != uf.Find(3) {
		t.Error("expected 2 and 3 to be in same group")
	}

	// 4 should still be separate
	if uf.Find(4) == uf.Find(0) || uf.Find(4) == uf.Find(2) {
		t.Error("expected 4 to be separate")
	}

	// Union the two groups
	uf.Union(1, 3)
	if uf.Find(0) != uf.Find(2) {
		t.Error("expected all of 0,1,2,3 to be in same group")
	}

	expected := [][]int64{{0, 1, 2, 3}}
	if sets := uf.Sets(); !reflect.DeepEqual(sets, expected) {
		t.Errorf("Sets() = %v, want %v", sets, expected)
	}
}

func TestGroups_TransitiveClosure(t *testing.T) {
	// (1,3) is never linked directly
	sets := PairGroups([]Pair{{A: 1, B: 2}, {A: 2, B: 3}})
	expected := [][]int64{{1, 2, 3}}
	if !reflect.DeepEqual(sets, expected) {
		t.Errorf("PairGroups = %v, want %v", sets, expected)
	}
}

func TestGroups_NoFacts(t *testing.T) {
	if sets := Groups(nil); len(sets) != 0 {
		t.Errorf("expected no groups, got %v", sets)
	}
	if sets := Groups([][]int64{{7}}); len(sets) != 0 {
		t.Errorf("single-id fact should not form a group, got %v", sets)
	}
}

func TestGroups_OrderIndependent(t *testing.T) {
	facts := [][]int64{
		{1, 2},
		{5, 6, 7},
		{2, 9},
		{11, 12},
		{7, 8},
		{3, 4},
		{4, 3},
		{12, 13, 14},
	}
	expected := [][]int64{{1, 2, 9}, {3, 4}, {5, 6, 7, 8}, {11, 12, 13, 14}}

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		shuffled := make([][]int64, len(facts))
		for i, f := range facts {
			g := append([]int64(nil), f...)
			rng.Shuffle(len(g), func(a, b int) { g[a], g[b] = g[b], g[a] })
			shuffled[i] = g
		}
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		if got := Groups(shuffled); !reflect.DeepEqual(got, expected) {
			t.Fatalf("trial %d: Groups = %v, want %v", trial, got, expected)
		}
	}
}
