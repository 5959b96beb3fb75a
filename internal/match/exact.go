package match

import (
	"sort"

	"dupsieve/internal/models"
)

// ExactSets buckets records by identical hash text and returns every bucket
// with at least two ids, merged through union-find like the similar groups
func ExactSets(records []*models.Record) [][]int64 {
	if len(records) < 2 {
		return nil
	}

	// Group by hash text
	buckets := make(map[string][]int64)
	for _, r := range records {
		if r.Hash != "" {
			buckets[r.Hash] = append(buckets[r.Hash], r.ID)
		}
	}

	keys := make([]string, 0, len(buckets))
	for k, ids := range buckets {
		if len(ids) >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	facts := make([][]int64, 0, len(keys))
	for _, k := range keys {
		facts = append(facts, buckets[k])
	}
	return Groups(facts)
}
