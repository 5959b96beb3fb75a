package match

import (
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"dupsieve/internal/hash"
	"dupsieve/internal/models"
)

// Pair is a matched pair of record ids with their hash distance
type Pair struct {
	A, B     int64
	Distance float64
}

// Matcher finds duplicate pairs among a fixed record set. MatchRow is safe
// for concurrent use.
type Matcher interface {
	// Rows returns the number of records
	Rows() int
	// MatchRow returns the matches between record i and every later record
	MatchRow(i int) []Pair
	// RowCost returns the number of comparisons MatchRow(i) stands for
	RowCost(i int) int
}

// MatchAll runs every row of m sequentially
func MatchAll(m Matcher) []Pair {
	var pairs []Pair
	for i := 0; i < m.Rows(); i++ {
		pairs = append(pairs, m.MatchRow(i)...)
	}
	return pairs
}

// BuildGroups turns id sets into DuplicateGroups, selecting the original of
// each. Ids missing from records are dropped.
func BuildGroups(sets [][]int64, records map[int64]*models.Record, kind models.GroupKind) []*models.DuplicateGroup {
	var groups []*models.DuplicateGroup
	groupID := 1

	for _, ids := range sets {
		members := lo.FilterMap(ids, func(id int64, _ int) (*models.Record, bool) {
			r, ok := records[id]
			return r, ok
		})
		if len(members) < 2 {
			continue
		}

		group := &models.DuplicateGroup{
			ID:      groupID,
			Kind:    kind,
			Members: members,
		}
		group.AvgDistance = averageDistance(members)

		SelectOriginal(group)
		groups = append(groups, group)
		groupID++
	}

	return groups
}

// SelectOriginal determines which image to keep and which are duplicates
func SelectOriginal(group *models.DuplicateGroup) {
	if len(group.Members) == 0 {
		return
	}

	// Sort images by score (descending), then by format quality (descending),
	// then by file size (descending), then by id (ascending)
	sorted := make([]*models.Record, len(group.Members))
	copy(sorted, group.Members)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		// Primary: width * height * dpi (higher is better)
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}

		// Secondary: lossless formats first
		qa, qb := models.FormatQualityMultiplier(a.Format), models.FormatQualityMultiplier(b.Format)
		if qa != qb {
			return qa > qb
		}

		// Tertiary: file size (larger is better - more information)
		if a.SizeMB != b.SizeMB {
			return a.SizeMB > b.SizeMB
		}

		// Fallback: first seen
		return a.ID < b.ID
	})

	group.Original = sorted[0]
	group.Duplicates = sorted[1:]
}

// averageDistance is the mean hash distance over every pair in the group.
// Pairs that cannot be compared count as fully different.
func averageDistance(members []*models.Record) float64 {
	fps := make([]hash.Fingerprint, len(members))
	for i, m := range members {
		fp, err := hash.Parse(m.Hash)
		if err == nil {
			fps[i] = fp
		}
	}

	var dists []float64
	for i := 0; i < len(fps); i++ {
		for j := i + 1; j < len(fps); j++ {
			d, err := hash.Distance(fps[i], fps[j])
			if err != nil {
				d = 1
			}
			dists = append(dists, d)
		}
	}
	if len(dists) == 0 {
		return 0
	}
	return stat.Mean(dists, nil)
}

// SortByDistance orders groups by average distance, ascending unless
// descending is set. Group ids are renumbered in the new order.
func SortByDistance(groups []*models.DuplicateGroup, descending bool) {
	sort.SliceStable(groups, func(i, j int) bool {
		if descending {
			return groups[i].AvgDistance > groups[j].AvgDistance
		}
		return groups[i].AvgDistance < groups[j].AvgDistance
	})
	for i, g := range groups {
		g.ID = i + 1
	}
}
