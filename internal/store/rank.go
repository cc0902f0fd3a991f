package store

import (
	"math"
	"sort"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// l2FromCosine converts cosine similarity between unit vectors into Euclidean
// distance: |a-b|^2 = 2 - 2cos(a,b).
func l2FromCosine(sim float64) float64 {
	d2 := 2 - 2*sim
	if d2 < 0 {
		d2 = 0
	}
	return math.Sqrt(d2)
}

// scoreFromDistance maps a distance in [0,inf) onto a relevance in (0,1].
func scoreFromDistance(d float64) float64 {
	return 1 / (1 + d)
}

// orderByRank sorts results by their position in hits (closest first).
// Results whose id is absent from hits sort last, in their existing order.
func orderByRank(results []model.SearchResult, hits []vectorHit) {
	rank := make(map[string]int, len(hits))
	for i, h := range hits {
		rank[h.ID] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		ri, okI := rank[results[i].ID]
		rj, okJ := rank[results[j].ID]
		switch {
		case okI && okJ:
			return ri < rj
		case okI:
			return true
		default:
			return false
		}
	})
}
