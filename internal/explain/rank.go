package explain

import (
	"math"
	"sort"
)

// TopK returns the positions of the k largest values by magnitude, largest
// first. Equal magnitudes keep ascending position order. When there are
// fewer than k values every position is returned.
func TopK(values []float64, k int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(values[idx[a]]) > math.Abs(values[idx[b]])
	})

	if k < 0 {
		k = 0
	}
	if k < len(idx) {
		idx = idx[:k]
	}
	return idx
}
