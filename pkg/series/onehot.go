package series

import (
	"sort"
)

// OneHot encodes a column of integer labels as one-hot rows. Columns are
// allocated for the distinct values present, ordered ascending, matching
// encoder-fit-on-data semantics: a binary column yields two output columns
// only when both values occur.
func OneHot(values []int) *Matrix {
	distinct := map[int]int{}
	for _, v := range values {
		distinct[v] = 0
	}
	keys := make([]int, 0, len(distinct))
	for v := range distinct {
		keys = append(keys, v)
	}
	sort.Ints(keys)
	for i, v := range keys {
		distinct[v] = i
	}
	out := NewMatrix(len(values), len(keys))
	for i, v := range values {
		out.Set(i, distinct[v], 1)
	}
	return out
}
