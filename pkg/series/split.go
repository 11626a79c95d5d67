package series

// SplitRows splits a matrix along its rows into len(ratios) pieces. Ratios
// that do not sum to one are normalized first. Boundaries truncate toward
// zero, so the final piece absorbs any rounding remainder.
func SplitRows(m *Matrix, ratios []float64) []*Matrix {
	total := 0.0
	for _, r := range ratios {
		total += r
	}
	out := make([]*Matrix, len(ratios))
	cum := 0.0
	prev := 0
	for i, r := range ratios {
		cum += r / total
		end := int(cum * float64(m.Rows))
		if i == len(ratios)-1 {
			end = m.Rows
		}
		out[i] = m.SliceRows(prev, end)
		prev = end
	}
	return out
}
