package series

// MinMaxNormalizer scales values into [0, 1] using the minimum and maximum
// observed when it was fitted. Fit it on the train split only so the test
// split carries no information back into training.
type MinMaxNormalizer struct {
	Min float64
	Max float64
}

// FitMinMax computes the global min and max of the matrix.
func FitMinMax(m *Matrix) MinMaxNormalizer {
	n := MinMaxNormalizer{}
	if len(m.Data) == 0 {
		return n
	}
	n.Min = m.Data[0]
	n.Max = m.Data[0]
	for _, v := range m.Data {
		if v < n.Min {
			n.Min = v
		}
		if v > n.Max {
			n.Max = v
		}
	}
	return n
}

// Normalize returns a copy of m scaled into [0, 1]. A degenerate fit
// (max == min) yields all zeros.
func (n MinMaxNormalizer) Normalize(m *Matrix) *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	span := n.Max - n.Min
	if span == 0 {
		return out
	}
	for i, v := range m.Data {
		out.Data[i] = (v - n.Min) / span
	}
	return out
}

// Denormalize is the inverse of Normalize.
func (n MinMaxNormalizer) Denormalize(m *Matrix) *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	span := n.Max - n.Min
	for i, v := range m.Data {
		out.Data[i] = v*span + n.Min
	}
	return out
}
