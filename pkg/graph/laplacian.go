package graph

import (
	"math"

	"github.com/pkg/errors"

	"github.com/citygrid/stationstore/pkg/series"
)

const (
	powerIterations = 200
	powerTolerance  = 1e-9
)

// AdjacentToLaplacian converts an adjacency matrix into the rescaled
// normalized Laplacian 2L/lambda_max - I, with L = I - D^-1/2 A D^-1/2.
// The diagonal of the adjacency is zeroed first and isolated nodes
// contribute zero degree terms.
func AdjacentToLaplacian(am *series.Matrix) (*series.Matrix, error) {
	if am.Rows != am.Cols {
		return nil, errors.Errorf("adjacency must be square, got %dx%d", am.Rows, am.Cols)
	}
	n := am.Rows
	a := am.Clone()
	for i := 0; i < n; i++ {
		a.Set(i, i, 0)
	}
	invSqrtDegree := make([]float64, n)
	for i := 0; i < n; i++ {
		degree := 0.0
		for j := 0; j < n; j++ {
			degree += a.At(j, i)
		}
		if degree > 0 {
			invSqrtDegree[i] = 1 / math.Sqrt(degree)
		}
	}
	lm := series.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := -invSqrtDegree[i] * a.At(i, j) * invSqrtDegree[j]
			if i == j {
				v += 1
			}
			lm.Set(i, j, v)
		}
	}
	lambda := maxEigenvalue(lm)
	if lambda == 0 {
		// empty graph: L is the identity, which rescales to itself
		lambda = 2
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := 2 * lm.At(i, j) / lambda
			if i == j {
				v -= 1
			}
			lm.Set(i, j, v)
		}
	}
	return lm, nil
}

// maxEigenvalue estimates the largest eigenvalue of a symmetric matrix by
// power iteration. The normalized Laplacian's spectrum lies in [0, 2], so
// the dominant eigenvalue is the one we want.
func maxEigenvalue(m *series.Matrix) float64 {
	n := m.Rows
	if n == 0 {
		return 0
	}
	// deterministic non-uniform start so the iteration cannot begin
	// orthogonal to the dominant eigenvector of a regular graph
	v := make([]float64, n)
	norm0 := 0.0
	for i := range v {
		v[i] = float64(i + 1)
		norm0 += v[i] * v[i]
	}
	norm0 = math.Sqrt(norm0)
	for i := range v {
		v[i] /= norm0
	}
	next := make([]float64, n)
	lambda := 0.0
	for iter := 0; iter < powerIterations; iter++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			row := m.Row(i)
			for j := 0; j < n; j++ {
				sum += row[j] * v[j]
			}
			next[i] = sum
		}
		norm := 0.0
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return 0
		}
		for i := range next {
			next[i] /= norm
		}
		prev := lambda
		lambda = 0
		for i := 0; i < n; i++ {
			row := m.Row(i)
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += row[j] * next[j]
			}
			lambda += next[i] * sum
		}
		v, next = next, v
		if math.Abs(lambda-prev) < powerTolerance {
			break
		}
	}
	return lambda
}
