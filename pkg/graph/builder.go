// Package graph builds the adjacency and Laplacian matrices consumed by
// spatio-temporal models. Every builder returns a square matrix indexed by
// node.
package graph

import (
	"math"

	"github.com/pkg/errors"

	"github.com/citygrid/stationstore/pkg/series"
)

const earthRadiusMeters = 6371000

// LatLng is a station coordinate in degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// HaversineMeters returns the great-circle distance between two coordinates.
func HaversineMeters(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// DistanceAdjacent links nodes whose great-circle distance is strictly
// below threshold meters.
func DistanceAdjacent(coords []LatLng, threshold float64) *series.Matrix {
	n := len(coords)
	am := series.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if HaversineMeters(coords[i], coords[j]) < threshold {
				am.Set(i, j, 1)
			}
		}
	}
	return am
}

// CorrelationAdjacent links nodes whose traffic series have a Pearson
// correlation strictly above threshold. NaN correlations (flat series)
// are treated as no edge.
func CorrelationAdjacent(traffic *series.Matrix, threshold float64) *series.Matrix {
	n := traffic.Cols
	am := series.NewMatrix(n, n)
	cols := make([][]float64, n)
	for j := 0; j < n; j++ {
		cols[j] = traffic.Col(j)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r := series.Pearson(cols[i], cols[j])
			if !math.IsNaN(r) && r > threshold {
				am.Set(i, j, 1)
			}
		}
	}
	return am
}

// InteractionAdjacent links nodes whose pairwise interaction volume is
// strictly above threshold. The input is expected to already be aggregated
// (e.g. the last twelve months summed and symmetrized).
func InteractionAdjacent(interaction *series.Matrix, threshold float64) (*series.Matrix, error) {
	if interaction.Rows != interaction.Cols {
		return nil, errors.Errorf("interaction matrix must be square, got %dx%d",
			interaction.Rows, interaction.Cols)
	}
	n := interaction.Rows
	am := series.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if interaction.At(i, j) > threshold {
				am.Set(i, j, 1)
			}
		}
	}
	return am, nil
}
