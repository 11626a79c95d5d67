package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/citygrid/stationstore/pkg/series"
)

func TestHaversineMeters(t *testing.T) {
	// one degree of latitude is roughly 111 km
	a := LatLng{Lat: 41.88, Lng: -87.63}
	b := LatLng{Lat: 42.88, Lng: -87.63}
	d := HaversineMeters(a, b)
	require.InDelta(t, 111195, d, 500)
	require.Equal(t, 0.0, HaversineMeters(a, a))
}

func TestDistanceAdjacent(t *testing.T) {
	coords := []LatLng{
		{41.8800, -87.6300},
		{41.8805, -87.6300}, // ~56m north of the first
		{41.9800, -87.6300}, // ~11km north
	}
	am := DistanceAdjacent(coords, 1000)
	require.Equal(t, 1.0, am.At(0, 1))
	require.Equal(t, 1.0, am.At(1, 0))
	require.Equal(t, 0.0, am.At(0, 2))
	require.Equal(t, 1.0, am.At(2, 2)) // self distance is zero
}

func TestCorrelationAdjacent(t *testing.T) {
	traffic := series.NewMatrix(4, 3)
	for i := 0; i < 4; i++ {
		traffic.Set(i, 0, float64(i))   // ramp up
		traffic.Set(i, 1, float64(i*2)) // correlated ramp
		traffic.Set(i, 2, float64(3-i)) // ramp down
	}
	am := CorrelationAdjacent(traffic, 0.5)
	require.Equal(t, 1.0, am.At(0, 1))
	require.Equal(t, 0.0, am.At(0, 2))
	require.Equal(t, 1.0, am.At(0, 0))
}

func TestCorrelationAdjacentThresholdIsExclusive(t *testing.T) {
	// identical series correlate at exactly 1.0, which is not above 1.0
	traffic := series.NewMatrix(4, 2)
	for i := 0; i < 4; i++ {
		traffic.Set(i, 0, float64(i))
		traffic.Set(i, 1, float64(i))
	}
	am := CorrelationAdjacent(traffic, 1.0)
	require.Equal(t, 0.0, am.At(0, 1))
	require.Equal(t, 0.0, am.At(0, 0))
}

func TestCorrelationAdjacentFlatSeries(t *testing.T) {
	traffic := series.NewMatrix(4, 2)
	for i := 0; i < 4; i++ {
		traffic.Set(i, 0, float64(i))
		traffic.Set(i, 1, 5) // flat: correlation is undefined
	}
	am := CorrelationAdjacent(traffic, 0)
	require.Equal(t, 0.0, am.At(0, 1))
	require.Equal(t, 0.0, am.At(1, 1))
}

func TestInteractionAdjacent(t *testing.T) {
	interaction := series.NewMatrix(2, 2)
	interaction.Set(0, 1, 600)
	interaction.Set(1, 0, 100)
	am, err := InteractionAdjacent(interaction, 500)
	require.NoError(t, err)
	require.Equal(t, 1.0, am.At(0, 1))
	require.Equal(t, 0.0, am.At(1, 0))

	_, err = InteractionAdjacent(series.NewMatrix(2, 3), 500)
	require.Error(t, err)
}

func TestInteractionAdjacentThresholdIsExclusive(t *testing.T) {
	interaction := series.NewMatrix(2, 2)
	interaction.Set(0, 1, 500) // exactly at the threshold
	am, err := InteractionAdjacent(interaction, 500)
	require.NoError(t, err)
	require.Equal(t, 0.0, am.At(0, 1))
}

func TestDistanceAdjacentThresholdIsExclusive(t *testing.T) {
	coords := []LatLng{
		{41.8800, -87.6300},
		{41.8805, -87.6300},
	}
	d := HaversineMeters(coords[0], coords[1])
	am := DistanceAdjacent(coords, d) // exactly at the threshold
	require.Equal(t, 0.0, am.At(0, 1))
	am = DistanceAdjacent(coords, math.Nextafter(d, math.MaxFloat64))
	require.Equal(t, 1.0, am.At(0, 1))
}

func TestAdjacentToLaplacianTwoNodes(t *testing.T) {
	am := series.NewMatrix(2, 2)
	am.Set(0, 1, 1)
	am.Set(1, 0, 1)
	lm, err := AdjacentToLaplacian(am)
	require.NoError(t, err)
	// L = [[1,-1],[-1,1]], lambda_max = 2, rescaled = L - I
	require.InDelta(t, 0.0, lm.At(0, 0), 1e-6)
	require.InDelta(t, -1.0, lm.At(0, 1), 1e-6)
	require.InDelta(t, -1.0, lm.At(1, 0), 1e-6)
	require.InDelta(t, 0.0, lm.At(1, 1), 1e-6)
}

func TestAdjacentToLaplacianEmptyGraph(t *testing.T) {
	am := series.NewMatrix(3, 3)
	lm, err := AdjacentToLaplacian(am)
	require.NoError(t, err)
	// no edges: L = I, which rescales to itself
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			require.InDelta(t, want, lm.At(i, j), 1e-6)
		}
	}
}

func TestAdjacentToLaplacianIgnoresSelfLoops(t *testing.T) {
	am := series.NewMatrix(2, 2)
	am.Set(0, 0, 1)
	am.Set(1, 1, 1)
	am.Set(0, 1, 1)
	am.Set(1, 0, 1)
	lm, err := AdjacentToLaplacian(am)
	require.NoError(t, err)
	require.InDelta(t, 0.0, lm.At(0, 0), 1e-6)
	require.InDelta(t, -1.0, lm.At(0, 1), 1e-6)
}

func TestLaplacianSymmetric(t *testing.T) {
	am := series.NewMatrix(4, 4)
	edges := [][2]int{{0, 1}, {1, 2}, {2, 3}, {0, 3}}
	for _, e := range edges {
		am.Set(e[0], e[1], 1)
		am.Set(e[1], e[0], 1)
	}
	lm, err := AdjacentToLaplacian(am)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			require.InDelta(t, lm.At(i, j), lm.At(j, i), 1e-9)
			require.False(t, math.IsNaN(lm.At(i, j)))
		}
	}
}
