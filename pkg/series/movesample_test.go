package series

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// rampMatrix fills a [slots x nodes] matrix where slot t, node j holds
// t*100 + j, so any sampled value identifies its source slot.
func rampMatrix(slots, nodes int) *Matrix {
	m := NewMatrix(slots, nodes)
	for t := 0; t < slots; t++ {
		for j := 0; j < nodes; j++ {
			m.Set(t, j, float64(t*100+j))
		}
	}
	return m
}

func TestMoveSampleShapes(t *testing.T) {
	daily := 4
	sampler := STMoveSample{
		ClosenessLen: 3,
		PeriodLen:    2,
		TrendLen:     1,
		TargetLength: 1,
		DailySlots:   daily,
	}
	slots := 10 * 7 * daily // ten weeks
	data := rampMatrix(slots, 2)

	closeness, period, trend, targets, err := sampler.MoveSample(data)
	require.NoError(t, err)

	// one trend week dominates the history offset
	offset := 1 * 7 * daily
	wantSamples := slots - offset
	require.Equal(t, wantSamples, closeness.Samples)
	require.Equal(t, wantSamples, period.Samples)
	require.Equal(t, wantSamples, trend.Samples)
	require.Equal(t, wantSamples, targets.Rows)
	require.Equal(t, 3, closeness.Steps)
	require.Equal(t, 2, period.Steps)
	require.Equal(t, 1, trend.Steps)
	require.Equal(t, 2, closeness.Nodes)
}

func TestMoveSampleValues(t *testing.T) {
	daily := 4
	sampler := STMoveSample{
		ClosenessLen: 2,
		PeriodLen:    2,
		TrendLen:     1,
		TargetLength: 1,
		DailySlots:   daily,
	}
	slots := 8 * 7 * daily
	data := rampMatrix(slots, 1)

	closeness, period, trend, targets, err := sampler.MoveSample(data)
	require.NoError(t, err)

	offset := 7 * daily
	// first sample targets slot `offset`
	require.Equal(t, float64(offset*100), targets.At(0, 0))

	// closeness covers the two slots right before the target,
	// earlier -> later
	require.Equal(t, float64((offset-2)*100), closeness.At(0, 0, 0))
	require.Equal(t, float64((offset-1)*100), closeness.At(0, 0, 1))

	// period covers the same slot of the two former days
	require.Equal(t, float64((offset-2*daily)*100), period.At(0, 0, 0))
	require.Equal(t, float64((offset-daily)*100), period.At(0, 0, 1))

	// trend covers the same slot of the former week
	require.Equal(t, float64((offset-7*daily)*100), trend.At(0, 0, 0))

	// sample i targets slot offset+i
	i := 5
	require.Equal(t, float64((offset+i)*100), targets.At(i, 0))
	require.Equal(t, float64((offset+i-1)*100), closeness.At(i, 0, 1))
}

func TestMoveSampleZeroLengths(t *testing.T) {
	sampler := STMoveSample{
		ClosenessLen: 0,
		PeriodLen:    0,
		TrendLen:     0,
		TargetLength: 1,
		DailySlots:   4,
	}
	data := rampMatrix(8, 2)
	closeness, period, trend, targets, err := sampler.MoveSample(data)
	require.NoError(t, err)
	require.True(t, closeness.Empty())
	require.True(t, period.Empty())
	require.True(t, trend.Empty())
	require.Equal(t, 8, targets.Rows)
}

func TestMoveSampleNoTargets(t *testing.T) {
	sampler := STMoveSample{
		ClosenessLen: 2,
		TargetLength: 0,
		DailySlots:   4,
	}
	data := rampMatrix(8, 1)
	closeness, _, _, targets, err := sampler.MoveSample(data)
	require.NoError(t, err)
	require.Nil(t, targets)
	// with no target a history can end on the final slot
	require.Equal(t, 8-2+1, closeness.Samples)
}

func TestMoveSampleTooShort(t *testing.T) {
	sampler := STMoveSample{
		ClosenessLen: 6,
		TargetLength: 1,
		DailySlots:   4,
	}
	data := rampMatrix(3, 1)
	closeness, _, _, targets, err := sampler.MoveSample(data)
	require.NoError(t, err)
	require.Equal(t, 0, closeness.Samples)
	require.Equal(t, 0, targets.Rows)
}

func TestConcatOrdering(t *testing.T) {
	daily := 4
	sampler := STMoveSample{
		ClosenessLen: 2,
		PeriodLen:    1,
		TrendLen:     1,
		TargetLength: 1,
		DailySlots:   daily,
	}
	data := rampMatrix(8*7*daily, 1)
	closeness, period, trend, _, err := sampler.MoveSample(data)
	require.NoError(t, err)

	history, err := Concat(closeness, period, trend)
	require.NoError(t, err)
	require.Equal(t, 4, history.Steps)
	require.Equal(t, closeness.At(0, 0, 0), history.At(0, 0, 0))
	require.Equal(t, closeness.At(0, 0, 1), history.At(0, 0, 1))
	require.Equal(t, period.At(0, 0, 0), history.At(0, 0, 2))
	require.Equal(t, trend.At(0, 0, 0), history.At(0, 0, 3))
}

func TestTrimToFirst(t *testing.T) {
	w := NewWindows(5, 2, 1)
	for i := 0; i < 5; i++ {
		w.Set(i, 0, 0, float64(i))
	}
	trimmed := w.TrimToFirst(2)
	require.Equal(t, 2, trimmed.Samples)
	require.Equal(t, float64(0), trimmed.At(0, 0, 0))
	require.Equal(t, float64(1), trimmed.At(1, 0, 0))
	// already short enough
	require.Equal(t, trimmed, trimmed.TrimToFirst(10))
}
