package series

import (
	"github.com/pkg/errors"
)

// Windows holds sampled history indexed [sample][node][step]. Steps are
// ordered from earlier time slots to later time slots.
type Windows struct {
	Samples int
	Nodes   int
	Steps   int
	Data    []float64
}

func NewWindows(samples, nodes, steps int) *Windows {
	return &Windows{
		Samples: samples,
		Nodes:   nodes,
		Steps:   steps,
		Data:    make([]float64, samples*nodes*steps),
	}
}

func (w *Windows) At(sample, node, step int) float64 {
	return w.Data[(sample*w.Nodes+node)*w.Steps+step]
}

func (w *Windows) Set(sample, node, step int, v float64) {
	w.Data[(sample*w.Nodes+node)*w.Steps+step] = v
}

// Empty reports whether the windows hold no samples or no steps.
func (w *Windows) Empty() bool {
	return w == nil || w.Samples == 0 || w.Steps == 0
}

// TrimToFirst returns a view-like copy holding only the first n samples.
func (w *Windows) TrimToFirst(n int) *Windows {
	if w.Samples <= n {
		return w
	}
	return &Windows{
		Samples: n,
		Nodes:   w.Nodes,
		Steps:   w.Steps,
		Data:    w.Data[:n*w.Nodes*w.Steps],
	}
}

// STMoveSample slices a [slots x nodes] matrix into closeness, period, and
// trend history windows plus prediction targets.
//
// For a sample whose target sits at slot t:
//   - closeness is the ClosenessLen consecutive slots right before t
//   - period is the value at the same slot of the PeriodLen former days
//   - trend is the value at the same slot of the TrendLen former weeks
type STMoveSample struct {
	ClosenessLen int
	PeriodLen    int
	TrendLen     int
	TargetLength int
	DailySlots   int
}

// historyOffset is the number of leading slots consumed before the first
// target can be formed.
func (s STMoveSample) historyOffset() int {
	offset := s.ClosenessLen
	if p := s.PeriodLen * s.DailySlots; p > offset {
		offset = p
	}
	if q := s.TrendLen * 7 * s.DailySlots; q > offset {
		offset = q
	}
	return offset
}

// MoveSample slices data into history windows and targets. Targets is nil
// when TargetLength is zero. A zero closeness/period/trend length yields
// empty windows for that component.
func (s STMoveSample) MoveSample(data *Matrix) (closeness, period, trend *Windows, targets *Matrix, err error) {
	if s.ClosenessLen < 0 || s.PeriodLen < 0 || s.TrendLen < 0 {
		return nil, nil, nil, nil, errors.New("window lengths must be >= 0")
	}
	if s.DailySlots <= 0 {
		return nil, nil, nil, nil, errors.New("daily slots must be > 0")
	}
	offset := s.historyOffset()
	samples := data.Rows - offset - s.TargetLength + 1
	if samples < 0 {
		samples = 0
	}
	nodes := data.Cols

	closeness = NewWindows(samples, nodes, s.ClosenessLen)
	period = NewWindows(samples, nodes, s.PeriodLen)
	trend = NewWindows(samples, nodes, s.TrendLen)
	if s.TargetLength > 0 {
		targets = NewMatrix(samples*s.TargetLength, nodes)
	}

	for i := 0; i < samples; i++ {
		t := offset + i
		for j := 0; j < nodes; j++ {
			for c := 0; c < s.ClosenessLen; c++ {
				closeness.Set(i, j, c, data.At(t-s.ClosenessLen+c, j))
			}
			for p := 0; p < s.PeriodLen; p++ {
				period.Set(i, j, p, data.At(t-(s.PeriodLen-p)*s.DailySlots, j))
			}
			for q := 0; q < s.TrendLen; q++ {
				trend.Set(i, j, q, data.At(t-(s.TrendLen-q)*7*s.DailySlots, j))
			}
			for k := 0; k < s.TargetLength; k++ {
				targets.Set(i*s.TargetLength+k, j, data.At(t+k, j))
			}
		}
	}
	return closeness, period, trend, targets, nil
}

// Concat merges closeness, period, and trend windows for model input,
// ordered earlier closeness -> later closeness -> earlier period -> later
// period -> earlier trend -> later trend, matching the loader's stacked
// history layout.
func Concat(closeness, period, trend *Windows) (*Windows, error) {
	parts := []*Windows{closeness, period, trend}
	samples, nodes := -1, -1
	steps := 0
	for _, w := range parts {
		if w == nil || w.Steps == 0 {
			continue
		}
		if samples == -1 {
			samples, nodes = w.Samples, w.Nodes
		} else if w.Samples != samples || w.Nodes != nodes {
			return nil, errors.New("concat shape mismatch")
		}
		steps += w.Steps
	}
	if samples == -1 {
		return NewWindows(0, 0, 0), nil
	}
	out := NewWindows(samples, nodes, steps)
	for i := 0; i < samples; i++ {
		for j := 0; j < nodes; j++ {
			k := 0
			for _, w := range parts {
				if w == nil || w.Steps == 0 {
					continue
				}
				for c := 0; c < w.Steps; c++ {
					out.Set(i, j, k, w.At(i, j, c))
					k++
				}
			}
		}
	}
	return out, nil
}
