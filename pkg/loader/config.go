// Package loader turns a stored city dataset into the train/test history
// windows, external features, and graph laplacians consumed by
// spatio-temporal forecasting models.
package loader

import (
	"strings"

	"github.com/AlekSi/pointer"
	"github.com/pkg/errors"

	"github.com/citygrid/stationstore/pkg/calendar"
	"github.com/citygrid/stationstore/pkg/dataset"
)

// Graph names accepted by Config.Graphs.
const (
	GraphCorrelation = "correlation"
	GraphDistance    = "distance"
	GraphInteraction = "interaction"
)

// DataRange selects the slice of the dataset to load. The zero value means
// the whole dataset. Fraction keeps the former fraction of slots; StartDay
// and EndDay keep slots from StartDay (inclusive) to EndDay (exclusive),
// both counted in days.
type DataRange struct {
	Fraction *float64
	StartDay *int
	EndDay   *int
}

// Bounds resolves the range against a dataset of the given slot count.
func (r DataRange) Bounds(slots, dailySlots int) (start, end int, err error) {
	switch {
	case r.Fraction != nil:
		f := *r.Fraction
		if f <= 0 || f > 1 {
			return 0, 0, errors.Errorf("data range fraction %v outside (0, 1]", f)
		}
		return 0, int(f * float64(slots)), nil
	case r.StartDay != nil || r.EndDay != nil:
		if r.StartDay == nil || r.EndDay == nil {
			return 0, 0, errors.New("data range needs both start and end days")
		}
		start = *r.StartDay * dailySlots
		end = *r.EndDay * dailySlots
		if start < 0 || end > slots || start >= end {
			return 0, 0, errors.Errorf("data range [%d, %d) out of bounds", start, end)
		}
		return start, end, nil
	default:
		return 0, slots, nil
	}
}

// RangeFraction is a convenience constructor for a fractional data range.
func RangeFraction(f float64) DataRange {
	return DataRange{Fraction: pointer.ToFloat64(f)}
}

// RangeDays is a convenience constructor for a [start, end) day range.
func RangeDays(start, end int) DataRange {
	return DataRange{StartDay: pointer.ToInt(start), EndDay: pointer.ToInt(end)}
}

// ExternalUse selects which external features the loader builds.
type ExternalUse struct {
	Weather bool
	Holiday bool
	// TemporalPosition adds hour-of-day and day-of-week one-hots.
	TemporalPosition bool
}

// Config controls a single Load. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	// DataRange restricts the dataset before anything else happens.
	DataRange DataRange
	// TrainDataLength, when set, keeps only the most recent N train days.
	TrainDataLength *int
	// TestRatio is the fraction of slots reserved for the test split.
	TestRatio float64

	ClosenessLen int
	PeriodLen    int
	TrendLen     int
	// TargetLength must be 1. Multi-step targets are not supported.
	TargetLength int

	// Graphs is a dash-joined subset of correlation, distance, interaction.
	// Empty disables graph building.
	Graphs               string
	ThresholdDistance    float64
	ThresholdCorrelation float64
	ThresholdInteraction float64

	Normalize bool
	External  ExternalUse
	// WorkdayParser drives the holiday feature.
	WorkdayParser calendar.WorkdayParser

	Merge dataset.MergeSpec
}

// DefaultConfig mirrors the customary loader settings: a 10% test split,
// six closeness slots, seven period days, four trend weeks, correlation
// graph, and min-max normalization.
func DefaultConfig() Config {
	return Config{
		TestRatio:            0.1,
		ClosenessLen:         6,
		PeriodLen:            7,
		TrendLen:             4,
		TargetLength:         1,
		Graphs:               GraphCorrelation,
		ThresholdDistance:    1000,
		ThresholdCorrelation: 0,
		ThresholdInteraction: 500,
		Normalize:            true,
		WorkdayParser:        calendar.IsWorkdayAmerica,
	}
}

func (c Config) validate() error {
	if c.TestRatio < 0 || c.TestRatio > 1 {
		return errors.Errorf("test ratio %v outside [0, 1]", c.TestRatio)
	}
	if c.ClosenessLen < 0 || c.PeriodLen < 0 || c.TrendLen < 0 {
		return errors.New("history lengths must be >= 0")
	}
	if c.TargetLength != 1 {
		return errors.Errorf("target length must be 1, got %d", c.TargetLength)
	}
	if c.TrainDataLength != nil && *c.TrainDataLength <= 0 {
		return errors.Errorf("train data length must be > 0, got %d", *c.TrainDataLength)
	}
	for _, name := range c.graphNames() {
		switch name {
		case GraphCorrelation, GraphDistance, GraphInteraction:
		default:
			return errors.Errorf("unknown graph %q", name)
		}
	}
	if c.External.Holiday && c.WorkdayParser == nil {
		return errors.New("holiday feature needs a workday parser")
	}
	return nil
}

func (c Config) graphNames() []string {
	if c.Graphs == "" {
		return nil
	}
	names := strings.Split(strings.ToLower(c.Graphs), "-")
	out := names[:0]
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
