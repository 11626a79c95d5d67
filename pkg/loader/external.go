package loader

import (
	"github.com/pkg/errors"

	"github.com/citygrid/stationstore/pkg/dataset"
	"github.com/citygrid/stationstore/pkg/series"
)

// buildExternalFeatures assembles the slot-space external feature matrix
// for slots [start, end): weather dims, a workday one-hot, and hour-of-day
// plus day-of-week one-hots. Returns nil when nothing is selected.
func buildExternalFeatures(ds *dataset.DataSet, cfg Config, start, end int) (*series.Matrix, error) {
	var parts []*series.Matrix

	if cfg.External.Weather {
		if ds.Weather.Empty() {
			return nil, errors.New("weather feature requested but dataset has none")
		}
		if ds.Weather.Rows < end {
			return nil, errors.Errorf("weather covers %d slots, need %d", ds.Weather.Rows, end)
		}
		parts = append(parts, ds.Weather.SliceRows(start, end))
	}

	if cfg.External.Holiday {
		flags := make([]int, 0, end-start)
		for e := start; e < end; e++ {
			if cfg.WorkdayParser(ds.SlotTime(e)) {
				flags = append(flags, 1)
			} else {
				flags = append(flags, 0)
			}
		}
		parts = append(parts, series.OneHot(flags))
	}

	if cfg.External.TemporalPosition {
		hours := make([]int, 0, end-start)
		weekdays := make([]int, 0, end-start)
		for e := start; e < end; e++ {
			t := ds.SlotTime(e)
			hours = append(hours, t.Hour())
			weekdays = append(weekdays, int(t.Weekday()))
		}
		parts = append(parts, series.OneHot(hours), series.OneHot(weekdays))
	}

	if len(parts) == 0 {
		return nil, nil
	}
	out, err := series.HStack(parts...)
	if err != nil {
		return nil, errors.Wrap(err, "stack external features")
	}
	return out, nil
}
