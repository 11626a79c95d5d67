package dataset

import (
	"time"

	"github.com/pkg/errors"

	"github.com/citygrid/stationstore/pkg/schema"
	"github.com/citygrid/stationstore/pkg/series"
)

// Station describes one node of a dataset.
type Station struct {
	Node       int
	StationID  string
	Name       string
	Latitude   float64
	Longitude  float64
	BuildOrder int
}

// DataSet is a fully loaded (city, kind) dataset.
type DataSet struct {
	City schema.CityName
	Kind schema.DatasetKind

	// TimeFitness is the number of minutes each slot covers.
	TimeFitness int
	// RangeStart is the timestamp of slot zero.
	RangeStart time.Time

	NodeTraffic *series.Matrix // [slots x nodes]
	Stations    []Station
	// MonthlyInteraction maps month index -> [nodes x nodes] volume.
	MonthlyInteraction []*series.Matrix
	Weather            *series.Matrix // [slots x dims], may be empty
	Checkin            *series.Matrix // [nodes x dims], may be empty
}

// DailySlots returns the number of time slots per day. The fitness must
// divide a day evenly.
func (d *DataSet) DailySlots() (int, error) {
	if d.TimeFitness <= 0 {
		return 0, errors.Errorf("invalid time fitness %d", d.TimeFitness)
	}
	if (24*60)%d.TimeFitness != 0 {
		return 0, errors.Errorf("time fitness %d does not divide a day", d.TimeFitness)
	}
	return 24 * 60 / d.TimeFitness, nil
}

// SlotTime returns the timestamp of the given slot.
func (d *DataSet) SlotTime(slot int) time.Time {
	return d.RangeStart.Add(time.Duration(slot*d.TimeFitness) * time.Minute)
}

// MergeWay selects how consecutive slots combine when a dataset is merged
// to a coarser time fitness.
type MergeWay string

const (
	MergeSum     MergeWay = "sum"
	MergeAverage MergeWay = "average"
	MergeMax     MergeWay = "max"
)

// MergeSpec requests a temporal merge of factor consecutive slots.
type MergeSpec struct {
	Factor int
	Way    MergeWay
}

// Identity reports whether the spec leaves the dataset untouched.
func (m MergeSpec) Identity() bool {
	return m.Factor <= 1
}

// Merge combines every Factor consecutive slots of the traffic and weather
// series and scales the time fitness accordingly. A trailing partial group
// is dropped.
func (d *DataSet) Merge(spec MergeSpec) error {
	if spec.Identity() {
		return nil
	}
	switch spec.Way {
	case MergeSum, MergeAverage, MergeMax:
	default:
		return errors.Errorf("unknown merge way %q", spec.Way)
	}
	d.NodeTraffic = mergeRows(d.NodeTraffic, spec)
	if d.Weather != nil && d.Weather.Rows > 0 {
		d.Weather = mergeRows(d.Weather, spec)
	}
	d.TimeFitness *= spec.Factor
	return nil
}

func mergeRows(m *series.Matrix, spec MergeSpec) *series.Matrix {
	groups := m.Rows / spec.Factor
	out := series.NewMatrix(groups, m.Cols)
	for g := 0; g < groups; g++ {
		outRow := out.Row(g)
		for k := 0; k < spec.Factor; k++ {
			row := m.Row(g*spec.Factor + k)
			for j, v := range row {
				switch spec.Way {
				case MergeSum, MergeAverage:
					outRow[j] += v
				case MergeMax:
					if k == 0 || v > outRow[j] {
						outRow[j] = v
					}
				}
			}
		}
		if spec.Way == MergeAverage {
			for j := range outRow {
				outRow[j] /= float64(spec.Factor)
			}
		}
	}
	return out
}
