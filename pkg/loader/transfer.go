package loader

import (
	"math"

	"github.com/pkg/errors"

	"github.com/citygrid/stationstore/pkg/series"
)

// SimRecord pairs a target node with its best-matching source node. Start
// and End bound the source train window the match came from, in slots.
type SimRecord struct {
	Similarity float64
	SourceNode int
	Start      int
	End        int
}

// TransferLoader computes cross-city node similarities between a
// data-rich source loader and a data-scarce target loader.
type TransferLoader struct {
	Source *Loader
	Target *Loader
}

// NewTransferLoader pairs two loaders. Both must slice days into the same
// number of slots.
func NewTransferLoader(source, target *Loader) (*TransferLoader, error) {
	if source.DailySlots != target.DailySlots {
		return nil, errors.Errorf("daily slot mismatch: source %d, target %d",
			source.DailySlots, target.DailySlots)
	}
	return &TransferLoader{Source: source, Target: target}, nil
}

// TrafficSim slides a window the size of the target train split over the
// source train split, one day at a time, and records per target node the
// most cosine-similar source node and the window it was found in.
func (t *TransferLoader) TrafficSim() ([]SimRecord, error) {
	src, tgt := t.Source.TrainData, t.Target.TrainData
	if src.Rows <= tgt.Rows {
		return nil, errors.Errorf("source train split (%d slots) not longer than target's (%d slots)",
			src.Rows, tgt.Rows)
	}
	records := make([]SimRecord, tgt.Cols)
	for j := range records {
		records[j].Similarity = math.Inf(-1)
	}
	targetCols := make([][]float64, tgt.Cols)
	for j := range targetCols {
		targetCols[j] = tgt.Col(j)
	}
	for i := 0; i < src.Rows-tgt.Rows; i += t.Source.DailySlots {
		window := src.SliceRows(i, i+tgt.Rows)
		for j, targetCol := range targetCols {
			for s := 0; s < window.Cols; s++ {
				sim := series.Cosine(targetCol, window.Col(s))
				if sim > records[j].Similarity {
					records[j] = SimRecord{
						Similarity: sim,
						SourceNode: s,
						Start:      i,
						End:        i + tgt.Rows,
					}
				}
			}
		}
	}
	return records, nil
}

// CheckinSim matches nodes by the Pearson similarity of their check-in
// profiles. Each profile is scaled by its own max before comparison.
func (t *TransferLoader) CheckinSim() ([]SimRecord, error) {
	srcProfiles, err := checkinProfiles(t.Source)
	if err != nil {
		return nil, errors.Wrap(err, "source check-in profiles")
	}
	tgtProfiles, err := checkinProfiles(t.Target)
	if err != nil {
		return nil, errors.Wrap(err, "target check-in profiles")
	}
	start := t.Source.TrainY.Rows - t.Target.TrainY.Rows
	records := make([]SimRecord, len(tgtProfiles))
	for j, tp := range tgtProfiles {
		best := SimRecord{Similarity: math.Inf(-1)}
		for s, sp := range srcProfiles {
			r := series.Pearson(tp, sp)
			if math.IsNaN(r) {
				continue
			}
			if r > best.Similarity {
				best = SimRecord{
					Similarity: r,
					SourceNode: s,
					Start:      start,
					End:        t.Source.TrainY.Rows,
				}
			}
		}
		records[j] = best
	}
	return records, nil
}

// checkinProfiles returns the active nodes' check-in rows, each scaled by
// its row max plus a small epsilon so flat rows stay finite.
func checkinProfiles(l *Loader) ([][]float64, error) {
	checkin := l.DataSet.Checkin
	if checkin.Empty() {
		return nil, errors.New("dataset has no check-in data")
	}
	profiles := make([][]float64, 0, len(l.TrafficIndex))
	for _, node := range l.TrafficIndex {
		if node >= checkin.Rows {
			return nil, errors.Errorf("check-in data missing node %d", node)
		}
		row := append([]float64(nil), checkin.Row(node)...)
		max := 0.0
		for _, v := range row {
			if v > max {
				max = v
			}
		}
		for i := range row {
			row[i] /= max + 1e-4
		}
		profiles = append(profiles, row)
	}
	return profiles, nil
}
