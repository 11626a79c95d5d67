package loader

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"

	"github.com/citygrid/stationstore/pkg/dataset"
	"github.com/citygrid/stationstore/pkg/graph"
	"github.com/citygrid/stationstore/pkg/schema"
	"github.com/citygrid/stationstore/pkg/series"
)

// Loader holds a dataset sliced into everything a spatio-temporal model
// consumes: normalized train/test splits, closeness/period/trend history
// windows, prediction targets, external features, and graph laplacians.
type Loader struct {
	Config  Config
	DataSet *dataset.DataSet

	// DailySlots is the number of time slots per day.
	DailySlots int
	// TrafficIndex maps kept node positions back to dataset node indices.
	// Nodes with negligible traffic are dropped.
	TrafficIndex []int
	// StationNumber is the number of kept nodes.
	StationNumber int

	// Normalizer is fit on the train split only. Zero-valued when
	// Config.Normalize is false.
	Normalizer series.MinMaxNormalizer

	// TrainData and TestData are the split traffic matrices after
	// normalization. TestData includes the prepended history expansion.
	TrainData *series.Matrix
	TestData  *series.Matrix

	TrainCloseness *series.Windows
	TrainPeriod    *series.Windows
	TrainTrend     *series.Windows
	TrainY         *series.Matrix

	TestCloseness *series.Windows
	TestPeriod    *series.Windows
	TestTrend     *series.Windows
	TestY         *series.Matrix

	TrainSequenceLen int
	TestSequenceLen  int

	// External features, slot-aligned with the respective targets.
	// All nil when no external feature is selected.
	ExternalDim      int
	TrainEF          *series.Matrix
	TestEF           *series.Matrix
	TrainEFCloseness *series.Windows
	TrainEFPeriod    *series.Windows
	TrainEFTrend     *series.Windows
	TestEFCloseness  *series.Windows
	TestEFPeriod     *series.Windows
	TestEFTrend      *series.Windows

	// AM and LM hold one adjacency and laplacian per configured graph.
	AM []*series.Matrix
	LM []*series.Matrix
}

// Load reads the (city, kind) dataset from the store and runs the full
// slicing pipeline.
func Load(ctx context.Context, store *dataset.Store, city schema.CityName, kind schema.DatasetKind, cfg Config) (*Loader, error) {
	ds, err := store.LoadDataSet(ctx, city, kind, cfg.Merge)
	if err != nil {
		return nil, err
	}
	return FromDataSet(ds, cfg)
}

// FromDataSet runs the slicing pipeline over an in-memory dataset.
func FromDataSet(ds *dataset.DataSet, cfg Config) (*Loader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	l := &Loader{Config: cfg, DataSet: ds}

	dailySlots, err := ds.DailySlots()
	if err != nil {
		return nil, err
	}
	l.DailySlots = dailySlots

	rangeStart, rangeEnd, err := cfg.DataRange.Bounds(ds.NodeTraffic.Rows, dailySlots)
	if err != nil {
		return nil, err
	}

	// keep only nodes that see real traffic: mean value scaled to a full
	// day must exceed one event.
	l.TrafficIndex = activeNodes(ds.NodeTraffic, dailySlots)
	l.StationNumber = len(l.TrafficIndex)
	if l.StationNumber == 0 {
		return nil, errors.New("no active nodes in dataset")
	}
	traffic := ds.NodeTraffic.SelectCols(l.TrafficIndex).SliceRows(rangeStart, rangeEnd)

	external, err := buildExternalFeatures(ds, cfg, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	if external != nil {
		l.ExternalDim = external.Cols
	}

	ratios := []float64{1 - cfg.TestRatio, cfg.TestRatio}
	split := series.SplitRows(traffic, ratios)
	l.TrainData, l.TestData = split[0], split[1]
	var trainEF, testEF *series.Matrix
	if external != nil {
		efSplit := series.SplitRows(external, ratios)
		trainEF, testEF = efSplit[0], efSplit[1]
	}

	if cfg.Normalize {
		l.Normalizer = series.FitMinMax(l.TrainData)
		l.TrainData = l.Normalizer.Normalize(l.TrainData)
		l.TestData = l.Normalizer.Normalize(l.TestData)
	}

	if cfg.TrainDataLength != nil {
		keep := *cfg.TrainDataLength * dailySlots
		if keep < l.TrainData.Rows {
			l.TrainData = l.TrainData.SliceRows(l.TrainData.Rows-keep, l.TrainData.Rows)
			if trainEF != nil {
				trainEF = trainEF.SliceRows(trainEF.Rows-keep, trainEF.Rows)
			}
		}
	}

	// prepend enough train history that the first test sample has a full
	// closeness/period/trend window.
	sampler := series.STMoveSample{
		ClosenessLen: cfg.ClosenessLen,
		PeriodLen:    cfg.PeriodLen,
		TrendLen:     cfg.TrendLen,
		TargetLength: cfg.TargetLength,
		DailySlots:   dailySlots,
	}
	expand := l.TrainData.Rows - historyOffset(cfg, dailySlots)
	if expand < 0 {
		expand = 0
	}
	l.TestData, err = series.VStack(l.TrainData.SliceRows(expand, l.TrainData.Rows), l.TestData)
	if err != nil {
		return nil, errors.Wrap(err, "expand test data")
	}
	if testEF != nil {
		testEF, err = series.VStack(trainEF.SliceRows(expand, trainEF.Rows), testEF)
		if err != nil {
			return nil, errors.Wrap(err, "expand test external features")
		}
	}

	l.TrainCloseness, l.TrainPeriod, l.TrainTrend, l.TrainY, err = sampler.MoveSample(l.TrainData)
	if err != nil {
		return nil, errors.Wrap(err, "move-sample train data")
	}
	l.TestCloseness, l.TestPeriod, l.TestTrend, l.TestY, err = sampler.MoveSample(l.TestData)
	if err != nil {
		return nil, errors.Wrap(err, "move-sample test data")
	}
	l.TrainSequenceLen = maxSamples(l.TrainCloseness, l.TrainPeriod, l.TrainTrend)
	l.TestSequenceLen = maxSamples(l.TestCloseness, l.TestPeriod, l.TestTrend)

	if external != nil {
		efSampler := sampler
		efSampler.TargetLength = 0
		l.TrainEFCloseness, l.TrainEFPeriod, l.TrainEFTrend, _, err = efSampler.MoveSample(trainEF)
		if err != nil {
			return nil, errors.Wrap(err, "move-sample train external features")
		}
		l.TestEFCloseness, l.TestEFPeriod, l.TestEFTrend, _, err = efSampler.MoveSample(testEF)
		if err != nil {
			return nil, errors.Wrap(err, "move-sample test external features")
		}
		// without a target the sampler yields one extra trailing window
		// whose history would include the final target slot; keep the
		// windows aligned with the traffic samples.
		l.TrainEFCloseness = l.TrainEFCloseness.TrimToFirst(l.TrainSequenceLen)
		l.TrainEFPeriod = l.TrainEFPeriod.TrimToFirst(l.TrainSequenceLen)
		l.TrainEFTrend = l.TrainEFTrend.TrimToFirst(l.TrainSequenceLen)
		l.TestEFCloseness = l.TestEFCloseness.TrimToFirst(l.TestSequenceLen)
		l.TestEFPeriod = l.TestEFPeriod.TrimToFirst(l.TestSequenceLen)
		l.TestEFTrend = l.TestEFTrend.TrimToFirst(l.TestSequenceLen)
		// align the raw external rows with the targets: the feature for a
		// sample is the slot right before its target.
		l.TrainEF = trimToTargets(trainEF, l.TrainSequenceLen, cfg.TargetLength)
		l.TestEF = trimToTargets(testEF, l.TestSequenceLen, cfg.TargetLength)
	}

	if err := l.buildGraphs(); err != nil {
		return nil, err
	}

	stats.Observe("loader_pipeline_time", time.Since(start),
		stats.T("city", ds.City.Name),
		stats.T("kind", ds.Kind.Name))
	events.Debug("Loader ready for %{city}s/%{kind}s: %{nodes}d nodes, %{train}d train samples, %{test}d test samples, %{graphs}d graphs",
		ds.City.Name, ds.Kind.Name, l.StationNumber, l.TrainSequenceLen, l.TestSequenceLen, len(l.LM))
	return l, nil
}

// activeNodes returns the indices of nodes whose mean traffic scaled to a
// full day exceeds one.
func activeNodes(traffic *series.Matrix, dailySlots int) []int {
	means := traffic.ColMeans()
	var kept []int
	for j, mean := range means {
		if mean*float64(dailySlots) > 1 {
			kept = append(kept, j)
		}
	}
	return kept
}

func historyOffset(cfg Config, dailySlots int) int {
	offset := cfg.ClosenessLen
	if p := cfg.PeriodLen * dailySlots; p > offset {
		offset = p
	}
	if q := cfg.TrendLen * 7 * dailySlots; q > offset {
		offset = q
	}
	return offset
}

func maxSamples(windows ...*series.Windows) int {
	max := 0
	for _, w := range windows {
		if w != nil && w.Samples > max {
			max = w.Samples
		}
	}
	return max
}

// trimToTargets keeps the rows [len-n-target, len-target) so row i lines up
// with sample i's last history slot.
func trimToTargets(m *series.Matrix, n, targetLength int) *series.Matrix {
	start := m.Rows - n - targetLength
	if start < 0 {
		start = 0
	}
	end := m.Rows - targetLength
	if end < start {
		end = start
	}
	return m.SliceRows(start, end)
}

func (l *Loader) buildGraphs() error {
	for _, name := range l.Config.graphNames() {
		am, lm, err := l.buildGraph(name)
		if err != nil {
			return errors.Wrapf(err, "build %s graph", name)
		}
		l.AM = append(l.AM, am)
		l.LM = append(l.LM, lm)
	}
	return nil
}

func (l *Loader) buildGraph(name string) (am, lm *series.Matrix, err error) {
	switch name {
	case GraphDistance:
		coords := make([]graph.LatLng, 0, len(l.TrafficIndex))
		if len(l.DataSet.Stations) < l.DataSet.NodeTraffic.Cols {
			return nil, nil, errors.New("dataset has no station coordinates")
		}
		for _, node := range l.TrafficIndex {
			st := l.DataSet.Stations[node]
			coords = append(coords, graph.LatLng{Lat: st.Latitude, Lng: st.Longitude})
		}
		am = graph.DistanceAdjacent(coords, l.Config.ThresholdDistance)

	case GraphCorrelation:
		recent := l.TrainData
		if keep := 30 * l.DailySlots; keep < recent.Rows {
			recent = recent.SliceRows(recent.Rows-keep, recent.Rows)
		}
		am = graph.CorrelationAdjacent(recent, l.Config.ThresholdCorrelation)

	case GraphInteraction:
		months := l.DataSet.MonthlyInteraction
		if len(months) == 0 {
			return nil, nil, errors.New("dataset has no interaction data")
		}
		// only train-range months count, and only the latest year of them.
		trainMonths := int(float64(len(months)) * (1 - l.Config.TestRatio))
		months = months[:trainMonths]
		if len(months) > 12 {
			months = months[len(months)-12:]
		}
		annual := series.NewMatrix(l.StationNumber, l.StationNumber)
		for _, m := range months {
			for i, src := range l.TrafficIndex {
				for j, dst := range l.TrafficIndex {
					annual.Set(i, j, annual.At(i, j)+m.At(src, dst)+m.At(dst, src))
				}
			}
		}
		am, err = graph.InteractionAdjacent(annual, l.Config.ThresholdInteraction)
		if err != nil {
			return nil, nil, err
		}

	default:
		return nil, nil, errors.Errorf("unknown graph %q", name)
	}

	lm, err = graph.AdjacentToLaplacian(am)
	return am, lm, err
}

// MakeConcat stacks closeness, period, and trend history into one window
// per sample, ordered earlier closeness to later trend.
func (l *Loader) MakeConcat(train bool) (*series.Windows, error) {
	if train {
		return series.Concat(l.TrainCloseness, l.TrainPeriod, l.TrainTrend)
	}
	return series.Concat(l.TestCloseness, l.TestPeriod, l.TestTrend)
}
