package dataset

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citygrid/stationstore/pkg/catalog"
	"github.com/citygrid/stationstore/pkg/errs"
	"github.com/citygrid/stationstore/pkg/schema"
	"github.com/citygrid/stationstore/pkg/series"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultStoreName)
	store, err := OpenStore(path, "rwc")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureInitialized(context.Background()))
	return store
}

func testDataSet(t *testing.T) *DataSet {
	t.Helper()
	city, err := schema.NewCityName("chicago")
	require.NoError(t, err)
	kind, err := schema.NewDatasetKind("bike")
	require.NoError(t, err)

	traffic := series.NewMatrix(6, 2)
	for slot := 0; slot < traffic.Rows; slot++ {
		for node := 0; node < traffic.Cols; node++ {
			traffic.Set(slot, node, float64(slot*10+node))
		}
	}
	weather := series.NewMatrix(6, 1)
	for slot := 0; slot < weather.Rows; slot++ {
		weather.Set(slot, 0, float64(slot))
	}
	checkin := series.NewMatrix(2, 3)
	checkin.Set(0, 2, 7)
	checkin.Set(1, 0, 3)
	interaction := series.NewMatrix(2, 2)
	interaction.Set(0, 1, 12)
	interaction.Set(1, 0, 4)

	return &DataSet{
		City:        city,
		Kind:        kind,
		TimeFitness: 60,
		RangeStart:  time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC),
		NodeTraffic: traffic,
		Stations: []Station{
			{Node: 0, StationID: "s-100", Name: "canal st", Latitude: 41.88, Longitude: -87.64, BuildOrder: 1},
			{Node: 1, StationID: "s-200", Name: "damen ave", Latitude: 41.91, Longitude: -87.68, BuildOrder: 2},
		},
		MonthlyInteraction: []*series.Matrix{interaction},
		Weather:            weather,
		Checkin:            checkin,
	}
}

func TestPutLoadRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ds := testDataSet(t)
	w := Writer{Store: store}
	require.NoError(t, w.PutDataSet(ctx, ds))

	got, err := store.LoadDataSet(ctx, ds.City, ds.Kind, MergeSpec{})
	require.NoError(t, err)
	require.Equal(t, ds.TimeFitness, got.TimeFitness)
	require.True(t, ds.RangeStart.Equal(got.RangeStart))
	require.Equal(t, ds.NodeTraffic, got.NodeTraffic)
	require.Equal(t, ds.Stations, got.Stations)
	require.Equal(t, ds.MonthlyInteraction, got.MonthlyInteraction)
	require.Equal(t, ds.Weather, got.Weather)
	require.Equal(t, ds.Checkin, got.Checkin)
}

func TestPutReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	ds := testDataSet(t)
	w := Writer{Store: store}
	require.NoError(t, w.PutDataSet(ctx, ds))

	ds.NodeTraffic = series.NewMatrix(3, 2)
	ds.NodeTraffic.Set(2, 1, 99)
	require.NoError(t, w.PutDataSet(ctx, ds))

	got, err := store.LoadDataSet(ctx, ds.City, ds.Kind, MergeSpec{})
	require.NoError(t, err)
	require.Equal(t, 3, got.NodeTraffic.Rows)
	require.Equal(t, float64(99), got.NodeTraffic.At(2, 1))
}

func TestLoadMissingDataSet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	city, err := schema.NewCityName("shanghai")
	require.NoError(t, err)
	kind, err := schema.NewDatasetKind("metro")
	require.NoError(t, err)
	_, err = store.LoadDataSet(ctx, city, kind, MergeSpec{})
	require.Error(t, err)
	var nf *errs.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCities(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	w := Writer{Store: store}
	require.NoError(t, w.PutDataSet(ctx, testDataSet(t)))
	cities, err := store.Cities(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"chicago"}, cities)
}

func TestCatalogFieldsRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	listing, err := catalog.ForCity("chicago")
	require.NoError(t, err)
	w := Writer{Store: store}
	require.NoError(t, w.SeedCatalog(ctx, listing, "demographic"))

	fields, err := store.CatalogFields(ctx, listing.City, "demographic")
	require.NoError(t, err)
	require.Equal(t, listing.Fields, fields)
}

func TestMergeSemantics(t *testing.T) {
	for _, test := range []struct {
		name string
		way  MergeWay
		want []float64 // merged column 0 of the 6x2 ramp, factor 2
	}{
		{name: "sum", way: MergeSum, want: []float64{10, 50, 90}},
		{name: "average", way: MergeAverage, want: []float64{5, 25, 45}},
		{name: "max", way: MergeMax, want: []float64{10, 30, 50}},
	} {
		t.Run(test.name, func(t *testing.T) {
			ds := testDataSet(t)
			require.NoError(t, ds.Merge(MergeSpec{Factor: 2, Way: test.way}))
			require.Equal(t, 120, ds.TimeFitness)
			require.Equal(t, 3, ds.NodeTraffic.Rows)
			require.Equal(t, test.want, ds.NodeTraffic.Col(0))
			require.Equal(t, 3, ds.Weather.Rows)
		})
	}
}

func TestMergeDropsTrailingPartialGroup(t *testing.T) {
	ds := testDataSet(t)
	require.NoError(t, ds.Merge(MergeSpec{Factor: 4, Way: MergeSum}))
	require.Equal(t, 1, ds.NodeTraffic.Rows)
	// slots 4 and 5 do not fill a group of four and are dropped.
	require.Equal(t, float64(0+10+20+30), ds.NodeTraffic.At(0, 0))
}

func TestMergeIdentity(t *testing.T) {
	ds := testDataSet(t)
	require.NoError(t, ds.Merge(MergeSpec{Factor: 1}))
	require.Equal(t, 60, ds.TimeFitness)
	require.Equal(t, 6, ds.NodeTraffic.Rows)
}

func TestMergeUnknownWay(t *testing.T) {
	ds := testDataSet(t)
	require.Error(t, ds.Merge(MergeSpec{Factor: 2, Way: "median"}))
}

func TestDailySlots(t *testing.T) {
	ds := testDataSet(t)
	slots, err := ds.DailySlots()
	require.NoError(t, err)
	require.Equal(t, 24, slots)

	ds.TimeFitness = 7
	_, err = ds.DailySlots()
	require.Error(t, err)
}

func TestSlotTime(t *testing.T) {
	ds := testDataSet(t)
	require.Equal(t, ds.RangeStart.Add(5*time.Hour), ds.SlotTime(5))
}
