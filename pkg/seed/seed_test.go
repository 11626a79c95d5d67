package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citygrid/stationstore/pkg/dataset"
	"github.com/citygrid/stationstore/pkg/schema"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunSeedsStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{
		StorePath:   filepath.Join(dir, "spool", dataset.DefaultStoreName),
		City:        "chicago",
		Kind:        "bike",
		TimeFitness: 360,
		RangeStart:  time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC),
		TrafficCSV: writeFile(t, dir, "traffic.csv",
			"1,4\n2,3\n3,2\n4,1\n"),
		StationsCSV: writeFile(t, dir, "stations.csv",
			"s-1,canal st,41.88,-87.64,1\ns-2,damen ave,41.91,-87.68,2\n"),
		WeatherCSV: writeFile(t, dir, "weather.csv",
			"0.5\n0.6\n0.7\n0.8\n"),
		CheckinCSV: writeFile(t, dir, "checkin.csv",
			"1,2\n3,4\n"),
		InteractionCSV: writeFile(t, dir, "interaction.csv",
			"0,0,1,900\n0,1,0,30\n1,0,1,5\n"),
		SeedCatalog: true,
	}
	require.NoError(t, Run(ctx, cfg))

	store, err := dataset.OpenStore(cfg.StorePath, "ro")
	require.NoError(t, err)
	defer store.Close()

	city, err := schema.NewCityName("chicago")
	require.NoError(t, err)
	kind, err := schema.NewDatasetKind("bike")
	require.NoError(t, err)

	ds, err := store.LoadDataSet(ctx, city, kind, dataset.MergeSpec{})
	require.NoError(t, err)
	require.Equal(t, 4, ds.NodeTraffic.Rows)
	require.Equal(t, 2, ds.NodeTraffic.Cols)
	require.Equal(t, 4.0, ds.NodeTraffic.At(0, 1))
	require.Len(t, ds.Stations, 2)
	require.Equal(t, "damen ave", ds.Stations[1].Name)
	require.Equal(t, 4, ds.Weather.Rows)
	require.Equal(t, 2, ds.Checkin.Rows)
	require.Len(t, ds.MonthlyInteraction, 2)
	require.Equal(t, 900.0, ds.MonthlyInteraction[0].At(0, 1))

	fields, err := store.CatalogFields(ctx, city, "demographic")
	require.NoError(t, err)
	require.Len(t, fields, 11)
}

func TestRunRejectsMismatchedStations(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		StorePath:   filepath.Join(dir, dataset.DefaultStoreName),
		City:        "chicago",
		Kind:        "bike",
		TimeFitness: 360,
		RangeStart:  time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC),
		TrafficCSV: writeFile(t, dir, "traffic.csv",
			"1,4\n2,3\n"),
		StationsCSV: writeFile(t, dir, "stations.csv",
			"s-1,canal st,41.88,-87.64,1\n"),
	}
	require.Error(t, Run(context.Background(), cfg))
}

func TestRunRejectsBadTimeFitness(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		StorePath:   filepath.Join(dir, dataset.DefaultStoreName),
		City:        "chicago",
		Kind:        "bike",
		TimeFitness: 7,
		RangeStart:  time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	require.Error(t, Run(context.Background(), cfg))
}

func TestReadMatrixCSVRejectsRagged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ragged.csv", "1,2\n3\n")
	_, err := readMatrixCSV(path)
	require.Error(t, err)
}
