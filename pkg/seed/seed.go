// Package seed loads CSV exports into a store file.
package seed

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"

	"github.com/citygrid/stationstore/pkg/catalog"
	"github.com/citygrid/stationstore/pkg/dataset"
	"github.com/citygrid/stationstore/pkg/schema"
	"github.com/citygrid/stationstore/pkg/series"
	"github.com/citygrid/stationstore/pkg/utils"
)

// Config names the CSV inputs for one dataset. Traffic and stations are
// required; the rest are optional.
type Config struct {
	StorePath   string
	City        string
	Kind        string
	TimeFitness int
	RangeStart  time.Time

	TrafficCSV     string
	StationsCSV    string
	WeatherCSV     string
	CheckinCSV     string
	InteractionCSV string

	// SeedCatalog also persists the compiled-in catalog listing for the
	// city, when one exists.
	SeedCatalog bool
}

// Run seeds the store file with the dataset described by cfg, creating the
// store if needed.
func Run(ctx context.Context, cfg Config) error {
	city, err := schema.NewCityName(cfg.City)
	if err != nil {
		return errors.Wrap(err, "city name")
	}
	kind, err := schema.NewDatasetKind(cfg.Kind)
	if err != nil {
		return errors.Wrap(err, "dataset kind")
	}

	ds := &dataset.DataSet{
		City:        city,
		Kind:        kind,
		TimeFitness: cfg.TimeFitness,
		RangeStart:  cfg.RangeStart,
	}
	if _, err := ds.DailySlots(); err != nil {
		return err
	}

	ds.NodeTraffic, err = readMatrixCSV(cfg.TrafficCSV)
	if err != nil {
		return errors.Wrap(err, "read traffic csv")
	}
	ds.Stations, err = readStationsCSV(cfg.StationsCSV)
	if err != nil {
		return errors.Wrap(err, "read stations csv")
	}
	if len(ds.Stations) != ds.NodeTraffic.Cols {
		return errors.Errorf("stations csv has %d rows, traffic has %d nodes",
			len(ds.Stations), ds.NodeTraffic.Cols)
	}
	if cfg.WeatherCSV != "" {
		ds.Weather, err = readMatrixCSV(cfg.WeatherCSV)
		if err != nil {
			return errors.Wrap(err, "read weather csv")
		}
		if ds.Weather.Rows != ds.NodeTraffic.Rows {
			return errors.Errorf("weather csv has %d rows, traffic has %d slots",
				ds.Weather.Rows, ds.NodeTraffic.Rows)
		}
	}
	if cfg.CheckinCSV != "" {
		ds.Checkin, err = readMatrixCSV(cfg.CheckinCSV)
		if err != nil {
			return errors.Wrap(err, "read checkin csv")
		}
		if ds.Checkin.Rows != ds.NodeTraffic.Cols {
			return errors.Errorf("checkin csv has %d rows, traffic has %d nodes",
				ds.Checkin.Rows, ds.NodeTraffic.Cols)
		}
	}
	if cfg.InteractionCSV != "" {
		ds.MonthlyInteraction, err = readInteractionCSV(cfg.InteractionCSV, ds.NodeTraffic.Cols)
		if err != nil {
			return errors.Wrap(err, "read interaction csv")
		}
	}

	if err := utils.EnsureDirForFile(cfg.StorePath); err != nil {
		return errors.Wrap(err, "ensure store dir")
	}
	store, err := dataset.OpenStore(cfg.StorePath, "rwc")
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureInitialized(ctx); err != nil {
		return err
	}

	writer := dataset.Writer{Store: store}
	if err := writer.PutDataSet(ctx, ds); err != nil {
		return err
	}
	if cfg.SeedCatalog {
		listing, err := catalog.ForCity(city.Name)
		if err != nil {
			events.Log("No catalog listing for %{city}s, skipping catalog seed", city.Name)
		} else if err := writer.SeedCatalog(ctx, listing, "demographic"); err != nil {
			return errors.Wrap(err, "seed catalog")
		}
	}
	events.Log("Seeded %{city}s/%{kind}s into %{path}s", city.Name, kind.Name, cfg.StorePath)
	return nil
}

// readMatrixCSV reads a dense float matrix, one row per line.
func readMatrixCSV(path string) (*series.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f) // rejects ragged rows itself
	var rows [][]float64
	cols := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		cols = len(record)
		row := make([]float64, len(record))
		for i, field := range record {
			row[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d col %d", len(rows), i)
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty csv")
	}
	m := series.NewMatrix(len(rows), cols)
	for i, row := range rows {
		copy(m.Row(i), row)
	}
	return m, nil
}

// readStationsCSV reads station rows: station_id,name,latitude,longitude,
// build_order. Node indices follow row order.
func readStationsCSV(path string) ([]dataset.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = 5
	var out []dataset.Station
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "station %d latitude", len(out))
		}
		lng, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "station %d longitude", len(out))
		}
		order, err := strconv.Atoi(record[4])
		if err != nil {
			return nil, errors.Wrapf(err, "station %d build order", len(out))
		}
		out = append(out, dataset.Station{
			Node:       len(out),
			StationID:  record[0],
			Name:       record[1],
			Latitude:   lat,
			Longitude:  lng,
			BuildOrder: order,
		})
	}
	return out, nil
}

// readInteractionCSV reads month,src,dst,amount rows.
func readInteractionCSV(path string, nodes int) ([]*series.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = 4
	var out []*series.Matrix
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ints := make([]int, 3)
		for i := 0; i < 3; i++ {
			ints[i], err = strconv.Atoi(record[i])
			if err != nil {
				return nil, errors.Wrapf(err, "interaction field %d", i)
			}
		}
		amount, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, errors.Wrap(err, "interaction amount")
		}
		month, src, dst := ints[0], ints[1], ints[2]
		if src < 0 || src >= nodes || dst < 0 || dst >= nodes {
			return nil, errors.Errorf("interaction row out of range: src=%d dst=%d", src, dst)
		}
		for month >= len(out) {
			out = append(out, series.NewMatrix(nodes, nodes))
		}
		out[month].Set(src, dst, amount)
	}
	return out, nil
}
