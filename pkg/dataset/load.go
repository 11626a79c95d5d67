package dataset

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"

	"github.com/citygrid/stationstore/pkg/errs"
	"github.com/citygrid/stationstore/pkg/globalstats"
	"github.com/citygrid/stationstore/pkg/schema"
	"github.com/citygrid/stationstore/pkg/series"
)

// Meta is the stored header of a dataset.
type Meta struct {
	City        schema.CityName
	Kind        schema.DatasetKind
	TimeFitness int
	RangeStart  time.Time
	SlotCount   int
	NodeCount   int
}

// Meta returns the header of the (city, kind) dataset.
func (s *Store) Meta(ctx context.Context, city schema.CityName, kind schema.DatasetKind) (Meta, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT time_fitness, range_start, slot_count, node_count FROM _ds_meta WHERE city = ? AND kind = ?",
		city.Name, kind.Name)
	var meta Meta
	var rangeStart string
	err := row.Scan(&meta.TimeFitness, &rangeStart, &meta.SlotCount, &meta.NodeCount)
	switch {
	case err == sql.ErrNoRows:
		return Meta{}, errs.NotFound("no dataset for city '%s' kind '%s'", city.Name, kind.Name)
	case err != nil:
		return Meta{}, errors.Wrap(err, "scan dataset meta")
	}
	meta.City = city
	meta.Kind = kind
	meta.RangeStart, err = time.Parse(time.RFC3339, rangeStart)
	if err != nil {
		return Meta{}, errors.Wrapf(err, "parse range start %q", rangeStart)
	}
	return meta, nil
}

// LoadDataSet loads the full (city, kind) dataset into memory, applying the
// requested temporal merge.
func (s *Store) LoadDataSet(ctx context.Context, city schema.CityName, kind schema.DatasetKind, merge MergeSpec) (*DataSet, error) {
	start := time.Now()
	defer func() {
		stats.Observe("dataset_load_time", time.Since(start),
			stats.T("city", city.Name),
			stats.T("kind", kind.Name))
		globalstats.Observe("dataset-load-time", time.Since(start),
			stats.T("city", city.Name),
			stats.T("kind", kind.Name))
	}()

	meta, err := s.Meta(ctx, city, kind)
	if err != nil {
		return nil, err
	}

	ds := &DataSet{
		City:        city,
		Kind:        kind,
		TimeFitness: meta.TimeFitness,
		RangeStart:  meta.RangeStart,
	}

	ds.NodeTraffic, err = s.loadTraffic(ctx, city, kind, meta)
	if err != nil {
		return nil, err
	}
	ds.Stations, err = s.loadStations(ctx, city, kind)
	if err != nil {
		return nil, err
	}
	ds.MonthlyInteraction, err = s.loadInteraction(ctx, city, kind, meta.NodeCount)
	if err != nil {
		return nil, err
	}
	ds.Weather, err = s.loadDimmed(ctx, "weather", "slot", city, kind, meta.SlotCount)
	if err != nil {
		return nil, err
	}
	ds.Checkin, err = s.loadDimmed(ctx, "checkin", "node", city, kind, meta.NodeCount)
	if err != nil {
		return nil, err
	}

	if err := ds.Merge(merge); err != nil {
		return nil, err
	}

	events.Debug("Loaded dataset %{city}s/%{kind}s: %{slots}d slots, %{nodes}d nodes",
		city.Name, kind.Name, ds.NodeTraffic.Rows, ds.NodeTraffic.Cols)
	return ds, nil
}

// Stations returns the station roster of the (city, kind) dataset.
func (s *Store) Stations(ctx context.Context, city schema.CityName, kind schema.DatasetKind) ([]Station, error) {
	globalstats.Incr("stations-read",
		stats.T("city", city.Name),
		stats.T("kind", kind.Name))
	if _, err := s.Meta(ctx, city, kind); err != nil {
		return nil, err
	}
	return s.loadStations(ctx, city, kind)
}

func (s *Store) loadTraffic(ctx context.Context, city schema.CityName, kind schema.DatasetKind, meta Meta) (*series.Matrix, error) {
	m := series.NewMatrix(meta.SlotCount, meta.NodeCount)
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, node, value FROM node_traffic WHERE city = ? AND kind = ?",
		city.Name, kind.Name)
	if err != nil {
		return nil, errors.Wrap(err, "query node traffic")
	}
	defer rows.Close()
	for rows.Next() {
		var slot, node int
		var value float64
		if err := rows.Scan(&slot, &node, &value); err != nil {
			return nil, errors.Wrap(err, "scan node traffic")
		}
		if slot < 0 || slot >= meta.SlotCount || node < 0 || node >= meta.NodeCount {
			return nil, errors.Errorf("traffic row out of range: slot=%d node=%d", slot, node)
		}
		m.Set(slot, node, value)
	}
	return m, rows.Err()
}

func (s *Store) loadStations(ctx context.Context, city schema.CityName, kind schema.DatasetKind) ([]Station, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT node, station_id, name, latitude, longitude, build_order FROM stations WHERE city = ? AND kind = ? ORDER BY node",
		city.Name, kind.Name)
	if err != nil {
		return nil, errors.Wrap(err, "query stations")
	}
	defer rows.Close()
	var out []Station
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.Node, &st.StationID, &st.Name, &st.Latitude, &st.Longitude, &st.BuildOrder); err != nil {
			return nil, errors.Wrap(err, "scan station")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) loadInteraction(ctx context.Context, city schema.CityName, kind schema.DatasetKind, nodes int) ([]*series.Matrix, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT month, src, dst, amount FROM monthly_interaction WHERE city = ? AND kind = ? ORDER BY month",
		city.Name, kind.Name)
	if err != nil {
		return nil, errors.Wrap(err, "query monthly interaction")
	}
	defer rows.Close()
	var out []*series.Matrix
	for rows.Next() {
		var month, src, dst int
		var amount float64
		if err := rows.Scan(&month, &src, &dst, &amount); err != nil {
			return nil, errors.Wrap(err, "scan interaction")
		}
		for month >= len(out) {
			out = append(out, series.NewMatrix(nodes, nodes))
		}
		if src < 0 || src >= nodes || dst < 0 || dst >= nodes {
			return nil, errors.Errorf("interaction row out of range: src=%d dst=%d", src, dst)
		}
		out[month].Set(src, dst, amount)
	}
	return out, rows.Err()
}

// loadDimmed loads a (rowKey, dim) -> value table into a [rows x dims]
// matrix. The dim count is discovered from the data.
func (s *Store) loadDimmed(ctx context.Context, table, rowKey string, city schema.CityName, kind schema.DatasetKind, rowCount int) (*series.Matrix, error) {
	var dims sql.NullInt64
	row := s.db.QueryRowContext(ctx,
		"SELECT MAX(dim) FROM "+table+" WHERE city = ? AND kind = ?",
		city.Name, kind.Name)
	if err := row.Scan(&dims); err != nil {
		return nil, errors.Wrapf(err, "count %s dims", table)
	}
	if !dims.Valid {
		return series.NewMatrix(0, 0), nil
	}
	m := series.NewMatrix(rowCount, int(dims.Int64)+1)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+rowKey+", dim, value FROM "+table+" WHERE city = ? AND kind = ?",
		city.Name, kind.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var key, dim int
		var value float64
		if err := rows.Scan(&key, &dim, &value); err != nil {
			return nil, errors.Wrapf(err, "scan %s", table)
		}
		if key < 0 || key >= rowCount {
			return nil, errors.Errorf("%s row out of range: %s=%d", table, rowKey, key)
		}
		m.Set(key, dim, value)
	}
	return m, rows.Err()
}
