package dataset

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"

	"github.com/citygrid/stationstore/pkg/catalog"
	"github.com/citygrid/stationstore/pkg/series"
)

// Writer seeds datasets and catalog listings into a store. All writes for
// one dataset happen in a single transaction, replacing any previous rows
// for the same (city, kind).
type Writer struct {
	Store *Store
}

// PutDataSet replaces the stored rows for ds's (city, kind) with ds.
func (w *Writer) PutDataSet(ctx context.Context, ds *DataSet) error {
	if ds.NodeTraffic == nil || ds.NodeTraffic.Empty() {
		return errors.New("dataset has no node traffic")
	}
	start := time.Now()

	tx, err := w.Store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin put dataset tx")
	}
	defer tx.Rollback()

	for _, table := range []string{"_ds_meta", "node_traffic", "stations", "monthly_interaction", "weather", "checkin"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE city = ? AND kind = ?",
			ds.City.Name, ds.Kind.Name); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO _ds_meta (city, kind, time_fitness, range_start, slot_count, node_count) VALUES (?, ?, ?, ?, ?, ?)",
		ds.City.Name, ds.Kind.Name, ds.TimeFitness, ds.RangeStart.Format(time.RFC3339),
		ds.NodeTraffic.Rows, ds.NodeTraffic.Cols)
	if err != nil {
		return errors.Wrap(err, "insert dataset meta")
	}

	trafficStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO node_traffic (city, kind, slot, node, value) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, "prepare traffic insert")
	}
	defer trafficStmt.Close()
	for slot := 0; slot < ds.NodeTraffic.Rows; slot++ {
		for node := 0; node < ds.NodeTraffic.Cols; node++ {
			if _, err := trafficStmt.ExecContext(ctx, ds.City.Name, ds.Kind.Name, slot, node,
				ds.NodeTraffic.At(slot, node)); err != nil {
				return errors.Wrap(err, "insert traffic row")
			}
		}
	}

	for _, st := range ds.Stations {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO stations (city, kind, node, station_id, name, latitude, longitude, build_order) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			ds.City.Name, ds.Kind.Name, st.Node, st.StationID, st.Name,
			st.Latitude, st.Longitude, st.BuildOrder); err != nil {
			return errors.Wrap(err, "insert station")
		}
	}

	for month, m := range ds.MonthlyInteraction {
		for src := 0; src < m.Rows; src++ {
			for dst := 0; dst < m.Cols; dst++ {
				amount := m.At(src, dst)
				if amount == 0 {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO monthly_interaction (city, kind, month, src, dst, amount) VALUES (?, ?, ?, ?, ?, ?)",
					ds.City.Name, ds.Kind.Name, month, src, dst, amount); err != nil {
					return errors.Wrap(err, "insert interaction")
				}
			}
		}
	}

	if err := w.putDimmed(ctx, tx, "weather", "slot", ds, ds.Weather); err != nil {
		return err
	}
	if err := w.putDimmed(ctx, tx, "checkin", "node", ds, ds.Checkin); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit put dataset tx")
	}
	events.Log("Stored dataset %{city}s/%{kind}s (%{slots}d slots, %{nodes}d nodes) in %{duration}s",
		ds.City.Name, ds.Kind.Name, ds.NodeTraffic.Rows, ds.NodeTraffic.Cols, time.Since(start))
	return nil
}

func (w *Writer) putDimmed(ctx context.Context, tx *sql.Tx, table, rowKey string, ds *DataSet, m *series.Matrix) error {
	if m == nil || m.Empty() {
		return nil
	}
	stmt := "INSERT INTO " + table + " (city, kind, " + rowKey + ", dim, value) VALUES (?, ?, ?, ?, ?)"
	for row := 0; row < m.Rows; row++ {
		for dim := 0; dim < m.Cols; dim++ {
			if _, err := tx.ExecContext(ctx, stmt,
				ds.City.Name, ds.Kind.Name, row, dim, m.At(row, dim)); err != nil {
				return errors.Wrapf(err, "insert %s row", table)
			}
		}
	}
	return nil
}

// SeedCatalog persists a catalog listing so the label sets survive
// snapshots and can be served without the compiled-in tables.
func (w *Writer) SeedCatalog(ctx context.Context, listing catalog.Listing, name string) error {
	tx, err := w.Store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin seed catalog tx")
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM catalog_fields WHERE city = ? AND listing = ?",
		listing.City.Name, name); err != nil {
		return errors.Wrap(err, "clear catalog fields")
	}
	for position, field := range listing.Fields {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO catalog_fields (city, listing, position, label) VALUES (?, ?, ?, ?)",
			listing.City.Name, name, position, field.Name); err != nil {
			return errors.Wrap(err, "insert catalog field")
		}
	}
	return errors.Wrap(tx.Commit(), "commit seed catalog tx")
}
