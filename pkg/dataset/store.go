// Package dataset stores and loads city datasets from a local SQLite file.
// One store file can hold any number of (city, kind) datasets, each a node
// traffic matrix plus station, interaction, weather, and check-in data.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	sqlite3 "github.com/segmentio/go-sqlite3"

	"github.com/citygrid/stationstore/pkg/schema"
)

const (
	StoreDriverName  = "sqlite3_stationstore"
	DefaultStoreName = "stationstore.db"
)

var registerDriverOnce sync.Once

// registerDriver installs a sqlite3 driver with WAL autocheckpointing
// disabled so the snapshot archiver controls checkpoints itself.
func registerDriver() {
	registerDriverOnce.Do(func() {
		sql.Register(StoreDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				_, err := conn.Exec("PRAGMA wal_autocheckpoint = 0", nil)
				return err
			},
		})
	})
}

var storeInitializeDDLs = []string{
	`CREATE TABLE IF NOT EXISTS _ds_meta (
		city TEXT NOT NULL,
		kind TEXT NOT NULL,
		time_fitness INTEGER NOT NULL,
		range_start TEXT NOT NULL,
		slot_count INTEGER NOT NULL,
		node_count INTEGER NOT NULL,
		PRIMARY KEY (city, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS node_traffic (
		city TEXT NOT NULL,
		kind TEXT NOT NULL,
		slot INTEGER NOT NULL,
		node INTEGER NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (city, kind, slot, node)
	)`,
	`CREATE TABLE IF NOT EXISTS stations (
		city TEXT NOT NULL,
		kind TEXT NOT NULL,
		node INTEGER NOT NULL,
		station_id TEXT NOT NULL,
		name TEXT NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		build_order INTEGER NOT NULL,
		PRIMARY KEY (city, kind, node)
	)`,
	`CREATE TABLE IF NOT EXISTS monthly_interaction (
		city TEXT NOT NULL,
		kind TEXT NOT NULL,
		month INTEGER NOT NULL,
		src INTEGER NOT NULL,
		dst INTEGER NOT NULL,
		amount REAL NOT NULL,
		PRIMARY KEY (city, kind, month, src, dst)
	)`,
	`CREATE TABLE IF NOT EXISTS weather (
		city TEXT NOT NULL,
		kind TEXT NOT NULL,
		slot INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (city, kind, slot, dim)
	)`,
	`CREATE TABLE IF NOT EXISTS checkin (
		city TEXT NOT NULL,
		kind TEXT NOT NULL,
		node INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (city, kind, node, dim)
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_fields (
		city TEXT NOT NULL,
		listing TEXT NOT NULL,
		position INTEGER NOT NULL,
		label TEXT NOT NULL,
		PRIMARY KEY (city, listing, position)
	)`,
}

// Store reads and writes datasets in a local SQLite file. The external
// interface is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens the store file at path. Mode is a sqlite open mode such
// as "ro" or "rwc".
func OpenStore(path string, mode string) (*Store, error) {
	registerDriver()
	db, err := sql.Open(StoreDriverName,
		fmt.Sprintf("file:%s?_journal_mode=wal&mode=%s", path, mode))
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	return &Store{db: db, path: path}, nil
}

// EnsureInitialized prepares the store for queries.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	for _, statement := range storeInitializeDDLs {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "initialize store")
		}
	}
	return nil
}

// DB exposes the underlying handle. Really only useful for testing and the
// snapshot archiver's checkpoint dance.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Cities returns the distinct city names carried by the store, sorted.
func (s *Store) Cities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT city FROM _ds_meta ORDER BY city")
	if err != nil {
		return nil, errors.Wrap(err, "query cities")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, errors.Wrap(err, "scan city")
		}
		out = append(out, city)
	}
	return out, rows.Err()
}

// CatalogFields returns the persisted column listing for a city, in
// position order.
func (s *Store) CatalogFields(ctx context.Context, city schema.CityName, listing string) ([]schema.FieldName, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT label FROM catalog_fields WHERE city = ? AND listing = ? ORDER BY position",
		city.Name, listing)
	if err != nil {
		return nil, errors.Wrap(err, "query catalog fields")
	}
	defer rows.Close()
	var out []schema.FieldName
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, errors.Wrap(err, "scan catalog field")
		}
		fn, err := schema.NewFieldName(label)
		if err != nil {
			return nil, errors.Wrapf(err, "bad label %q", label)
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}
