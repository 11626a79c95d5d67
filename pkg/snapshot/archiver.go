package snapshot

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"

	"github.com/citygrid/stationstore/pkg/dataset"
)

// ArchiverConfig configures a periodic store snapshot loop.
type ArchiverConfig struct {
	// SnapshotURL is a comma-separated list of s3:// or file:// targets.
	SnapshotURL string
	Interval    time.Duration
	Store       *dataset.Store
}

// Archiver periodically checkpoints the store's WAL and uploads the store
// file to every configured destination.
type Archiver struct {
	store           *dataset.Store
	snapshots       []archivedSnapshot
	sleepDuration   time.Duration
	breatheDuration time.Duration
}

func ArchiverFromConfig(config ArchiverConfig) (*Archiver, error) {
	var snapshots []archivedSnapshot
	for _, u := range strings.Split(config.SnapshotURL, ",") {
		snapshot, err := archivedSnapshotFromURL(u)
		if err != nil {
			return nil, errors.Wrapf(err, "configure snapshot for '%s'", u)
		}
		snapshots = append(snapshots, snapshot)
	}
	return &Archiver{
		store:           config.Store,
		snapshots:       snapshots,
		sleepDuration:   config.Interval,
		breatheDuration: 5 * time.Second,
	}, nil
}

// Start runs the snapshot loop until ctx is canceled. Errors shorten the
// sleep so a transient failure is retried quickly.
func (a *Archiver) Start(ctx context.Context) {
	stats.Add("snapshot-errors", 0) // initialize the metric since it's sparse
	events.Log("Starting snapshot archiver")
	defer events.Log("Stopped snapshot archiver")
	for {
		sleepDur := a.sleepDuration
		err := a.Snapshot(ctx)
		if err != nil && errors.Cause(err) != context.Canceled {
			stats.Add("snapshot-errors", 1)
			events.Log("Error taking snapshot: %{error}+v", err)
			sleepDur = a.breatheDuration
		}
		select {
		case <-time.After(sleepDur):
		case <-ctx.Done():
			events.Log("Snapshot archiver exiting because context done (err=%v)", ctx.Err())
			return
		}
	}
}

// Snapshot checkpoints the store and uploads it to every destination.
func (a *Archiver) Snapshot(ctx context.Context) error {
	events.Log("Taking a snapshot")
	if err := a.checkpointStore(); err != nil {
		return errors.Wrap(err, "checkpoint store")
	}
	path := a.store.Path()
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "stat store path")
	}
	stats.Set("store-size-bytes", info.Size())
	errs := make(chan error, len(a.snapshots))
	for _, snapshot := range a.snapshots {
		go func(snapshot archivedSnapshot) {
			errs <- errors.Wrap(snapshot.Upload(ctx, path), "upload snapshot")
		}(snapshot)
	}
	for range a.snapshots {
		if err := <-errs; err != nil {
			return err
		}
	}
	return nil
}

// checkpointStore folds the WAL into the main store file and briefly takes
// the write lock so the file on disk is a consistent database.
func (a *Archiver) checkpointStore() error {
	ctx := context.Background() // we do not want to interrupt this operation
	conn, err := a.store.DB().Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "store db connection")
	}
	defer conn.Close()
	if _, err = conn.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE);"); err != nil {
		return errors.Wrap(err, "checkpointing database")
	}
	if _, err = conn.ExecContext(ctx, "VACUUM"); err != nil {
		return errors.Wrap(err, "vacuuming database")
	}
	// This will prevent any writes while the copy is taking place
	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE TRANSACTION;"); err != nil {
		return errors.Wrap(err, "locking database")
	}
	events.Log("Acquired write lock on %{store}s", a.store.Path())
	if _, err = conn.ExecContext(ctx, "COMMIT;"); err != nil {
		return errors.Wrap(err, "commit")
	}
	events.Log("Checkpointed WAL on %{store}s", a.store.Path())
	return nil
}
