package dataset

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"
)

// Watcher signals when the store file on disk changes, typically because
// the seeder rewrote it or a snapshot bootstrap replaced it. Consumers read
// from C; notifications are coalesced, so one receive may cover several
// writes.
type Watcher struct {
	path string
	c    chan struct{}
}

// C delivers a value after the store file has changed.
func (w *Watcher) C() <-chan struct{} {
	return w.c
}

// WatchStore starts watching the store file at path. The watcher stops when
// ctx is canceled.
func WatchStore(ctx context.Context, path string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	go func() {
		<-ctx.Done()
		if err := watcher.Close(); err != nil {
			events.Log("Could not close store watcher: %{err}s", err)
		}
	}()
	// watch the parent dir too so a rename-into-place is seen.
	for _, p := range []string{path, filepath.Dir(path)} {
		if err := watcher.Add(p); err != nil {
			return nil, errors.Wrapf(err, "could not watch '%s'", p)
		}
	}
	w := &Watcher{path: path, c: make(chan struct{}, 1)}
	go w.run(ctx, watcher)
	return w, nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case event := <-watcher.Events:
			// events for siblings in the parent dir are not ours.
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			stats.Incr("store_file_changed")
			events.Debug("Store file changed: %{op}s %{path}s", event.Op, event.Name)
			select {
			case w.c <- struct{}{}:
			default:
			}
		case err := <-watcher.Errors:
			if err != nil {
				events.Log("Store watcher error: %{err}s", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
