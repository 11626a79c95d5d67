// Package stationstore is the client library for reading city datasets
// from a local stationstore SQLite file seeded by the stationstore binary.
package stationstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/citygrid/stationstore/pkg/dataset"
	"github.com/citygrid/stationstore/pkg/globalstats"
)

const (
	// DefaultStorePath is where the seeder and snapshot bootstrap put the
	// store file unless told otherwise.
	DefaultStorePath = "/var/spool/stationstore/"
)

var (
	globalStoreDirPath = DefaultStorePath
	globalStore        *dataset.Store
	globalStoreMu      sync.RWMutex
)

func init() {
	if envPath := os.Getenv("STATIONSTORE_PATH"); envPath != "" {
		globalStoreDirPath = envPath
	}
	// Enable globalstats by default.
	globalstats.Initialize(context.Background(), globalstats.Config{})
}

type Config struct {
	Stats globalstats.Config
}

// InitializeWithConfig sets up global state, including the sampled global
// metrics.
func InitializeWithConfig(ctx context.Context, cfg Config) {
	globalstats.Initialize(ctx, cfg.Stats)
}

// StoreForPath opens the store file at the provided path read-only.
func StoreForPath(path string) (*dataset.Store, error) {
	globalstats.Incr("store-open")
	return dataset.OpenStore(path, "ro")
}

// Store returns a read-only store at the default path that can be used
// globally. Repeated calls share one handle.
func Store() (*dataset.Store, error) {
	globalStoreMu.RLock()
	if globalStore != nil {
		defer globalStoreMu.RUnlock()
		return globalStore, nil
	}
	globalStoreMu.RUnlock()

	globalStoreMu.Lock()
	defer globalStoreMu.Unlock()
	if globalStore == nil {
		store, err := StoreForPath(filepath.Join(globalStoreDirPath, dataset.DefaultStoreName))
		if err != nil {
			return nil, err
		}
		globalStore = store
	}
	return globalStore, nil
}
