// Package api serves the read surface over HTTP: catalog listings,
// station rosters, and dataset metadata.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"
	"github.com/segmentio/stats/v4/httpstats"

	"github.com/citygrid/stationstore/pkg/catalog"
	"github.com/citygrid/stationstore/pkg/dataset"
	"github.com/citygrid/stationstore/pkg/errs"
	"github.com/citygrid/stationstore/pkg/schema"
	"github.com/citygrid/stationstore/pkg/utils"
)

type (
	API struct {
		bindAddr string
		store    *dataset.Store
		cache    *gocache.Cache
		handler  http.Handler
	}
	Config struct {
		BindAddr    string
		Store       *dataset.Store
		CacheTTL    time.Duration
		Application string
	}
)

const defaultCacheTTL = time.Minute

func New(config Config) (*API, error) {
	if config.Store == nil {
		return nil, errors.New("api needs a store")
	}
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	api := &API{
		bindAddr: config.BindAddr,
		store:    config.Store,
		cache:    gocache.New(ttl, 2*ttl),
	}
	router := mux.NewRouter()
	router.HandleFunc("/catalog/{city}", handleErr(api.getCatalog)).Methods("GET")
	router.HandleFunc("/datasets/{city}/{kind}/stations", handleErr(api.getStations)).Methods("GET")
	router.HandleFunc("/datasets/{city}/{kind}/meta", handleErr(api.getMeta)).Methods("GET")
	router.HandleFunc("/healthcheck", handleErr(api.healthcheck)).Methods("GET")

	application := orUnknown(config.Application)
	stats.DefaultEngine.Tags = append(stats.DefaultEngine.Tags, stats.T("application", application))
	stats.DefaultEngine.Tags = stats.SortTags(stats.DefaultEngine.Tags) // tags must be sorted

	api.handler = api.statsHandler(router)
	return api, nil
}

func (a *API) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.bindAddr,
		Handler:      a,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		ErrorLog:     log.New(os.Stderr, "SRV ERR:", log.LstdFlags),
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	err := srv.ListenAndServe()
	return errors.Wrap(err, "listen and serve")
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// FlushCache drops every cached response. Called when the store file is
// replaced underneath the api.
func (a *API) FlushCache() {
	a.cache.Flush()
}

func (a *API) statsHandler(delegate http.Handler) http.Handler {
	return httpstats.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := orUnknown(r.UserAgent())
		stats.Incr("requests-by-user-agent", stats.T("user-agent", ua))
		sw := &utils.StatusWriter{ResponseWriter: w}
		delegate.ServeHTTP(sw, r)
		events.Debug("%{method}s %{path}s -> %{status}d (%{length}d bytes)",
			r.Method, r.URL.Path, sw.Status, sw.Length)
	}))
}

// handleErr adapts error-returning handlers, mapping typed errors from the
// errs package to their HTTP status.
func handleErr(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		status := errs.StatusCode(err)
		http.Error(w, err.Error(), status)
		if status >= 500 {
			errs.Incr("api-internal-errors")
		}
	}
}

func (a *API) getCatalog(w http.ResponseWriter, r *http.Request) error {
	city, err := schema.NewCityName(mux.Vars(r)["city"])
	if err != nil {
		return errs.BadRequest("invalid city: %s", err)
	}
	key := "catalog/" + city.Name
	if cached, ok := a.cache.Get(key); ok {
		return writeJSON(w, cached)
	}
	listing, err := catalog.ForCity(city.Name)
	if err != nil {
		return err
	}
	res := map[string]interface{}{
		"city":   listing.City.Name,
		"fields": listing.Labels(),
	}
	a.cache.SetDefault(key, res)
	return writeJSON(w, res)
}

func (a *API) getStations(w http.ResponseWriter, r *http.Request) error {
	city, kind, err := datasetVars(r)
	if err != nil {
		return err
	}
	stations, err := a.store.Stations(r.Context(), city, kind)
	if err != nil {
		return err
	}
	stats.Observe("stations-served", len(stations),
		stats.T("city", city.Name), stats.T("kind", kind.Name))
	return writeJSON(w, stations)
}

func (a *API) getMeta(w http.ResponseWriter, r *http.Request) error {
	city, kind, err := datasetVars(r)
	if err != nil {
		return err
	}
	key := "meta/" + city.Name + "/" + kind.Name
	if cached, ok := a.cache.Get(key); ok {
		return writeJSON(w, cached)
	}
	meta, err := a.store.Meta(r.Context(), city, kind)
	if err != nil {
		return err
	}
	res := map[string]interface{}{
		"city":        meta.City.Name,
		"kind":        meta.Kind.Name,
		"timeFitness": meta.TimeFitness,
		"rangeStart":  meta.RangeStart.Format(time.RFC3339),
		"slotCount":   meta.SlotCount,
		"nodeCount":   meta.NodeCount,
	}
	a.cache.SetDefault(key, res)
	return writeJSON(w, res)
}

func (a *API) healthcheck(w http.ResponseWriter, r *http.Request) error {
	_, err := a.store.Cities(r.Context())
	return errors.Wrap(err, "healthcheck")
}

func datasetVars(r *http.Request) (schema.CityName, schema.DatasetKind, error) {
	vars := mux.Vars(r)
	city, err := schema.NewCityName(vars["city"])
	if err != nil {
		return schema.CityName{}, schema.DatasetKind{}, errs.BadRequest("invalid city: %s", err)
	}
	kind, err := schema.NewDatasetKind(vars["kind"])
	if err != nil {
		return schema.CityName{}, schema.DatasetKind{}, errs.BadRequest("invalid kind: %s", err)
	}
	return city, kind, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
