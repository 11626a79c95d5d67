package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/segmentio/conf"
	"github.com/segmentio/events/v2"
	_ "github.com/segmentio/events/v2/sigevents"
	"github.com/segmentio/stats/v4"
	"github.com/segmentio/stats/v4/datadog"
	"github.com/segmentio/stats/v4/procstats"
	"github.com/segmentio/stats/v4/prometheus"

	"github.com/citygrid/stationstore"
	apipkg "github.com/citygrid/stationstore/pkg/api"
	"github.com/citygrid/stationstore/pkg/calendar"
	"github.com/citygrid/stationstore/pkg/dataset"
	"github.com/citygrid/stationstore/pkg/errs"
	"github.com/citygrid/stationstore/pkg/globalstats"
	"github.com/citygrid/stationstore/pkg/loader"
	"github.com/citygrid/stationstore/pkg/schema"
	"github.com/citygrid/stationstore/pkg/seed"
	"github.com/citygrid/stationstore/pkg/series"
	snapshotpkg "github.com/citygrid/stationstore/pkg/snapshot"
	"github.com/citygrid/stationstore/pkg/utils"
)

var DebugEnabled = false

type dogstatsdConfig struct {
	Address    string        `conf:"address" help:"Address of the dogstatsd agent that will receive metrics"`
	BufferSize int           `conf:"buffer-size" help:"Size of the statsd metrics buffer" validate:"min=0"`
	FlushEvery time.Duration `conf:"flush-every" help:"Flush AT LEAST this frequently"`
}

type seedCliConfig struct {
	StorePath      string          `conf:"store-path" help:"Path to the store file" validate:"nonzero"`
	City           string          `conf:"city" help:"City name" validate:"nonzero"`
	Kind           string          `conf:"kind" help:"Dataset kind (e.g. bike, metro)" validate:"nonzero"`
	TimeFitness    int             `conf:"time-fitness" help:"Minutes per time slot" validate:"nonzero"`
	RangeStart     string          `conf:"range-start" help:"RFC3339 timestamp of slot zero" validate:"nonzero"`
	TrafficCSV     string          `conf:"traffic-csv" help:"Traffic matrix CSV, one row per slot" validate:"nonzero"`
	StationsCSV    string          `conf:"stations-csv" help:"Stations CSV (id,name,lat,lng,build_order)" validate:"nonzero"`
	WeatherCSV     string          `conf:"weather-csv" help:"Optional weather matrix CSV, one row per slot"`
	CheckinCSV     string          `conf:"checkin-csv" help:"Optional check-in matrix CSV, one row per node"`
	InteractionCSV string          `conf:"interaction-csv" help:"Optional interaction CSV (month,src,dst,amount)"`
	SkipCatalog    bool            `conf:"skip-catalog" help:"Do not persist the compiled-in catalog listing"`
	Debug          bool            `conf:"debug" help:"Turns on debug logging"`
	Dogstatsd      dogstatsdConfig `conf:"dogstatsd" help:"dogstatsd Configuration"`
}

type sampleCliConfig struct {
	StorePath    string          `conf:"store-path" help:"Path to the store file" validate:"nonzero"`
	City         string          `conf:"city" help:"City name" validate:"nonzero"`
	Kind         string          `conf:"kind" help:"Dataset kind" validate:"nonzero"`
	TestRatio    float64         `conf:"test-ratio" help:"Fraction of slots reserved for the test split"`
	ClosenessLen int             `conf:"closeness-len" help:"Closeness history length"`
	PeriodLen    int             `conf:"period-len" help:"Period history length in days"`
	TrendLen     int             `conf:"trend-len" help:"Trend history length in weeks"`
	Graphs       string          `conf:"graphs" help:"Dash-joined graph names (correlation, distance, interaction)"`
	Normalize    bool            `conf:"normalize" help:"Min-max normalize traffic on the train split"`
	External     string          `conf:"external" help:"Dash-joined external features (weather, holiday, tp)"`
	Workdays     string          `conf:"workdays" help:"Workday calendar (america or china)"`
	MergeFactor  int             `conf:"merge-factor" help:"Merge this many consecutive slots"`
	MergeWay     string          `conf:"merge-way" help:"How merged slots combine (sum, average, max)"`
	Debug        bool            `conf:"debug" help:"Turns on debug logging"`
	Dogstatsd    dogstatsdConfig `conf:"dogstatsd" help:"dogstatsd Configuration"`
}

type apiCliConfig struct {
	BindAddr        string          `conf:"bind-addr" help:"The address and port to bind on"`
	StorePath       string          `conf:"store-path" help:"Path to the store file" validate:"nonzero"`
	CacheTTL        time.Duration   `conf:"cache-ttl" help:"How long catalog and meta responses stay cached"`
	Application     string          `conf:"application" help:"The name of the application using the api"`
	BootstrapURL    string          `conf:"bootstrap-url" help:"Bootstraps the store from an s3://, file://, or data: URL when missing"`
	BootstrapRegion string          `conf:"bootstrap-region" help:"If specified, the region of the bootstrap S3 bucket"`
	MetricsBind     string          `conf:"metrics-bind" help:"Address to serve Prometheus metrics"`
	Debug           bool            `conf:"debug" help:"Turns on debug logging"`
	Dogstatsd       dogstatsdConfig `conf:"dogstatsd" help:"dogstatsd Configuration"`
}

type snapshotCliConfig struct {
	StorePath        string          `conf:"store-path" help:"Path to the store file" validate:"nonzero"`
	SnapshotURL      string          `conf:"snapshot-url" help:"Comma-separated snapshot upload URLs (s3://bucket/key, file:///path)" validate:"nonzero"`
	SnapshotInterval time.Duration   `conf:"snapshot-interval" help:"Wait time between snapshots" validate:"nonzero"`
	Debug            bool            `conf:"debug" help:"Turns on debug logging"`
	Dogstatsd        dogstatsdConfig `conf:"dogstatsd" help:"dogstatsd Configuration"`
}

func loadConfig(config interface{}, name string, args []string, help ...string) {
	var usage string
	if len(help) != 0 {
		usage = strings.Join(help, " ")
	}
	conf.LoadWith(config, conf.Loader{
		Name:  "stationstore " + name,
		Args:  args,
		Usage: usage,
		Sources: []conf.Source{
			conf.NewEnvSource("STATIONSTORE", os.Environ()...),
		},
	})
}

func main() {
	ld := conf.Loader{
		Name: "stationstore",
		Args: os.Args[1:],
		Commands: []conf.Command{
			{Name: "version", Help: "Get the stationstore version"},
			{Name: "seed", Help: "Load CSV exports into a store file"},
			{Name: "sample", Help: "Run the loader pipeline and report shapes"},
			{Name: "api", Help: "Run the stationstore read API"},
			{Name: "snapshot", Help: "Run the snapshot archiver"},
		},
	}

	ctx, cancel := events.WithSignals(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events.DefaultLogger.EnableDebug = false

	switch cmd, args := conf.LoadWith(nil, ld); cmd {
	case "version":
		fmt.Println(stationstore.Version)
	case "seed":
		seedCmd(ctx, args)
	case "sample":
		sampleCmd(ctx, args)
	case "api":
		apiCmd(ctx, args)
	case "snapshot":
		snapshotCmd(ctx, args)
	default:
		panic("inconceivable")
	}
}

func globalstatsConfig(dd *datadog.Client) globalstats.Config {
	return globalstats.Config{
		AppName:             "stationstore-api",
		StatsHandler:        dd,
		StationstoreVersion: stationstore.Version,
	}
}

func enableDebug() {
	events.DefaultLogger.EnableDebug = true
	events.DefaultLogger.EnableSource = true
	DebugEnabled = true
}

func defaultDogstatsdConfig() dogstatsdConfig {
	return dogstatsdConfig{
		BufferSize: 1024,
		FlushEvery: 5 * time.Second,
	}
}

type dogstatsdOpts struct {
	config            dogstatsdConfig
	statsPrefix       string
	defaultTags       []stats.Tag
	defaultTagFilters []string
	prometheusHandler *prometheus.Handler
}

func configureDogstatsd(ctx context.Context, opts dogstatsdOpts) (dd *datadog.Client, teardown func()) {
	config := opts.config
	if opts.statsPrefix == "" {
		panic("configureDogstatsd: Invalid statsPrefix passed. Stop.")
	}

	if config.Address != "" {
		dd = datadog.NewClientWith(datadog.ClientConfig{
			Address:    config.Address,
			BufferSize: config.BufferSize,
			Filters:    opts.defaultTagFilters,
		})
		stats.Register(dd)

		events.Log("Setup dogstatsd with addr:%{addr}s, buffersize:%{buffersize}d, prefix:%{pfx}s, version:%{version}s",
			config.Address, config.BufferSize, opts.statsPrefix, stationstore.Version)
	}

	if opts.prometheusHandler != nil {
		stats.Register(opts.prometheusHandler)
	}

	if stats.DefaultEngine.Handler != stats.Discard {
		stats.DefaultEngine.Prefix = fmt.Sprintf("stationstore.%s", opts.statsPrefix)
		stats.DefaultEngine.Tags = append(stats.DefaultEngine.Tags, stats.Tag{Name: "version", Value: stationstore.Version})
		for _, t := range opts.defaultTags {
			stats.DefaultEngine.Tags = append(stats.DefaultEngine.Tags, t)
		}
		stats.DefaultEngine.Tags = stats.SortTags(stats.DefaultEngine.Tags) // tags must be sorted

		c := procstats.StartCollector(procstats.NewGoMetrics())

		go utils.CtxLoop(ctx, config.FlushEvery, stats.Flush)
		var td utils.Teardowns
		td.Add(stats.Flush)
		td.Add(func() { c.Close() })
		return dd, td.Teardown
	}
	// nothing to be done for teardown here
	return dd, func() {}
}

func seedCmd(ctx context.Context, args []string) {
	cliCfg := seedCliConfig{
		Dogstatsd: defaultDogstatsdConfig(),
	}
	loadConfig(&cliCfg, "seed", args)
	if cliCfg.Debug {
		enableDebug()
	}
	_, teardown := configureDogstatsd(ctx, dogstatsdOpts{
		config:      cliCfg.Dogstatsd,
		statsPrefix: "seed",
	})
	defer teardown()

	rangeStart, err := time.Parse(time.RFC3339, cliCfg.RangeStart)
	if err != nil {
		events.Log("Fatal error parsing range start: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "startup"))
		return
	}
	err = seed.Run(ctx, seed.Config{
		StorePath:      cliCfg.StorePath,
		City:           cliCfg.City,
		Kind:           cliCfg.Kind,
		TimeFitness:    cliCfg.TimeFitness,
		RangeStart:     rangeStart,
		TrafficCSV:     cliCfg.TrafficCSV,
		StationsCSV:    cliCfg.StationsCSV,
		WeatherCSV:     cliCfg.WeatherCSV,
		CheckinCSV:     cliCfg.CheckinCSV,
		InteractionCSV: cliCfg.InteractionCSV,
		SeedCatalog:    !cliCfg.SkipCatalog,
	})
	if err != nil && !errs.IsCanceled(err) {
		events.Log("Fatal seed error: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "seed"))
	}
}

func sampleCmd(ctx context.Context, args []string) {
	cliCfg := sampleCliConfig{
		TestRatio:    0.1,
		ClosenessLen: 6,
		PeriodLen:    7,
		TrendLen:     4,
		Graphs:       loader.GraphCorrelation,
		Normalize:    true,
		Workdays:     "america",
		MergeFactor:  1,
		MergeWay:     string(dataset.MergeSum),
		Dogstatsd:    defaultDogstatsdConfig(),
	}
	loadConfig(&cliCfg, "sample", args)
	if cliCfg.Debug {
		enableDebug()
	}
	_, teardown := configureDogstatsd(ctx, dogstatsdOpts{
		config:      cliCfg.Dogstatsd,
		statsPrefix: "sample",
	})
	defer teardown()

	err := runSample(ctx, cliCfg)
	if err != nil && !errs.IsCanceled(err) {
		events.Log("Fatal sample error: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "sample"))
	}
}

func runSample(ctx context.Context, cliCfg sampleCliConfig) error {
	city, err := schema.NewCityName(cliCfg.City)
	if err != nil {
		return err
	}
	kind, err := schema.NewDatasetKind(cliCfg.Kind)
	if err != nil {
		return err
	}
	store, err := stationstore.StoreForPath(cliCfg.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	cfg := loader.DefaultConfig()
	cfg.TestRatio = cliCfg.TestRatio
	cfg.ClosenessLen = cliCfg.ClosenessLen
	cfg.PeriodLen = cliCfg.PeriodLen
	cfg.TrendLen = cliCfg.TrendLen
	cfg.Graphs = cliCfg.Graphs
	cfg.Normalize = cliCfg.Normalize
	cfg.Merge = dataset.MergeSpec{Factor: cliCfg.MergeFactor, Way: dataset.MergeWay(cliCfg.MergeWay)}
	switch cliCfg.Workdays {
	case "america":
		cfg.WorkdayParser = calendar.IsWorkdayAmerica
	case "china":
		cfg.WorkdayParser = calendar.IsWorkdayChina
	default:
		return fmt.Errorf("unknown workday calendar %q", cliCfg.Workdays)
	}
	for _, name := range strings.Split(cliCfg.External, "-") {
		switch name {
		case "":
		case "weather":
			cfg.External.Weather = true
		case "holiday":
			cfg.External.Holiday = true
		case "tp":
			cfg.External.TemporalPosition = true
		default:
			return fmt.Errorf("unknown external feature %q", name)
		}
	}

	l, err := loader.Load(ctx, store, city, kind, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("dataset: %s/%s\n", city.Name, kind.Name)
	fmt.Printf("daily slots: %d\n", l.DailySlots)
	fmt.Printf("stations: %d (of %d nodes)\n", l.StationNumber, l.DataSet.NodeTraffic.Cols)
	fmt.Printf("train samples: %d, test samples: %d\n", l.TrainSequenceLen, l.TestSequenceLen)
	fmt.Printf("closeness: %d, period: %d, trend: %d\n",
		l.TrainCloseness.Steps, l.TrainPeriod.Steps, l.TrainTrend.Steps)
	fmt.Printf("external dim: %d\n", l.ExternalDim)
	for i, lm := range l.LM {
		fmt.Printf("graph %d laplacian: %dx%d\n", i, lm.Rows, lm.Cols)
	}

	if l.TestCloseness.Empty() {
		return nil
	}
	// naive forecast: carry the last closeness value forward.
	pred := series.NewMatrix(l.TestY.Rows, l.TestY.Cols)
	for i := 0; i < pred.Rows; i++ {
		for j := 0; j < pred.Cols; j++ {
			pred.Set(i, j, l.TestCloseness.At(i, j, l.TestCloseness.Steps-1))
		}
	}
	truth := l.TestY
	if cfg.Normalize {
		pred = l.Normalizer.Denormalize(pred)
		truth = l.Normalizer.Denormalize(truth)
	}
	fmt.Printf("naive last-value RMSE: %0.4f\n", series.RMSE(pred, truth))
	return nil
}

func apiCmd(ctx context.Context, args []string) {
	cliCfg := apiCliConfig{
		BindAddr:  "0.0.0.0:1331",
		CacheTTL:  time.Minute,
		Dogstatsd: defaultDogstatsdConfig(),
	}
	loadConfig(&cliCfg, "api", args)
	if cliCfg.Debug {
		enableDebug()
	}

	var promHandler *prometheus.Handler
	if len(cliCfg.MetricsBind) > 0 {
		promHandler = &prometheus.Handler{}
		http.Handle("/metrics", promHandler)
		go func() {
			events.Log("Serving Prometheus metrics on %s", cliCfg.MetricsBind)
			err := http.ListenAndServe(cliCfg.MetricsBind, nil)
			if err != nil {
				events.Log("Failed to serve Prometheus metrics: %s", err)
			}
		}()
	}
	dd, teardown := configureDogstatsd(ctx, dogstatsdOpts{
		config:            cliCfg.Dogstatsd,
		statsPrefix:       "api",
		prometheusHandler: promHandler,
	})
	defer teardown()
	if dd != nil {
		stationstore.InitializeWithConfig(ctx, stationstore.Config{
			Stats: globalstatsConfig(dd),
		})
	}

	err := runAPI(ctx, cliCfg)
	if err != nil && !errs.IsCanceled(err) {
		events.Log("Fatal api error: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "startup"))
	}
}

func runAPI(ctx context.Context, cliCfg apiCliConfig) error {
	if cliCfg.BootstrapURL != "" {
		if err := utils.EnsureDirForFile(cliCfg.StorePath); err != nil {
			return err
		}
		err := snapshotpkg.Bootstrap(snapshotpkg.BootstrapConfig{
			URL:                 cliCfg.BootstrapURL,
			Path:                cliCfg.StorePath,
			Region:              cliCfg.BootstrapRegion,
			StartOverOnNotFound: true,
		})
		if err != nil {
			return err
		}
	}

	store, err := stationstore.StoreForPath(cliCfg.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	api, err := apipkg.New(apipkg.Config{
		BindAddr:    cliCfg.BindAddr,
		Store:       store,
		CacheTTL:    cliCfg.CacheTTL,
		Application: cliCfg.Application,
	})
	if err != nil {
		return err
	}

	watcher, err := dataset.WatchStore(ctx, cliCfg.StorePath)
	if err != nil {
		return err
	}

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return api.Start(grpCtx)
	})
	grp.Go(func() error {
		for {
			select {
			case <-watcher.C():
				events.Log("Store file changed, flushing response cache")
				api.FlushCache()
			case <-grpCtx.Done():
				return grpCtx.Err()
			}
		}
	})
	return grp.Wait()
}

func snapshotCmd(ctx context.Context, args []string) {
	cliCfg := snapshotCliConfig{
		SnapshotInterval: 5 * time.Minute,
		Dogstatsd:        defaultDogstatsdConfig(),
	}
	loadConfig(&cliCfg, "snapshot", args)
	if cliCfg.Debug {
		enableDebug()
	}
	_, teardown := configureDogstatsd(ctx, dogstatsdOpts{
		config:      cliCfg.Dogstatsd,
		statsPrefix: "snapshot",
	})
	defer teardown()

	err := func() error {
		store, err := dataset.OpenStore(cliCfg.StorePath, "rw")
		if err != nil {
			return err
		}
		defer store.Close()
		archiver, err := snapshotpkg.ArchiverFromConfig(snapshotpkg.ArchiverConfig{
			SnapshotURL: cliCfg.SnapshotURL,
			Interval:    cliCfg.SnapshotInterval,
			Store:       store,
		})
		if err != nil {
			return err
		}
		archiver.Start(ctx)
		return nil
	}()
	if err != nil && !errs.IsCanceled(err) {
		events.Log("Fatal snapshot error: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "startup"))
	}
}
