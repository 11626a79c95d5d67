package globalstats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/stats/v4"
	"github.com/stretchr/testify/require"
)

type captureHandler struct {
	mu       sync.Mutex
	measures []stats.Measure
}

func (h *captureHandler) HandleMeasures(_ time.Time, measures ...stats.Measure) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range measures {
		h.measures = append(h.measures, m.Clone())
	}
}

func (h *captureHandler) names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.measures {
		for _, f := range m.Fields {
			out = append(out, m.Name+"."+f.Name)
		}
	}
	return out
}

func TestObserveAndIncrReachTheHandler(t *testing.T) {
	handler := &captureHandler{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	Initialize(ctx, Config{
		AppName:      "stats-test",
		StatsHandler: handler,
		SamplePct:    1, // observe everything
	})
	defer Disable()

	Incr("store-open")
	Observe("dataset-load-time", 25*time.Millisecond, stats.T("city", "chicago"))
	engine.Flush()

	names := handler.names()
	require.Contains(t, names, "stationstore.global.store-open")
	require.Contains(t, names, "stationstore.global.dataset-load-time")
}

func TestDisabledStatsAreNoOps(t *testing.T) {
	Disable()
	// must not panic with no engine
	Incr("store-open")
	Observe("dataset-load-time", time.Millisecond)
}
