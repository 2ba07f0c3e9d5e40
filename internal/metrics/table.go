package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Table fetch and cache Prometheus metrics.
var (
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablekit",
			Name:      "fetch_total",
			Help:      "Total number of table fetches by slot and outcome",
		},
		[]string{"slot", "status"}, // status: "ok" / "error" / "canceled"
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tablekit",
			Name:      "fetch_duration_seconds",
			Help:      "Table fetch duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"slot"},
	)

	StaleResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablekit",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer request superseded them",
		},
		[]string{"slot"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablekit",
			Name:      "cache_total",
			Help:      "Page cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var registerTableOnce sync.Once

// RegisterTableMetrics registers the fetch and cache metrics. Safe to call more than once.
func RegisterTableMetrics() {
	registerTableOnce.Do(func() {
		prometheus.MustRegister(FetchTotal)
		prometheus.MustRegister(FetchDuration)
		prometheus.MustRegister(StaleResponsesTotal)
		prometheus.MustRegister(CacheTotal)
	})
}

// FetchRecorder records coordinator and resolver fetches into the package metrics.
type FetchRecorder struct{}

// FetchDone records one completed fetch of slot.
func (FetchRecorder) FetchDone(slot string, err error, d time.Duration) {
	FetchTotal.WithLabelValues(slot, fetchStatus(err)).Inc()
	FetchDuration.WithLabelValues(slot).Observe(d.Seconds())
}

// Stale records a discarded superseded response.
func (FetchRecorder) Stale(slot string) {
	StaleResponsesTotal.WithLabelValues(slot).Inc()
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}
