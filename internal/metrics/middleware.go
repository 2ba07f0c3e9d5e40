package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP API metrics. Routes are labelled by chi pattern and doctype so that
// per-table traffic is visible without one series per query string.
var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tablekit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route", "doctype"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tablekit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route, doctype and status",
		},
		[]string{"method", "route", "doctype", "status"},
	)

	httpResponseBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tablekit",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body size; large values point at oversized pages",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"route"},
	)
)

var registerHTTPOnce sync.Once

// RegisterHTTPMetrics registers the HTTP middleware metrics. Safe to call more than once.
func RegisterHTTPMetrics() {
	registerHTTPOnce.Do(func() {
		prometheus.MustRegister(httpRequestDuration)
		prometheus.MustRegister(httpRequestsTotal)
		prometheus.MustRegister(httpResponseBytes)
	})
}

// Middleware records duration, count and response size of every request.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route, doctype := routeLabels(r, status)

			httpRequestDuration.WithLabelValues(r.Method, route, doctype).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(r.Method, route, doctype, strconv.Itoa(status)).Inc()
			httpResponseBytes.WithLabelValues(route).Observe(float64(ww.BytesWritten()))
		})
	}
}

// routeLabels reads the matched pattern and doctype once routing is done.
// Unmatched routes and unknown doctypes collapse into fixed values.
func routeLabels(r *http.Request, status int) (route, doctype string) {
	route, doctype = "unknown", "none"
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return route, doctype
	}
	if p := rctx.RoutePattern(); p != "" {
		route = p
	}
	if d := rctx.URLParam("doctype"); d != "" && status != http.StatusNotFound {
		doctype = d
	}
	return route, doctype
}
