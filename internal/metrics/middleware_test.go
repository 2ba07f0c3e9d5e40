package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func tableRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Route("/api/v1/doctypes/{doctype}", func(r chi.Router) {
		r.Get("/rows", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "doctype") == "ghost" {
				http.Error(w, "unknown doctype", http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
		})
		r.Post("/invalidate", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func TestMiddleware_LabelsRouteAndDoctype(t *testing.T) {
	h := tableRouter()
	const route = "/api/v1/doctypes/{doctype}/rows"

	tests := []struct {
		name    string
		method  string
		path    string
		route   string
		doctype string
		status  string
	}{
		{"rows", http.MethodGet, "/api/v1/doctypes/purchase_order/rows", route, "purchase_order", "200"},
		{"unknown doctype collapses", http.MethodGet, "/api/v1/doctypes/ghost/rows", route, "none", "404"},
		{"invalidate", http.MethodPost, "/api/v1/doctypes/supplier/invalidate",
			"/api/v1/doctypes/{doctype}/invalidate", "supplier", "204"},
		{"unmatched", http.MethodGet, "/nope", "unknown", "none", "404"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.doctype, tc.status))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, http.NoBody))

			got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.doctype, tc.status))
			if got != before+1 {
				t.Errorf("requests_total{%s %s %s %s} = %v, want %v",
					tc.method, tc.route, tc.doctype, tc.status, got, before+1)
			}
		})
	}
}

func TestMiddleware_RecordsDurationAndSize(t *testing.T) {
	h := tableRouter()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/doctypes/purchase_order/rows", http.NoBody))

	if rr.Body.Len() != 1000 {
		t.Fatalf("body len = %d", rr.Body.Len())
	}
	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected duration observations")
	}
	if testutil.CollectAndCount(httpResponseBytes) == 0 {
		t.Error("expected response size observations")
	}
}

func TestRegisterHTTPMetrics_Idempotent(t *testing.T) {
	RegisterHTTPMetrics()
	RegisterHTTPMetrics()
}
