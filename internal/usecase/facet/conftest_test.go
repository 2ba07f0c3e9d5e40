package facet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/tablekit/internal/db/memory"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	domfacet "github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
	"github.com/kailas-cloud/tablekit/internal/usecase/table"
)

// mockSource records requests. optionsFor overrides options per request; a non-nil
// gate from gateFor blocks the call until closed, ignoring cancellation.
type mockSource struct {
	mu         sync.Mutex
	requests   []table.FacetRequest
	options    []domfacet.Option
	err        error
	optionsFor func(req table.FacetRequest) []domfacet.Option
	gateFor    func(req table.FacetRequest) <-chan struct{}
}

func (m *mockSource) Facets(_ context.Context, req table.FacetRequest) ([]domfacet.Option, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	opts, err := m.options, m.err
	if m.optionsFor != nil {
		opts = m.optionsFor(req)
	}
	var gate <-chan struct{}
	if m.gateFor != nil {
		gate = m.gateFor(req)
	}
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return opts, err
}

func (m *mockSource) calls() []table.FacetRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]table.FacetRequest(nil), m.requests...)
}

func waitIdle(t *testing.T, r *Resolver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

// memorySource serves the project/supplier example rows through the real read path.
func memorySource(t *testing.T) *table.Service {
	t.Helper()
	dt, err := doctype.New("purchase_order", []field.Field{
		field.Reconstruct("name", field.Tag, true),
		field.Reconstruct("project", field.Tag, true),
		field.Reconstruct("supplier", field.Tag, true),
	})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := doctype.NewRegistry(dt)
	if err != nil {
		t.Fatal(err)
	}
	store := memory.NewStore()
	store.Load("purchase_order", []map[string]any{
		{"name": "PO-1", "project": "P1", "supplier": "V1"},
		{"name": "PO-2", "project": "P1", "supplier": "V2"},
		{"name": "PO-3", "project": "P2", "supplier": "V3"},
		{"name": "PO-4", "project": "P1", "supplier": "V2"},
	})
	return table.New(listing.New(store, reg), reg, nil, table.Limits{})
}
