package datatable

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/tablekit/internal/db/memory"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	domfacet "github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
	"github.com/kailas-cloud/tablekit/internal/usecase/table"
)

// mockSource records calls. pageFn computes pages; a non-nil gate from gateFor blocks
// the page call until closed, ignoring cancellation. Count reports 100 rows.
type mockSource struct {
	mu            sync.Mutex
	pages         []table.PageRequest
	countCalls    int
	aggCalls      int
	groupCalls    int
	invalidations int

	pageFn   func(req table.PageRequest) (row.Page, error)
	gateFor  func(req table.PageRequest) <-chan struct{}
	countErr error
	aggErr   error
	groupErr error
}

func (m *mockSource) Page(_ context.Context, req table.PageRequest) (row.Page, error) {
	m.mu.Lock()
	m.pages = append(m.pages, req)
	fn := m.pageFn
	var gate <-chan struct{}
	if m.gateFor != nil {
		gate = m.gateFor(req)
	}
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fn == nil {
		return row.Page{Rows: []row.Row{{"name": fmt.Sprintf("page-%d", req.PageIndex)}}}, nil
	}
	return fn(req)
}

func (m *mockSource) Count(context.Context, string, filter.Expression) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countCalls++
	if m.countErr != nil {
		return 0, m.countErr
	}
	return 100, nil
}

func (m *mockSource) Aggregate(
	_ context.Context, _ string, _ filter.Expression, aggs []aggregate.Config,
) (aggregate.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggCalls++
	if m.aggErr != nil {
		return nil, m.aggErr
	}
	out := aggregate.Result{}
	for _, a := range aggs {
		v := float64(m.aggCalls)
		out[a.Key()] = &v
	}
	return out, nil
}

func (m *mockSource) GroupBy(
	_ context.Context, _ string, _ filter.Expression, _ aggregate.GroupByConfig,
) ([]aggregate.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupCalls++
	if m.groupErr != nil {
		return nil, m.groupErr
	}
	return []aggregate.Group{{Key: "V1", Value: 10}}, nil
}

func (m *mockSource) Invalidate(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations++
	return nil
}

func (m *mockSource) pageCalls() []table.PageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]table.PageRequest(nil), m.pages...)
}

func (m *mockSource) counts() (aggs, groups, invalidations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggCalls, m.groupCalls, m.invalidations
}

func (m *mockSource) countRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countCalls
}

func (m *mockSource) setCountErr(err error) {
	m.mu.Lock()
	m.countErr = err
	m.mu.Unlock()
}

func (m *mockSource) setPageFn(fn func(req table.PageRequest) (row.Page, error)) {
	m.mu.Lock()
	m.pageFn = fn
	m.mu.Unlock()
}

// countingFacets serves everything from a real service and records facet requests.
type countingFacets struct {
	*table.Service

	mu       sync.Mutex
	requests []table.FacetRequest
}

func (c *countingFacets) Facets(ctx context.Context, req table.FacetRequest) ([]domfacet.Option, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.Service.Facets(ctx, req)
}

func (c *countingFacets) facetCalls() []table.FacetRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]table.FacetRequest(nil), c.requests...)
}

type mockRecorder struct {
	mu    sync.Mutex
	done  map[string]int
	stale map[string]int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{done: map[string]int{}, stale: map[string]int{}}
}

func (r *mockRecorder) FetchDone(slot string, _ error, _ time.Duration) {
	r.mu.Lock()
	r.done[slot]++
	r.mu.Unlock()
}

func (r *mockRecorder) Stale(slot string) {
	r.mu.Lock()
	r.stale[slot]++
	r.mu.Unlock()
}

func (r *mockRecorder) staleCount(slot Slot) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stale[string(slot)]
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func testRegistry(t *testing.T) *doctype.Registry {
	t.Helper()
	dt, err := doctype.New("purchase_order", []field.Field{
		field.Reconstruct("name", field.Tag, true),
		field.Reconstruct("project", field.Tag, true),
		field.Reconstruct("supplier", field.Tag, true),
		field.Reconstruct("grand_total", field.Numeric, true),
	})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := doctype.NewRegistry(dt)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// memorySource serves n purchase orders through the real read path. Rows alternate
// between suppliers V1 and V2; PO-1 to PO-3 belong to project P1, the rest to P2.
func memorySource(t *testing.T, n int) *table.Service {
	t.Helper()
	reg := testRegistry(t)
	rows := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		project := "P2"
		if i <= 3 {
			project = "P1"
		}
		rows = append(rows, map[string]any{
			"name":        fmt.Sprintf("PO-%02d", i),
			"project":     project,
			"supplier":    fmt.Sprintf("V%d", 1+i%2),
			"grand_total": float64(i * 100),
		})
	}
	store := memory.NewStore()
	store.Load("purchase_order", rows)
	return table.New(listing.New(store, reg), reg, nil, table.Limits{})
}
