package listing

import (
	"context"
	"testing"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	listFn      func(ctx context.Context, q *db.ListQuery) (*db.ListResult, error)
	countFn     func(ctx context.Context, doctype string, filters filter.Expression) (int, error)
	aggregateFn func(ctx context.Context, q *db.AggregateQuery) (aggregate.Result, error)
	groupByFn   func(ctx context.Context, q *db.GroupByQuery) ([]db.GroupRow, error)
	facetFn     func(ctx context.Context, q *db.FacetQuery) ([]db.FacetRow, error)
}

func (m *mockStore) List(ctx context.Context, q *db.ListQuery) (*db.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &db.ListResult{}, nil
}

func (m *mockStore) Count(ctx context.Context, doctype string, filters filter.Expression) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, doctype, filters)
	}
	return 0, nil
}

func (m *mockStore) Aggregate(ctx context.Context, q *db.AggregateQuery) (aggregate.Result, error) {
	if m.aggregateFn != nil {
		return m.aggregateFn(ctx, q)
	}
	return aggregate.Result{}, nil
}

func (m *mockStore) GroupBy(ctx context.Context, q *db.GroupByQuery) ([]db.GroupRow, error) {
	if m.groupByFn != nil {
		return m.groupByFn(ctx, q)
	}
	return nil, nil
}

func (m *mockStore) Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetRow, error) {
	if m.facetFn != nil {
		return m.facetFn(ctx, q)
	}
	return nil, nil
}

func testRegistry(t *testing.T) *doctype.Registry {
	t.Helper()
	dt, err := doctype.New("purchase_order", []field.Field{
		field.Reconstruct("name", field.Tag, true),
		field.Reconstruct("supplier", field.Tag, true),
		field.Reconstruct("title", field.Text, false),
		field.Reconstruct("grand_total", field.Numeric, true),
		field.Reconstruct("transaction_date", field.Date, true),
	})
	if err != nil {
		t.Fatalf("doctype.New: %v", err)
	}
	reg, err := doctype.NewRegistry(dt)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, testRegistry(t)), ms
}

func floatPtr(f float64) *float64 { return &f }
