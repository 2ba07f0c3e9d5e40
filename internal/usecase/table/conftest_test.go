package table

import (
	"context"
	"testing"

	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	"github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
)

// --- Mocks ---

type mockRepo struct {
	lastPage   listing.PageQuery
	pageCalled bool
	page       row.Page
	err        error
	count      int
	aggregates aggregate.Result
	groups     []aggregate.Group
	options    []facet.Option
	lastLimit  int
}

func (m *mockRepo) Page(_ context.Context, q listing.PageQuery) (row.Page, error) {
	m.pageCalled = true
	m.lastPage = q
	return m.page, m.err
}

func (m *mockRepo) Count(context.Context, string, filter.Expression) (int, error) {
	return m.count, m.err
}

func (m *mockRepo) Aggregate(context.Context, string, filter.Expression, []aggregate.Config) (aggregate.Result, error) {
	return m.aggregates, m.err
}

func (m *mockRepo) GroupBy(context.Context, string, filter.Expression, aggregate.GroupByConfig) ([]aggregate.Group, error) {
	return m.groups, m.err
}

func (m *mockRepo) Facet(_ context.Context, _, _ string, _ filter.Expression, limit int) ([]facet.Option, error) {
	m.lastLimit = limit
	return m.options, m.err
}

type mockInvalidator struct {
	doctypes []string
	err      error
}

func (m *mockInvalidator) Invalidate(_ context.Context, doctype string) error {
	m.doctypes = append(m.doctypes, doctype)
	return m.err
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

func newTestService(t *testing.T) (*Service, *mockRepo, *mockInvalidator) {
	t.Helper()
	repo := &mockRepo{}
	inval := &mockInvalidator{}
	return New(repo, testRegistry(t), inval, Limits{DefaultPageSize: 20, MaxPageSize: 100, FacetLimit: 10}), repo, inval
}

func mustExpr(t *testing.T, must ...filter.Condition) filter.Expression {
	t.Helper()
	e, err := filter.NewExpression(must, nil, nil)
	if err != nil {
		t.Fatalf("NewExpression: %v", err)
	}
	return e
}
