package listing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
)

// --- Page ---

func TestPage_NormalizesRows(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.listFn = func(_ context.Context, q *db.ListQuery) (*db.ListResult, error) {
		if q.Doctype != "purchase_order" || q.Offset != 10 || q.Limit != 10 {
			t.Errorf("unexpected query: %+v", q)
		}
		if q.Sort == nil || q.Sort.Field != "grand_total" || !q.Sort.Desc {
			t.Errorf("unexpected sort: %+v", q.Sort)
		}
		return &db.ListResult{
			Total: 23,
			Rows: []map[string]any{
				{"name": "PO-1", "grand_total": "125.5", "transaction_date": "1704067200"},
				{"name": "PO-2", "grand_total": 10.0, "transaction_date": "2024-01-02 00:00:00"},
			},
		}, nil
	}

	page, err := repo.Page(context.Background(), PageQuery{
		Doctype: "purchase_order",
		Sort:    &query.Sort{Field: "grand_total", Direction: query.Desc},
		Offset:  10,
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.TotalCount != 23 || len(page.Rows) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Rows[0]["grand_total"] != 125.5 {
		t.Errorf("expected numeric 125.5, got %#v", page.Rows[0]["grand_total"])
	}
	if page.Rows[0]["transaction_date"] != "2024-01-01 00:00:00" {
		t.Errorf("expected unix seconds rendered as timestamp, got %#v", page.Rows[0]["transaction_date"])
	}
	if page.Rows[1]["transaction_date"] != "2024-01-02 00:00:00" {
		t.Errorf("expected timestamp passthrough, got %#v", page.Rows[1]["transaction_date"])
	}
}

func TestPage_UnknownDoctype(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.listFn = func(context.Context, *db.ListQuery) (*db.ListResult, error) {
		t.Fatal("store must not be called")
		return nil, nil
	}

	_, err := repo.Page(context.Background(), PageQuery{Doctype: "nope", Limit: 10})
	if !errors.Is(err, domain.ErrUnknownDoctype) {
		t.Fatalf("expected ErrUnknownDoctype, got %v", err)
	}
}

func TestPage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		want     error
	}{
		{"unknown index", &db.Error{Op: db.OpSearch, Err: db.ErrUnknownDoctype}, domain.ErrUnknownDoctype},
		{"invalid field", fmt.Errorf("sort: %w", db.ErrInvalidFieldName), domain.ErrValidation},
		{"unsupported", db.ErrUnsupported, domain.ErrNotImplemented},
		{"network", errors.New("connection refused"), domain.ErrTransport},
		{"canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, ms := newTestRepo(t)
			ms.listFn = func(context.Context, *db.ListQuery) (*db.ListResult, error) {
				return nil, tt.storeErr
			}
			_, err := repo.Page(context.Background(), PageQuery{Doctype: "purchase_order", Limit: 10})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// --- Count ---

func TestCount_PassesFilters(t *testing.T) {
	repo, ms := newTestRepo(t)
	cond, _ := filter.NewMatch("supplier", "Acme")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	ms.countFn = func(_ context.Context, dt string, f filter.Expression) (int, error) {
		if dt != "purchase_order" || f.Key() != expr.Key() {
			t.Errorf("unexpected args: %s %s", dt, f.Key())
		}
		return 7, nil
	}

	n, err := repo.Count(context.Background(), "purchase_order", expr)
	if err != nil || n != 7 {
		t.Fatalf("expected 7, got %d (%v)", n, err)
	}
}

// --- Aggregate ---

func TestAggregate_FillsMissingKeysWithNil(t *testing.T) {
	repo, ms := newTestRepo(t)
	aggs := []aggregate.Config{
		{Field: "grand_total", Function: aggregate.Sum},
		{Field: "name", Function: aggregate.Count},
	}
	ms.aggregateFn = func(context.Context, *db.AggregateQuery) (aggregate.Result, error) {
		return aggregate.Result{"sum_of_grand_total": floatPtr(300)}, nil
	}

	res, err := repo.Aggregate(context.Background(), "purchase_order", filter.Expression{}, aggs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 keys, got %v", res)
	}
	if v, ok := res.Value(aggs[0]); !ok || v != 300 {
		t.Errorf("expected sum 300, got %v %v", v, ok)
	}
	if v, present := res["count_of_name"]; !present || v != nil {
		t.Errorf("expected nil count, got %v (present=%v)", v, present)
	}
}

// --- GroupBy ---

func TestGroupBy_NormalizesOrderAndLimit(t *testing.T) {
	repo, ms := newTestRepo(t)
	cfg := aggregate.GroupByConfig{
		GroupByField:      "supplier",
		AggregateField:    "grand_total",
		AggregateFunction: aggregate.Sum,
		Limit:             2,
	}
	ms.groupByFn = func(context.Context, *db.GroupByQuery) ([]db.GroupRow, error) {
		return []db.GroupRow{
			{Key: "Gamma", Value: 50},
			{Key: "", Value: 999},
			{Key: "Beta", Value: 100},
			{Key: "Acme", Value: 100},
		}, nil
	}

	groups, err := repo.GroupBy(context.Background(), "purchase_order", filter.Expression{}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 2 || groups[0].Key != "Acme" || groups[1].Key != "Beta" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}

// --- Facet ---

func TestFacet_DropsBlankAndOrders(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.facetFn = func(_ context.Context, q *db.FacetQuery) ([]db.FacetRow, error) {
		if q.Field != "supplier" || q.Limit != 10 {
			t.Errorf("unexpected query: %+v", q)
		}
		return []db.FacetRow{
			{Value: "V2", Count: 1},
			{Value: "", Count: 5},
			{Value: "V1", Count: 3},
		}, nil
	}

	opts, err := repo.Facet(context.Background(), "purchase_order", "supplier", filter.Expression{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts) != 2 || opts[0].Value != "V1" || opts[0].Count != 3 || opts[1].Value != "V2" {
		t.Fatalf("unexpected options: %+v", opts)
	}
}
