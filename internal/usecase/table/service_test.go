package table

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
)

func TestPage_OffsetAndClamp(t *testing.T) {
	tests := []struct {
		name       string
		pageIndex  int
		pageSize   int
		wantOffset int
		wantLimit  int
	}{
		{"default size", 0, 0, 0, 20},
		{"third page", 2, 10, 20, 10},
		{"clamped", 1, 1000, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			_, err := svc.Page(context.Background(), PageRequest{
				Doctype: "purchase_order", PageIndex: tt.pageIndex, PageSize: tt.pageSize,
			})
			if err != nil {
				t.Fatal(err)
			}
			if repo.lastPage.Offset != tt.wantOffset || repo.lastPage.Limit != tt.wantLimit {
				t.Fatalf("got offset=%d limit=%d", repo.lastPage.Offset, repo.lastPage.Limit)
			}
		})
	}
}

func TestPage_Validation(t *testing.T) {
	like, _ := filter.NewLike("grand_total", "1")
	match, _ := filter.NewMatch("missing", "x")
	gte := 1.0
	rng, _ := filter.NewRangeFilter(nil, &gte, nil, nil)
	rangeOnTag, _ := filter.NewRange("supplier", rng)
	eqOnNumber, _ := filter.NewMatch("grand_total", "10")

	tests := []struct {
		name string
		req  PageRequest
		want error
	}{
		{"unknown doctype", PageRequest{Doctype: "nope"}, domain.ErrUnknownDoctype},
		{"negative page", PageRequest{Doctype: "purchase_order", PageIndex: -1}, domain.ErrValidation},
		{"unknown filter field", PageRequest{Doctype: "purchase_order", Filters: mustExpr(t, match)}, domain.ErrUnknownField},
		{"search on numeric", PageRequest{Doctype: "purchase_order", Filters: mustExpr(t, like)}, domain.ErrValidation},
		{"range on tag", PageRequest{Doctype: "purchase_order", Filters: mustExpr(t, rangeOnTag)}, domain.ErrValidation},
		{"eq on numeric", PageRequest{Doctype: "purchase_order", Filters: mustExpr(t, eqOnNumber)}, domain.ErrValidation},
		{"unsortable", PageRequest{Doctype: "purchase_order", Sort: &query.Sort{Field: "title", Direction: query.Asc}}, domain.ErrValidation},
		{"unknown sort", PageRequest{Doctype: "purchase_order", Sort: &query.Sort{Field: "x", Direction: query.Asc}}, domain.ErrUnknownField},
		{"unknown field", PageRequest{Doctype: "purchase_order", Fields: []string{"x"}}, domain.ErrUnknownField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			_, err := svc.Page(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if repo.pageCalled {
				t.Fatal("repository must not be called on invalid input")
			}
		})
	}
}

func TestPage_RepoError(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.err = domain.ErrTransport
	if _, err := svc.Page(context.Background(), PageRequest{Doctype: "purchase_order"}); !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestAggregate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Aggregate(ctx, "purchase_order", filter.Expression{},
		[]aggregate.Config{{Field: "supplier", Function: aggregate.Sum}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("sum of a tag must fail, got %v", err)
	}

	_, err = svc.Aggregate(ctx, "purchase_order", filter.Expression{},
		[]aggregate.Config{{Field: "supplier", Function: aggregate.Count}})
	if err != nil {
		t.Fatalf("count of any field is allowed, got %v", err)
	}
}

func TestAggregate_NoConfigs(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.Aggregate(context.Background(), "purchase_order", filter.Expression{}, nil)
	if err != nil || len(res) != 0 {
		t.Fatalf("expected empty result, got %v %v", res, err)
	}
}

func TestGroupBy_Validation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.groups = []aggregate.Group{{Key: "Acme", Value: 1}}
	ctx := context.Background()

	good := aggregate.GroupByConfig{
		GroupByField: "supplier", AggregateField: "grand_total", AggregateFunction: aggregate.Sum, Limit: 5,
	}
	if _, err := svc.GroupBy(ctx, "purchase_order", filter.Expression{}, good); err != nil {
		t.Fatal(err)
	}

	bad := good
	bad.Limit = 0
	if _, err := svc.GroupBy(ctx, "purchase_order", filter.Expression{}, bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	bad = good
	bad.GroupByField = "vendor"
	if _, err := svc.GroupBy(ctx, "purchase_order", filter.Expression{}, bad); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestFacets_LimitCapped(t *testing.T) {
	svc, repo, _ := newTestService(t)
	if _, err := svc.Facets(context.Background(), FacetRequest{Doctype: "purchase_order", Field: "supplier", Limit: 500}); err != nil {
		t.Fatal(err)
	}
	if repo.lastLimit != 10 {
		t.Fatalf("expected limit 10, got %d", repo.lastLimit)
	}
}

func TestInvalidate(t *testing.T) {
	svc, _, inval := newTestService(t)
	if err := svc.Invalidate(context.Background(), "purchase_order"); err != nil {
		t.Fatal(err)
	}
	if len(inval.doctypes) != 1 || inval.doctypes[0] != "purchase_order" {
		t.Fatalf("unexpected invalidations %v", inval.doctypes)
	}
	if err := svc.Invalidate(context.Background(), "nope"); !errors.Is(err, domain.ErrUnknownDoctype) {
		t.Fatalf("expected ErrUnknownDoctype, got %v", err)
	}
}

func TestTranslate_UsesSchema(t *testing.T) {
	svc, _, _ := newTestService(t)
	st := query.State{SearchTerm: "acme"}.WithFilter("transaction_date", query.DateRange("2024-01-01", ""))

	p, warnings, err := svc.Translate("purchase_order", st, nil, "")
	if err != nil || len(warnings) != 0 {
		t.Fatalf("unexpected %v %v", err, warnings)
	}
	if len(p.Filters.Should()) != 3 {
		t.Fatalf("expected search over name, supplier, title; got %s", p.Filters.Key())
	}
	if p.Filters.Must()[0].Kind() != filter.KindDateRange {
		t.Fatalf("expected date range, got %s", p.Filters.Key())
	}
}
