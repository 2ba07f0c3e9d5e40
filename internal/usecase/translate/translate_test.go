package translate

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
)

var poOptions = Options{
	SearchFields: []string{"name", "supplier", "title"},
	DateColumns:  []string{"transaction_date"},
}

func TestToServerParams_SearchAllFields(t *testing.T) {
	p, warnings := ToServerParams(query.State{SearchTerm: "  acme "}, poOptions)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	should := p.Filters.Should()
	if len(should) != 3 || len(p.Filters.Must()) != 0 {
		t.Fatalf("expected 3 should conditions, got %s", p.Filters.Key())
	}
	for i, f := range poOptions.SearchFields {
		if should[i].Key() != f || should[i].Kind() != filter.KindLike || should[i].Match() != "acme" {
			t.Errorf("unexpected condition %s", should[i])
		}
	}
}

func TestToServerParams_SearchSelectedField(t *testing.T) {
	p, _ := ToServerParams(query.State{SearchTerm: "acme", SearchField: "supplier"}, poOptions)
	must := p.Filters.Must()
	if len(must) != 1 || must[0].Key() != "supplier" || must[0].Kind() != filter.KindLike {
		t.Fatalf("unexpected filters %s", p.Filters.Key())
	}
	if len(p.Filters.Should()) != 0 {
		t.Fatalf("expected no should group, got %s", p.Filters.Key())
	}
}

func TestToServerParams_BlankSearchIgnored(t *testing.T) {
	p, _ := ToServerParams(query.State{SearchTerm: "   "}, poOptions)
	if !p.Filters.IsEmpty() {
		t.Fatalf("expected empty filters, got %s", p.Filters.Key())
	}
}

func TestToServerParams_DateRangeDayBoundaries(t *testing.T) {
	st := query.State{}.WithFilter("transaction_date", query.DateRange("2024-01-01", "2024-01-31"))
	p, warnings := ToServerParams(st, poOptions)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	c := p.Filters.Must()[0]
	if c.Kind() != filter.KindDateRange {
		t.Fatalf("expected date range, got %s", c)
	}
	if got := c.Dates().From().Format(filter.DateTimeLayout); got != "2024-01-01 00:00:00" {
		t.Errorf("from = %s", got)
	}
	if got := c.Dates().To().Format(filter.DateTimeLayout); got != "2024-01-31 23:59:59" {
		t.Errorf("to = %s", got)
	}
}

func TestToServerParams_OpenDateRange(t *testing.T) {
	st := query.State{}.WithFilter("transaction_date", query.DateRange("", "2024-02-01"))
	p, _ := ToServerParams(st, poOptions)
	c := p.Filters.Must()[0]
	if c.Dates().From() != nil || c.Dates().To() == nil {
		t.Fatalf("expected open start, got %s", c)
	}
}

func TestToServerParams_InvertedDateRangeDropped(t *testing.T) {
	st := query.State{}.
		WithFilter("transaction_date", query.DateRange("2024-02-01", "2024-01-01")).
		WithFilter("supplier", query.Exact("Acme"))
	p, warnings := ToServerParams(st, poOptions)
	if len(warnings) != 1 || warnings[0].ColumnID != "transaction_date" {
		t.Fatalf("expected one warning on transaction_date, got %v", warnings)
	}
	if !errors.Is(warnings[0], domain.ErrValidation) {
		t.Errorf("warning must wrap ErrValidation: %v", warnings[0])
	}
	must := p.Filters.Must()
	if len(must) != 1 || must[0].Key() != "supplier" {
		t.Fatalf("remaining filters must survive, got %s", p.Filters.Key())
	}
}

func TestToServerParams_ExactOnDateColumnIsOneDay(t *testing.T) {
	st := query.State{}.WithFilter("transaction_date", query.Exact("2024-03-05"))
	p, _ := ToServerParams(st, poOptions)
	c := p.Filters.Must()[0]
	if c.Dates().From().Format(filter.DateTimeLayout) != "2024-03-05 00:00:00" ||
		c.Dates().To().Format(filter.DateTimeLayout) != "2024-03-05 23:59:59" {
		t.Fatalf("unexpected bounds %s", c)
	}
}

func TestToServerParams_Kinds(t *testing.T) {
	tests := []struct {
		name    string
		value   query.Value
		kind    filter.Kind
		negated bool
	}{
		{"exact", query.Exact("Acme"), filter.KindEq, false},
		{"set", query.Set("V2", "V1"), filter.KindIn, false},
		{"numeric gt", query.Numeric(query.OpGt, 10), filter.KindRange, false},
		{"numeric eq", query.Numeric(query.OpEq, 10), filter.KindRange, false},
		{"numeric ne", query.Numeric(query.OpNe, 10), filter.KindRange, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := query.State{}.WithFilter("grand_total", tt.value)
			p, warnings := ToServerParams(st, poOptions)
			if len(warnings) != 0 {
				t.Fatalf("unexpected warnings %v", warnings)
			}
			group := p.Filters.Must()
			if tt.negated {
				group = p.Filters.MustNot()
			}
			if len(group) != 1 || group[0].Kind() != tt.kind {
				t.Fatalf("unexpected filters %s", p.Filters.Key())
			}
		})
	}
}

func TestToServerParams_NumericEqIsClosedRange(t *testing.T) {
	st := query.State{}.WithFilter("grand_total", query.Numeric(query.OpEq, 10))
	p, _ := ToServerParams(st, poOptions)
	r := p.Filters.Must()[0].Range()
	if !r.Contains(10) || r.Contains(10.5) || r.Contains(9.5) {
		t.Fatalf("unexpected range %s", r)
	}
}

func TestToServerParams_StaticFiltersAlwaysApplied(t *testing.T) {
	static, _ := filter.NewMatch("docstatus", "1")
	opts := poOptions
	opts.Static = []filter.Condition{static}

	p, _ := ToServerParams(query.State{}, opts)
	if len(p.Filters.Must()) != 1 || p.Filters.Must()[0].Key() != "docstatus" {
		t.Fatalf("expected static filter, got %s", p.Filters.Key())
	}

	opts.ExcludeColumn = "docstatus"
	p, _ = ToServerParams(query.State{}, opts)
	if len(p.Filters.Must()) != 1 {
		t.Fatalf("static filters are not subject to exclusion, got %s", p.Filters.Key())
	}
}

func TestToServerParams_ExcludeColumn(t *testing.T) {
	st := query.State{}.
		WithFilter("project", query.Exact("P1")).
		WithFilter("supplier", query.Set("V1"))
	opts := poOptions
	opts.ExcludeColumn = "supplier"

	p, _ := ToServerParams(st, opts)
	must := p.Filters.Must()
	if len(must) != 1 || must[0].Key() != "project" {
		t.Fatalf("expected only project filter, got %s", p.Filters.Key())
	}
}

func TestToServerParams_Sort(t *testing.T) {
	st := query.State{Sort: &query.Sort{Field: "grand_total", Direction: query.Desc}}
	p, _ := ToServerParams(st, poOptions)
	if p.Sort == nil || *p.Sort != *st.Sort {
		t.Fatalf("unexpected sort %+v", p.Sort)
	}
	if p.Sort == st.Sort {
		t.Fatal("sort must be copied")
	}
}

func TestParams_KeyIsValueBased(t *testing.T) {
	a := query.State{}.WithFilter("supplier", query.Set("V1", "V2")).WithFilter("project", query.Exact("P1"))
	b := query.State{}.WithFilter("project", query.Exact("P1")).WithFilter("supplier", query.Set("V2", "V1"))

	pa, _ := ToServerParams(a, poOptions)
	pb, _ := ToServerParams(b, poOptions)
	if pa.Key() != pb.Key() {
		t.Fatalf("keys differ:\n%s\n%s", pa.Key(), pb.Key())
	}

	b.Sort = &query.Sort{Field: "name", Direction: query.Asc}
	pb, _ = ToServerParams(b, poOptions)
	if pa.Key() == pb.Key() {
		t.Fatal("sort must be part of the key")
	}
}

type schemaMap map[string]field.Type

func (m schemaMap) FieldByName(name string) (field.Field, bool) {
	ft, ok := m[name]
	if !ok {
		return field.Field{}, false
	}
	return field.Reconstruct(name, ft, true), true
}

var poSchema = schemaMap{
	"name":             field.Tag,
	"supplier":         field.Tag,
	"title":            field.Text,
	"grand_total":      field.Numeric,
	"transaction_date": field.Date,
}

func TestToServerParams_SchemaChecksColumnTypes(t *testing.T) {
	tests := []struct {
		name   string
		column string
		value  query.Value
		kind   filter.Kind // zero: dropped with a warning
	}{
		{"exact on tag", "supplier", query.Exact("Acme"), filter.KindEq},
		{"set on text", "title", query.Set("a", "b"), filter.KindIn},
		{"exact number on numeric", "grand_total", query.Exact("100"), filter.KindRange},
		{"exact word on numeric", "grand_total", query.Exact("lots"), 0},
		{"set on numeric", "grand_total", query.Set("1", "2"), 0},
		{"numeric on numeric", "grand_total", query.Numeric(query.OpGt, 5), filter.KindRange},
		{"numeric on tag", "supplier", query.Numeric(query.OpGt, 5), 0},
		{"exact on date", "transaction_date", query.Exact("2024-03-05"), filter.KindDateRange},
		{"set on date", "transaction_date", query.Set("2024-03-05"), 0},
		{"date range on tag", "supplier", query.DateRange("2024-03-01", "2024-03-05"), 0},
		{"unknown column", "bogus", query.Exact("x"), 0},
	}
	opts := Options{Schema: poSchema, SearchFields: poOptions.SearchFields}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := query.State{}.WithFilter("name", query.Exact("PO-1")).WithFilter(tt.column, tt.value)
			p, warnings := ToServerParams(st, opts)

			want := 1
			if tt.kind != 0 {
				want = 2
			}
			if got := len(p.Filters.Must()); got != want {
				t.Fatalf("must = %s, want %d conditions", p.Filters.Key(), want)
			}
			if tt.kind == 0 {
				if len(warnings) != 1 || warnings[0].ColumnID != tt.column {
					t.Fatalf("warnings = %v, want one for %s", warnings, tt.column)
				}
				if !errors.Is(warnings[0], domain.ErrValidation) {
					t.Errorf("warning %v should wrap ErrValidation", warnings[0])
				}
				return
			}
			if len(warnings) != 0 {
				t.Fatalf("unexpected warnings %v", warnings)
			}
			found := false
			for _, c := range p.Filters.Must() {
				if c.Key() == tt.column && c.Kind() == tt.kind {
					found = true
				}
			}
			if !found {
				t.Errorf("no kind %d condition on %s in %s", tt.kind, tt.column, p.Filters.Key())
			}
		})
	}
}
