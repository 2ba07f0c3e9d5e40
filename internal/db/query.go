package db

import (
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// Sort orders a listing by one field.
type Sort struct {
	Field string
	Desc  bool
}

// ListQuery is the input for a paginated listing.
type ListQuery struct {
	Doctype string
	Fields  []string
	Filters filter.Expression
	Sort    *Sort
	Offset  int
	Limit   int
	// SkipTotal lets a backend leave Total at zero when counting costs an extra query.
	SkipTotal bool
}

// ListResult is one page of raw rows plus the total match count.
type ListResult struct {
	Total int
	Rows  []map[string]any
}

// AggregateQuery computes whole-set aggregates under a filter.
type AggregateQuery struct {
	Doctype    string
	Filters    filter.Expression
	Aggregates []aggregate.Config
}

// GroupByQuery computes one aggregate per distinct value of a field.
type GroupByQuery struct {
	Doctype string
	Filters filter.Expression
	GroupBy aggregate.GroupByConfig
}

// GroupRow is a single bucket returned by GroupBy.
type GroupRow struct {
	Key   string
	Value float64
}

// FacetQuery counts rows per distinct value of a field.
type FacetQuery struct {
	Doctype string
	Field   string
	Filters filter.Expression
	Limit   int
}

// FacetRow is a single distinct value with its row count.
type FacetRow struct {
	Value string
	Count int
}

// Document is one record to be written, fields already encoded for storage.
type Document struct {
	ID     string
	Fields map[string]string
}
