// Package table serves stateless page, count, aggregate, group-by and facet reads of a doctype.
package table

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	"github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
	"github.com/kailas-cloud/tablekit/internal/repository/listing"
	"github.com/kailas-cloud/tablekit/internal/usecase/translate"
)

// Default limits.
const (
	DefaultPageSize   = 20
	DefaultMaxPage    = 500
	DefaultFacetLimit = 50
)

// Limits bounds request sizes.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
	FacetLimit      int
}

// PageRequest asks for one page of a doctype.
type PageRequest struct {
	Doctype   string
	Fields    []string
	Filters   filter.Expression
	Sort      *query.Sort
	PageIndex int
	PageSize  int
	// SkipCount requests rows only, for callers that fetch the total with Count.
	SkipCount bool
}

// FacetRequest asks for the distinct values of one field.
type FacetRequest struct {
	Doctype string
	Field   string
	Filters filter.Expression
	Limit   int
}

// Service validates requests against doctype schemas and reads through the repository.
type Service struct {
	repo     Repository
	doctypes DoctypeReader
	inval    Invalidator
	limits   Limits
}

// New creates a table service. inval may be nil when nothing is cached.
func New(repo Repository, doctypes DoctypeReader, inval Invalidator, limits Limits) *Service {
	if limits.DefaultPageSize <= 0 {
		limits.DefaultPageSize = DefaultPageSize
	}
	if limits.MaxPageSize <= 0 {
		limits.MaxPageSize = DefaultMaxPage
	}
	if limits.DefaultPageSize > limits.MaxPageSize {
		limits.DefaultPageSize = limits.MaxPageSize
	}
	if limits.FacetLimit <= 0 {
		limits.FacetLimit = DefaultFacetLimit
	}
	return &Service{repo: repo, doctypes: doctypes, inval: inval, limits: limits}
}

// Limits returns the effective limits.
func (s *Service) Limits() Limits { return s.limits }

// Doctype returns a registered doctype.
func (s *Service) Doctype(name string) (doctype.Doctype, error) {
	return s.doctypes.Get(name)
}

// Doctypes returns every registered doctype.
func (s *Service) Doctypes() []doctype.Doctype { return s.doctypes.All() }

// Translate converts a query state into server params using the doctype's schema:
// searchable fields are its tag and text fields, date columns its date fields.
// Filters on unknown columns or of a kind the column type cannot hold become warnings.
func (s *Service) Translate(
	name string, st query.State, static []filter.Condition, excludeColumn string,
) (translate.Params, []translate.Warning, error) {
	dt, err := s.doctypes.Get(name)
	if err != nil {
		return translate.Params{}, nil, err
	}
	p, warnings := translate.ToServerParams(st, translate.Options{
		Schema:        dt,
		SearchFields:  SearchableFields(dt),
		DateColumns:   dt.DateColumns(),
		Static:        static,
		ExcludeColumn: excludeColumn,
	})
	return p, warnings, nil
}

// SearchableFields returns the tag and text fields of dt.
func SearchableFields(dt doctype.Doctype) []string {
	var out []string
	for _, f := range dt.Fields() {
		if f.FieldType().Searchable() {
			out = append(out, f.Name())
		}
	}
	return out
}

// ClampPageSize bounds n to [1, MaxPageSize]; zero means the default.
func (s *Service) ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return s.limits.DefaultPageSize
	case n > s.limits.MaxPageSize:
		return s.limits.MaxPageSize
	}
	return n
}

// Page returns one page of rows and, unless SkipCount is set, the total match count.
func (s *Service) Page(ctx context.Context, req PageRequest) (row.Page, error) {
	dt, err := s.doctypes.Get(req.Doctype)
	if err != nil {
		return row.Page{}, err
	}
	if req.PageIndex < 0 {
		return row.Page{}, domain.NewFieldError("page_index", "must not be negative")
	}
	if err := validateFilters(req.Filters, dt); err != nil {
		return row.Page{}, err
	}
	if err := validateSort(req.Sort, dt); err != nil {
		return row.Page{}, err
	}
	for _, f := range req.Fields {
		if _, ok := dt.FieldByName(f); !ok {
			return row.Page{}, fmt.Errorf("%w: %q", domain.ErrUnknownField, f)
		}
	}

	size := s.ClampPageSize(req.PageSize)
	page, err := s.repo.Page(ctx, listing.PageQuery{
		Doctype:   req.Doctype,
		Fields:    req.Fields,
		Filters:   req.Filters,
		Sort:      req.Sort,
		Offset:    req.PageIndex * size,
		Limit:     size,
		SkipTotal: req.SkipCount,
	})
	if err != nil {
		return row.Page{}, fmt.Errorf("page: %w", err)
	}
	return page, nil
}

// Count returns the number of rows matching filters.
func (s *Service) Count(ctx context.Context, name string, filters filter.Expression) (int, error) {
	dt, err := s.doctypes.Get(name)
	if err != nil {
		return 0, err
	}
	if err := validateFilters(filters, dt); err != nil {
		return 0, err
	}
	n, err := s.repo.Count(ctx, name, filters)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Aggregate computes whole-set aggregates; a nil value means no row matched.
func (s *Service) Aggregate(
	ctx context.Context, name string, filters filter.Expression, aggs []aggregate.Config,
) (aggregate.Result, error) {
	dt, err := s.doctypes.Get(name)
	if err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return aggregate.Result{}, nil
	}
	if err := validateFilters(filters, dt); err != nil {
		return nil, err
	}
	for _, a := range aggs {
		if err := validateAggregate(a.Field, a.Function, dt); err != nil {
			return nil, err
		}
	}
	res, err := s.repo.Aggregate(ctx, name, filters, aggs)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return res, nil
}

// GroupBy returns at most cfg.Limit buckets ordered by value desc, then key asc.
func (s *Service) GroupBy(
	ctx context.Context, name string, filters filter.Expression, cfg aggregate.GroupByConfig,
) ([]aggregate.Group, error) {
	dt, err := s.doctypes.Get(name)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := validateFilters(filters, dt); err != nil {
		return nil, err
	}
	if _, ok := dt.FieldByName(cfg.GroupByField); !ok {
		return nil, fmt.Errorf("%w: group by %q", domain.ErrUnknownField, cfg.GroupByField)
	}
	if err := validateAggregate(cfg.AggregateField, cfg.AggregateFunction, dt); err != nil {
		return nil, err
	}
	groups, err := s.repo.GroupBy(ctx, name, filters, cfg)
	if err != nil {
		return nil, fmt.Errorf("group by: %w", err)
	}
	return groups, nil
}

// Facets returns distinct values of a field with counts.
func (s *Service) Facets(ctx context.Context, req FacetRequest) ([]facet.Option, error) {
	dt, err := s.doctypes.Get(req.Doctype)
	if err != nil {
		return nil, err
	}
	if _, ok := dt.FieldByName(req.Field); !ok {
		return nil, fmt.Errorf("%w: facet %q", domain.ErrUnknownField, req.Field)
	}
	if err := validateFilters(req.Filters, dt); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > s.limits.FacetLimit {
		limit = s.limits.FacetLimit
	}
	opts, err := s.repo.Facet(ctx, req.Doctype, req.Field, req.Filters, limit)
	if err != nil {
		return nil, fmt.Errorf("facet: %w", err)
	}
	return opts, nil
}

// Invalidate drops cached responses of a doctype so the next reads hit the store.
func (s *Service) Invalidate(ctx context.Context, name string) error {
	if _, err := s.doctypes.Get(name); err != nil {
		return err
	}
	if s.inval == nil {
		return nil
	}
	if err := s.inval.Invalidate(ctx, name); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return nil
}

// validateFilters ensures filter fields exist in the doctype
// and that the condition kind matches the field type.
func validateFilters(expr filter.Expression, dt doctype.Doctype) error {
	if expr.IsEmpty() {
		return nil
	}
	groups := [][]filter.Condition{expr.Must(), expr.Should(), expr.MustNot()}
	for _, conditions := range groups {
		for _, c := range conditions {
			f, ok := dt.FieldByName(c.Key())
			if !ok {
				return fmt.Errorf("%w: filter on %q", domain.ErrUnknownField, c.Key())
			}
			ft := f.FieldType()
			switch c.Kind() {
			case filter.KindLike:
				if !ft.Searchable() {
					return domain.NewFieldError(c.Key(), "search on non-text field")
				}
			case filter.KindRange:
				if ft != field.Numeric {
					return domain.NewFieldError(c.Key(), "range filter on non-numeric field")
				}
			case filter.KindDateRange:
				if ft != field.Date {
					return domain.NewFieldError(c.Key(), "date range on non-date field")
				}
			case filter.KindEq, filter.KindIn:
				if ft == field.Numeric || ft == field.Date {
					return domain.NewFieldError(c.Key(), "match filter on non-tag field")
				}
			}
		}
	}
	return nil
}

func validateSort(srt *query.Sort, dt doctype.Doctype) error {
	if srt == nil {
		return nil
	}
	f, ok := dt.FieldByName(srt.Field)
	if !ok {
		return fmt.Errorf("%w: sort by %q", domain.ErrUnknownField, srt.Field)
	}
	if !f.Sortable() {
		return domain.NewFieldError(srt.Field, "field is not sortable")
	}
	if !srt.Direction.IsValid() {
		return domain.NewFieldError(srt.Field, "sort direction must be asc or desc")
	}
	return nil
}

func validateAggregate(name string, fn aggregate.Function, dt doctype.Doctype) error {
	f, ok := dt.FieldByName(name)
	if !ok {
		return fmt.Errorf("%w: aggregate of %q", domain.ErrUnknownField, name)
	}
	if !fn.IsValid() {
		return domain.NewFieldError(name, "unknown aggregate function")
	}
	if fn != aggregate.Count && f.FieldType() != field.Numeric {
		return domain.NewFieldError(name, fn.String()+" requires a numeric field")
	}
	return nil
}
