package listing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	domfacet "github.com/kailas-cloud/tablekit/internal/domain/facet"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/domain/row"
)

// store is the consumer interface for listings (ISP).
type store interface {
	List(ctx context.Context, q *db.ListQuery) (*db.ListResult, error)
	Count(ctx context.Context, doctype string, filters filter.Expression) (int, error)
	Aggregate(ctx context.Context, q *db.AggregateQuery) (aggregate.Result, error)
	GroupBy(ctx context.Context, q *db.GroupByQuery) ([]db.GroupRow, error)
	Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetRow, error)
}

// PageQuery selects one page of a doctype.
type PageQuery struct {
	Doctype string
	Fields  []string
	Filters filter.Expression
	Sort    *query.Sort
	Offset  int
	Limit   int
	// SkipTotal asks for rows only; the total is then unreliable.
	SkipTotal bool
}

// Repo implements usecase/table.Repository over a db.DocumentSource.
type Repo struct {
	store    store
	registry *doctype.Registry
}

// New creates a listing repository. Row values are normalized using the registry's schemas.
func New(s store, registry *doctype.Registry) *Repo {
	return &Repo{store: s, registry: registry}
}

// Page returns one page of rows with the total match count.
func (r *Repo) Page(ctx context.Context, q PageQuery) (row.Page, error) {
	dt, err := r.registry.Get(q.Doctype)
	if err != nil {
		return row.Page{}, err
	}

	lq := &db.ListQuery{
		Doctype:   q.Doctype,
		Fields:    q.Fields,
		Filters:   q.Filters,
		Offset:    q.Offset,
		Limit:     q.Limit,
		SkipTotal: q.SkipTotal,
	}
	if q.Sort != nil {
		lq.Sort = &db.Sort{Field: q.Sort.Field, Desc: q.Sort.Direction == query.Desc}
	}

	res, err := r.store.List(ctx, lq)
	if err != nil {
		return row.Page{}, mapErr("list", q.Doctype, err)
	}

	rows := make([]row.Row, 0, len(res.Rows))
	for _, raw := range res.Rows {
		rows = append(rows, normalizeRow(dt, raw))
	}
	return row.Page{Rows: rows, TotalCount: res.Total}, nil
}

// Count returns the number of rows matching filters.
func (r *Repo) Count(ctx context.Context, doctypeName string, filters filter.Expression) (int, error) {
	if _, err := r.registry.Get(doctypeName); err != nil {
		return 0, err
	}
	n, err := r.store.Count(ctx, doctypeName, filters)
	if err != nil {
		return 0, mapErr("count", doctypeName, err)
	}
	return n, nil
}

// Aggregate computes whole-set aggregates. Every requested key is present; nil means no match.
func (r *Repo) Aggregate(
	ctx context.Context, doctypeName string, filters filter.Expression, aggs []aggregate.Config,
) (aggregate.Result, error) {
	if _, err := r.registry.Get(doctypeName); err != nil {
		return nil, err
	}
	res, err := r.store.Aggregate(ctx, &db.AggregateQuery{Doctype: doctypeName, Filters: filters, Aggregates: aggs})
	if err != nil {
		return nil, mapErr("aggregate", doctypeName, err)
	}
	out := make(aggregate.Result, len(aggs))
	for _, a := range aggs {
		out[a.Key()] = res[a.Key()]
	}
	return out, nil
}

// GroupBy returns the normalized top-N buckets.
func (r *Repo) GroupBy(
	ctx context.Context, doctypeName string, filters filter.Expression, cfg aggregate.GroupByConfig,
) ([]aggregate.Group, error) {
	if _, err := r.registry.Get(doctypeName); err != nil {
		return nil, err
	}
	rows, err := r.store.GroupBy(ctx, &db.GroupByQuery{Doctype: doctypeName, Filters: filters, GroupBy: cfg})
	if err != nil {
		return nil, mapErr("group by", doctypeName, err)
	}
	groups := make([]aggregate.Group, 0, len(rows))
	for _, g := range rows {
		if strings.TrimSpace(g.Key) == "" {
			continue
		}
		groups = append(groups, aggregate.Group{Key: g.Key, Value: g.Value})
	}
	return aggregate.NormalizeGroups(groups, cfg.Limit), nil
}

// Facet returns distinct values of a field with counts, ordered by count then value.
func (r *Repo) Facet(
	ctx context.Context, doctypeName, fieldName string, filters filter.Expression, limit int,
) ([]domfacet.Option, error) {
	if _, err := r.registry.Get(doctypeName); err != nil {
		return nil, err
	}
	rows, err := r.store.Facet(ctx, &db.FacetQuery{Doctype: doctypeName, Field: fieldName, Filters: filters, Limit: limit})
	if err != nil {
		return nil, mapErr("facet", doctypeName, err)
	}
	opts := make([]domfacet.Option, 0, len(rows))
	for _, fr := range rows {
		opts = append(opts, domfacet.Option{Value: fr.Value, Count: fr.Count})
	}
	return domfacet.Normalize(opts, limit, nil), nil
}

// mapErr translates storage errors into domain sentinels.
func mapErr(op, doctypeName string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s %s: %w", op, doctypeName, err)
	case errors.Is(err, db.ErrUnknownDoctype):
		return fmt.Errorf("%s %s: %w", op, doctypeName, domain.ErrUnknownDoctype)
	case errors.Is(err, db.ErrInvalidFieldName):
		return fmt.Errorf("%s %s: %w: %w", op, doctypeName, domain.ErrValidation, err)
	case errors.Is(err, db.ErrUnsupported):
		return fmt.Errorf("%s %s: %w: %w", op, doctypeName, domain.ErrNotImplemented, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, doctypeName, domain.ErrTransport, err)
}

// normalizeRow coerces raw backend values: numerics to float64, dates to "YYYY-MM-DD HH:MM:SS".
func normalizeRow(dt doctype.Doctype, raw map[string]any) row.Row {
	out := make(row.Row, len(raw))
	for k, v := range raw {
		f, ok := dt.FieldByName(k)
		if !ok || v == nil {
			out[k] = v
			continue
		}
		switch f.FieldType() {
		case field.Numeric:
			out[k] = normalizeNumber(v)
		case field.Date:
			out[k] = normalizeDate(v)
		default:
			out[k] = v
		}
	}
	return out
}

func normalizeNumber(v any) any {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return v
}

// normalizeDate renders unix seconds (search-index storage) as UTC timestamps; strings pass through.
func normalizeDate(v any) any {
	switch x := v.(type) {
	case float64:
		return time.Unix(int64(x), 0).UTC().Format(filter.DateTimeLayout)
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return time.Unix(n, 0).UTC().Format(filter.DateTimeLayout)
		}
	}
	return v
}
