package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// List returns one sorted page of matching rows.
func (s *Store) List(ctx context.Context, q *db.ListQuery) (*db.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}
	rows, err := s.matching(q.Doctype, q.Filters)
	if err != nil {
		return nil, err
	}
	sortRows(rows, q.Sort)

	total := len(rows)
	start := min(q.Offset, total)
	end := min(start+q.Limit, total)

	page := make([]map[string]any, 0, end-start)
	for _, r := range rows[start:end] {
		page = append(page, project(r, q.Fields))
	}
	return &db.ListResult{Total: total, Rows: page}, nil
}

// Count returns the number of matching rows.
func (s *Store) Count(ctx context.Context, doctype string, filters filter.Expression) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rows, err := s.matching(doctype, filters)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Aggregate computes whole-set aggregates. Every aggregate is nil when no row matches.
func (s *Store) Aggregate(ctx context.Context, q *db.AggregateQuery) (aggregate.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.matching(q.Doctype, q.Filters)
	if err != nil {
		return nil, err
	}
	out := make(aggregate.Result, len(q.Aggregates))
	for _, a := range q.Aggregates {
		if len(rows) == 0 {
			out[a.Key()] = nil
			continue
		}
		out[a.Key()] = aggregate.Compute(a.Function, columnValues(rows, a.Field, a.Function))
	}
	return out, nil
}

// GroupBy buckets matching rows by a field and aggregates each bucket.
func (s *Store) GroupBy(ctx context.Context, q *db.GroupByQuery) ([]db.GroupRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := q.GroupBy
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.matching(q.Doctype, q.Filters)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]map[string]any)
	for _, r := range rows {
		key := toString(r[g.GroupByField])
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], r)
	}

	groups := make([]aggregate.Group, 0, len(buckets))
	for key, members := range buckets {
		v := aggregate.Compute(g.AggregateFunction, columnValues(members, g.AggregateField, g.AggregateFunction))
		if v == nil {
			continue
		}
		groups = append(groups, aggregate.Group{Key: key, Value: *v})
	}

	out := make([]db.GroupRow, 0, len(groups))
	for _, gr := range aggregate.NormalizeGroups(groups, g.Limit) {
		out = append(out, db.GroupRow{Key: gr.Key, Value: gr.Value})
	}
	return out, nil
}

// Facet counts matching rows per distinct non-empty value of a field.
func (s *Store) Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.matching(q.Doctype, q.Filters)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, r := range rows {
		if v := toString(r[q.Field]); v != "" {
			counts[v]++
		}
	}
	out := make([]db.FacetRow, 0, len(counts))
	for v, n := range counts {
		out = append(out, db.FacetRow{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// columnValues collects numeric values of field. Count counts every non-null value.
func columnValues(rows []map[string]any, field string, fn aggregate.Function) []float64 {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		if fn == aggregate.Count {
			values = append(values, 1)
			continue
		}
		if f, ok := toFloat(v); ok {
			values = append(values, f)
		}
	}
	return values
}

func project(row map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}
