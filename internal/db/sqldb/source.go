package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

const (
	opSelect    = "SELECT"
	matchedName = "matched_count"
)

var sqlFunctions = map[aggregate.Function]string{
	aggregate.Sum:   "SUM",
	aggregate.Avg:   "AVG",
	aggregate.Min:   "MIN",
	aggregate.Max:   "MAX",
	aggregate.Count: "COUNT",
}

// List returns one page of rows plus the total match count.
func (s *Store) List(ctx context.Context, q *db.ListQuery) (*db.ListResult, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}
	query, err := s.buildListQuery(q)
	if err != nil {
		return nil, err
	}

	var total int
	if !q.SkipTotal {
		if total, err = s.Count(ctx, q.Doctype, q.Filters); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, query.String(), query.Args()...)
	if err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	return &db.ListResult{Total: total, Rows: out}, nil
}

func (s *Store) buildListQuery(q *db.ListQuery) (*QueryBuilder, error) {
	table, err := s.table(q.Doctype)
	if err != nil {
		return nil, err
	}
	if err := validateIdentifiers(q.Fields...); err != nil {
		return nil, err
	}

	query := newQueryBuilder(s.dialect)
	query.WriteString("SELECT ")
	if len(q.Fields) == 0 {
		query.WriteString("*")
	}
	for i, f := range q.Fields {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteIdentifier(f)
	}
	query.WriteString(" FROM ")
	query.WriteIdentifier(table)
	if err := query.WriteWhere(q.Filters); err != nil {
		return nil, err
	}
	if q.Sort != nil {
		if err := validateIdentifiers(q.Sort.Field); err != nil {
			return nil, err
		}
		query.WriteString(" ORDER BY ")
		query.WriteIdentifier(q.Sort.Field)
		if q.Sort.Desc {
			query.WriteString(" DESC")
		} else {
			query.WriteString(" ASC")
		}
	}
	query.WriteString(" LIMIT ")
	query.WriteInt(q.Limit)
	query.WriteString(" OFFSET ")
	query.WriteInt(q.Offset)
	return query, nil
}

// Count returns the number of rows matching filters.
func (s *Store) Count(ctx context.Context, doctype string, filters filter.Expression) (int, error) {
	table, err := s.table(doctype)
	if err != nil {
		return 0, err
	}
	query := newQueryBuilder(s.dialect)
	query.WriteString("SELECT COUNT(*) FROM ")
	query.WriteIdentifier(table)
	if err := query.WriteWhere(filters); err != nil {
		return 0, err
	}

	var raw any
	if err := s.db.QueryRowContext(ctx, query.String(), query.Args()...).Scan(&raw); err != nil {
		return 0, &db.Error{Op: opSelect, Err: err}
	}
	n, _ := toFloat(raw)
	return int(n), nil
}

// Aggregate computes whole-set aggregates. Every aggregate is nil when no row matches.
func (s *Store) Aggregate(ctx context.Context, q *db.AggregateQuery) (aggregate.Result, error) {
	out := make(aggregate.Result, len(q.Aggregates))
	if len(q.Aggregates) == 0 {
		return out, nil
	}
	query, err := s.buildAggregateQuery(q)
	if err != nil {
		return nil, err
	}

	dest := make([]any, len(q.Aggregates)+1)
	ptrs := make([]any, len(dest))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := s.db.QueryRowContext(ctx, query.String(), query.Args()...).Scan(ptrs...); err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}

	for _, a := range q.Aggregates {
		out[a.Key()] = nil
	}
	if matched, ok := toFloat(dest[0]); !ok || matched == 0 {
		return out, nil
	}
	for i, a := range q.Aggregates {
		if v, ok := toFloat(dest[i+1]); ok {
			out[a.Key()] = &v
		}
	}
	return out, nil
}

func (s *Store) buildAggregateQuery(q *db.AggregateQuery) (*QueryBuilder, error) {
	table, err := s.table(q.Doctype)
	if err != nil {
		return nil, err
	}
	query := newQueryBuilder(s.dialect)
	query.WriteString("SELECT COUNT(*) AS " + matchedName)
	for _, a := range q.Aggregates {
		query.WriteString(", ")
		if err := writeAggregate(query, a.Function, a.Field); err != nil {
			return nil, err
		}
		query.WriteString(" AS ")
		query.WriteIdentifier(a.Key())
	}
	query.WriteString(" FROM ")
	query.WriteIdentifier(table)
	if err := query.WriteWhere(q.Filters); err != nil {
		return nil, err
	}
	return query, nil
}

// GroupBy returns the top buckets ordered by value descending then key ascending.
func (s *Store) GroupBy(ctx context.Context, q *db.GroupByQuery) ([]db.GroupRow, error) {
	query, err := s.buildGroupByQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query.String(), query.Args()...)
	if err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	defer rows.Close()

	var out []db.GroupRow
	for rows.Next() {
		var key, value any
		if err := rows.Scan(&key, &value); err != nil {
			return nil, &db.Error{Op: opSelect, Err: err}
		}
		k := toString(key)
		v, ok := toFloat(value)
		if k == "" || !ok {
			continue
		}
		out = append(out, db.GroupRow{Key: k, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	return out, nil
}

func (s *Store) buildGroupByQuery(q *db.GroupByQuery) (*QueryBuilder, error) {
	g := q.GroupBy
	if err := g.Validate(); err != nil {
		return nil, err
	}
	table, err := s.table(q.Doctype)
	if err != nil {
		return nil, err
	}
	if err := validateIdentifiers(g.GroupByField); err != nil {
		return nil, err
	}

	query := newQueryBuilder(s.dialect)
	query.WriteString("SELECT ")
	query.WriteIdentifier(g.GroupByField)
	query.WriteString(" AS group_key, ")
	if err := writeAggregate(query, g.AggregateFunction, g.AggregateField); err != nil {
		return nil, err
	}
	query.WriteString(" AS aggregate_value FROM ")
	query.WriteIdentifier(table)
	if err := query.WriteWhereNotNull(q.Filters, g.GroupByField); err != nil {
		return nil, err
	}
	query.WriteString(" GROUP BY ")
	query.WriteIdentifier(g.GroupByField)
	query.WriteString(" ORDER BY aggregate_value DESC, group_key ASC LIMIT ")
	query.WriteInt(g.Limit)
	return query, nil
}

// Facet counts rows per distinct value of a field.
func (s *Store) Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetRow, error) {
	query, err := s.buildFacetQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query.String(), query.Args()...)
	if err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	defer rows.Close()

	var out []db.FacetRow
	for rows.Next() {
		var value, count any
		if err := rows.Scan(&value, &count); err != nil {
			return nil, &db.Error{Op: opSelect, Err: err}
		}
		n, _ := toFloat(count)
		if v := toString(value); v != "" {
			out = append(out, db.FacetRow{Value: v, Count: int(n)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	return out, nil
}

func (s *Store) buildFacetQuery(q *db.FacetQuery) (*QueryBuilder, error) {
	table, err := s.table(q.Doctype)
	if err != nil {
		return nil, err
	}
	if err := validateIdentifiers(q.Field); err != nil {
		return nil, err
	}

	query := newQueryBuilder(s.dialect)
	query.WriteString("SELECT ")
	query.WriteIdentifier(q.Field)
	query.WriteString(" AS facet_value, COUNT(*) AS facet_count FROM ")
	query.WriteIdentifier(table)
	if err := query.WriteWhereNotNull(q.Filters, q.Field); err != nil {
		return nil, err
	}
	query.WriteString(" GROUP BY ")
	query.WriteIdentifier(q.Field)
	query.WriteString(" ORDER BY facet_count DESC, facet_value ASC")
	if q.Limit > 0 {
		query.WriteString(" LIMIT ")
		query.WriteInt(q.Limit)
	}
	return query, nil
}

func writeAggregate(query *QueryBuilder, fn aggregate.Function, field string) error {
	name, ok := sqlFunctions[fn]
	if !ok {
		return fmt.Errorf("unsupported aggregate function %s", fn)
	}
	if err := validateIdentifiers(field); err != nil {
		return err
	}
	query.WriteString(name + "(")
	query.WriteIdentifier(field)
	query.WriteString(")")
	return nil
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize converts driver values into strings, float64 and nil.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(filter.DateTimeLayout)
	case string, float64, bool:
		return x
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return toString(v)
}

// toFloat parses numeric driver values. Decimal strings go through shopspring/decimal.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case []byte:
		return parseDecimal(string(x))
	case string:
		return parseDecimal(x)
	case decimal.Decimal:
		return x.InexactFloat64(), true
	case fmt.Stringer:
		return parseDecimal(x.String())
	}
	return 0, false
}

func parseDecimal(s string) (float64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(filter.DateTimeLayout)
	}
	return fmt.Sprint(v)
}
