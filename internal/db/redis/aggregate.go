package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/aggregate"
)

const (
	matchedAlias = "__matched"
	valueAlias   = "__value"
	countAlias   = "__count"
)

var reducers = map[aggregate.Function]string{
	aggregate.Sum:   "SUM",
	aggregate.Avg:   "AVG",
	aggregate.Min:   "MIN",
	aggregate.Max:   "MAX",
	aggregate.Count: "COUNT",
}

// Aggregate computes whole-set aggregates via FT.AGGREGATE ... GROUPBY 0.
// Every aggregate is nil when no document matches.
func (s *Store) Aggregate(ctx context.Context, q *db.AggregateQuery) (aggregate.Result, error) {
	if !db.IsValidIdentifier(q.Doctype) {
		return nil, db.ErrUnknownDoctype
	}
	out := make(aggregate.Result, len(q.Aggregates))
	if len(q.Aggregates) == 0 {
		return out, nil
	}

	args := []string{db.IndexName(q.Doctype), s.queryString(q.Doctype, q.Filters), "GROUPBY", "0"}
	for _, a := range q.Aggregates {
		r, err := reducerArgs(a.Function, a.Field, a.Key())
		if err != nil {
			return nil, err
		}
		args = append(args, r...)
	}
	args = append(args, "REDUCE", "COUNT", "0", "AS", matchedAlias, "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, s.searchErr(db.OpAggregate, err)
	}

	rows := parseAggregateRows(raw)
	for _, a := range q.Aggregates {
		out[a.Key()] = nil
	}
	if len(rows) == 0 {
		return out, nil
	}
	if n, err := strconv.ParseFloat(rows[0][matchedAlias], 64); err != nil || n == 0 {
		return out, nil
	}
	for _, a := range q.Aggregates {
		if v, err := strconv.ParseFloat(rows[0][a.Key()], 64); err == nil {
			out[a.Key()] = &v
		}
	}
	return out, nil
}

// GroupBy computes the top buckets of one aggregate via FT.AGGREGATE ... GROUPBY 1.
func (s *Store) GroupBy(ctx context.Context, q *db.GroupByQuery) ([]db.GroupRow, error) {
	if !db.IsValidIdentifier(q.Doctype) {
		return nil, db.ErrUnknownDoctype
	}
	g := q.GroupBy
	if err := g.Validate(); err != nil {
		return nil, err
	}

	r, err := reducerArgs(g.AggregateFunction, g.AggregateField, valueAlias)
	if err != nil {
		return nil, err
	}
	args := []string{db.IndexName(q.Doctype), s.queryString(q.Doctype, q.Filters), "GROUPBY", "1", "@" + g.GroupByField}
	args = append(args, r...)
	args = append(args,
		"SORTBY", "4", "@"+valueAlias, "DESC", "@"+g.GroupByField, "ASC",
		"MAX", strconv.Itoa(g.Limit+1),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, s.searchErr(db.OpAggregate, err)
	}

	// Documents missing the field share one empty bucket; MAX asks for one
	// extra row so that bucket never costs a real group its slot.
	var out []db.GroupRow
	for _, row := range parseAggregateRows(raw) {
		key := row[g.GroupByField]
		v, err := strconv.ParseFloat(row[valueAlias], 64)
		if key == "" || err != nil {
			continue
		}
		out = append(out, db.GroupRow{Key: key, Value: v})
	}
	if len(out) > g.Limit {
		out = out[:g.Limit]
	}
	return out, nil
}

// Facet counts documents per distinct field value via FT.AGGREGATE ... REDUCE COUNT.
func (s *Store) Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetRow, error) {
	if !db.IsValidIdentifier(q.Doctype) {
		return nil, db.ErrUnknownDoctype
	}
	if !db.IsValidFieldName(q.Field) {
		return nil, db.ErrInvalidFieldName
	}

	args := []string{
		db.IndexName(q.Doctype), s.queryString(q.Doctype, q.Filters),
		"GROUPBY", "1", "@" + q.Field,
		"REDUCE", "COUNT", "0", "AS", countAlias,
		"SORTBY", "4", "@" + countAlias, "DESC", "@" + q.Field, "ASC",
	}
	if q.Limit > 0 {
		args = append(args, "MAX", strconv.Itoa(q.Limit+1))
	}
	args = append(args, "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, s.searchErr(db.OpAggregate, err)
	}

	var out []db.FacetRow
	for _, row := range parseAggregateRows(raw) {
		value := row[q.Field]
		n, err := strconv.Atoi(row[countAlias])
		if value == "" || err != nil {
			continue
		}
		out = append(out, db.FacetRow{Value: value, Count: n})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func reducerArgs(fn aggregate.Function, field, alias string) ([]string, error) {
	name, ok := reducers[fn]
	if !ok {
		return nil, fmt.Errorf("unsupported aggregate function %s", fn)
	}
	if !db.IsValidFieldName(field) {
		return nil, db.ErrInvalidFieldName
	}
	if fn == aggregate.Count {
		return []string{"REDUCE", name, "0", "AS", alias}, nil
	}
	return []string{"REDUCE", name, "1", "@" + field, "AS", alias}, nil
}

// parseAggregateRows reads the RESP2 FT.AGGREGATE reply [n, [k, v, ...], [k, v, ...], ...].
func parseAggregateRows(raw []rueidis.RedisMessage) []map[string]string {
	if len(raw) < 2 {
		return nil
	}
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, msg := range raw[1:] {
		fields, err := msg.ToArray()
		if err != nil {
			continue
		}
		rows = append(rows, parseFieldPairs(fields))
	}
	return rows
}
