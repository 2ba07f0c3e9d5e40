package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// List performs a filtered, sorted, paginated listing via FT.SEARCH.
func (s *Store) List(ctx context.Context, q *db.ListQuery) (*db.ListResult, error) {
	if !db.IsValidIdentifier(q.Doctype) {
		return nil, db.ErrUnknownDoctype
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}

	args := []string{db.IndexName(q.Doctype), s.queryString(q.Doctype, q.Filters)}

	if len(q.Fields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.Fields)))
		args = append(args, q.Fields...)
	}

	if q.Sort != nil {
		dir := "ASC"
		if q.Sort.Desc {
			dir = "DESC"
		}
		args = append(args, "SORTBY", q.Sort.Field, dir)
	}

	args = append(args,
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, s.searchErr(db.OpSearch, err)
	}

	return parseListResult(raw)
}

// Count returns the number of documents matching filters via FT.SEARCH with LIMIT 0 0.
func (s *Store) Count(ctx context.Context, doctype string, filters filter.Expression) (int, error) {
	if !db.IsValidIdentifier(doctype) {
		return 0, db.ErrUnknownDoctype
	}
	cmd := s.b().Arbitrary("FT.SEARCH").
		Args(db.IndexName(doctype), s.queryString(doctype, filters), "LIMIT", "0", "0", "DIALECT", "2").
		Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, s.searchErr(db.OpSearch, err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

func (s *Store) searchErr(op string, err error) error {
	if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
		return db.ErrUnknownDoctype
	}
	return &db.Error{Op: op, Err: err}
}

// --- Result parsing ---

func parseListResult(raw []rueidis.RedisMessage) (*db.ListResult, error) {
	if len(raw) == 0 {
		return &db.ListResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.ListResult{}, nil
	}

	rows := make([]map[string]any, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		if _, err := raw[i].ToString(); err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		pairs := parseFieldPairs(fields)
		row := make(map[string]any, len(pairs))
		for k, v := range pairs {
			row[k] = v
		}
		rows = append(rows, row)
	}

	return &db.ListResult{Total: int(total), Rows: rows}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
