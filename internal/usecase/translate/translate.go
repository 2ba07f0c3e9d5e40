// Package translate turns a table's query state into backend-neutral filter expressions.
package translate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/tablekit/internal/domain"
	"github.com/kailas-cloud/tablekit/internal/domain/doctype/field"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
	"github.com/kailas-cloud/tablekit/internal/domain/query"
)

// Schema resolves a column to its field definition. doctype.Doctype implements it.
type Schema interface {
	FieldByName(name string) (field.Field, bool)
}

// Options describes the table a state belongs to.
type Options struct {
	// Schema checks each filter against its column type; nil accepts every filter as given.
	Schema Schema
	// SearchFields are the columns a search term is matched against.
	SearchFields []string
	// DateColumns are filtered by whole days.
	DateColumns []string
	// Static conditions are always AND-ed and never part of the state.
	Static []filter.Condition
	// ExcludeColumn drops the state filter on one column (facet self-exclusion).
	ExcludeColumn string
}

// Params is the server-side form of a query state.
type Params struct {
	Filters filter.Expression
	Sort    *query.Sort
}

// Key returns a canonical value key.
func (p Params) Key() string {
	k := p.Filters.Key()
	if p.Sort != nil {
		k += "sort(" + p.Sort.Field + ":" + string(p.Sort.Direction) + ")"
	}
	return k
}

// Warning reports a state filter that could not be translated and was dropped.
type Warning struct {
	ColumnID string
	Err      error
}

func (w Warning) Error() string { return w.ColumnID + ": " + w.Err.Error() }

func (w Warning) Unwrap() error { return w.Err }

func warn(columnID, format string, args ...any) Warning {
	return Warning{ColumnID: columnID, Err: fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))}
}

// ToServerParams translates st into filters and sort. Invalid filters are dropped with a warning;
// the remaining filters are still returned.
func ToServerParams(st query.State, opts Options) (Params, []Warning) {
	must := slices.Clone(opts.Static)
	var should, mustNot []filter.Condition
	var warnings []Warning

	if term := strings.TrimSpace(st.SearchTerm); term != "" {
		if st.SearchField != "" {
			if c, err := filter.NewLike(st.SearchField, term); err == nil {
				must = append(must, c)
			}
		} else {
			for _, f := range opts.SearchFields {
				if c, err := filter.NewLike(f, term); err == nil {
					should = append(should, c)
				}
			}
		}
	}

	for _, cf := range st.Filters {
		if cf.ColumnID == opts.ExcludeColumn || cf.Value.IsEmpty() {
			continue
		}
		var (
			cond   filter.Condition
			negate bool
			w      *Warning
		)
		if opts.Schema != nil {
			f, ok := opts.Schema.FieldByName(cf.ColumnID)
			if !ok {
				warnings = append(warnings, warn(cf.ColumnID, "unknown column"))
				continue
			}
			cond, negate, w = translateTyped(cf, f.FieldType())
		} else {
			cond, negate, w = translateFilter(cf, slices.Contains(opts.DateColumns, cf.ColumnID))
		}
		if w != nil {
			warnings = append(warnings, *w)
			continue
		}
		if negate {
			mustNot = append(mustNot, cond)
		} else {
			must = append(must, cond)
		}
	}

	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		warnings = append(warnings, Warning{ColumnID: "", Err: fmt.Errorf("%w: %w", domain.ErrValidation, err)})
		expr, _ = filter.NewExpression(opts.Static, nil, nil)
	}

	var srt *query.Sort
	if st.Sort != nil && st.Sort.Field != "" {
		s := *st.Sort
		if !s.Direction.IsValid() {
			s.Direction = query.Asc
		}
		srt = &s
	}
	return Params{Filters: expr, Sort: srt}, warnings
}

// translateFilter returns the condition, whether it belongs to must_not, or a warning.
func translateFilter(cf query.ColumnFilter, isDate bool) (filter.Condition, bool, *Warning) {
	v := cf.Value
	switch v.Kind() {
	case query.KindExact:
		if isDate {
			return dayRange(cf.ColumnID, v.ExactValue(), v.ExactValue())
		}
		c, err := filter.NewMatch(cf.ColumnID, v.ExactValue())
		return wrap(cf.ColumnID, c, false, err)
	case query.KindSet:
		c, err := filter.NewIn(cf.ColumnID, v.Members())
		return wrap(cf.ColumnID, c, false, err)
	case query.KindDateRange:
		return dayRange(cf.ColumnID, v.From(), v.To())
	case query.KindNumeric:
		return numeric(cf.ColumnID, v.Op(), v.Number())
	}
	w := warn(cf.ColumnID, "unsupported filter kind %q", v.Kind())
	return filter.Condition{}, false, &w
}

// translateTyped translates cf for a column of type ft. Kinds the column cannot
// hold are dropped; an exact number on a numeric column becomes an equality range.
func translateTyped(cf query.ColumnFilter, ft field.Type) (filter.Condition, bool, *Warning) {
	v := cf.Value
	switch {
	case ft == field.Date:
		if v.Kind() == query.KindExact || v.Kind() == query.KindDateRange {
			return translateFilter(cf, true)
		}
	case ft == field.Numeric:
		switch v.Kind() {
		case query.KindNumeric:
			return translateFilter(cf, false)
		case query.KindExact:
			n, err := strconv.ParseFloat(strings.TrimSpace(v.ExactValue()), 64)
			if err != nil {
				w := warn(cf.ColumnID, "%q is not a number", v.ExactValue())
				return filter.Condition{}, false, &w
			}
			return numeric(cf.ColumnID, query.OpEq, n)
		}
	case v.Kind() == query.KindExact || v.Kind() == query.KindSet:
		return translateFilter(cf, false)
	}
	w := warn(cf.ColumnID, "%s filter on %s column", v.Kind(), ft)
	return filter.Condition{}, false, &w
}

func wrap(columnID string, c filter.Condition, negate bool, err error) (filter.Condition, bool, *Warning) {
	if err != nil {
		w := Warning{ColumnID: columnID, Err: fmt.Errorf("%w: %w", domain.ErrValidation, err)}
		return filter.Condition{}, false, &w
	}
	return c, negate, nil
}

// dayRange covers whole days: from 00:00:00 through to 23:59:59.
func dayRange(columnID, from, to string) (filter.Condition, bool, *Warning) {
	var fromT, toT *time.Time
	if from != "" {
		t, err := time.ParseInLocation(query.DateLayout, from, time.UTC)
		if err != nil {
			w := warn(columnID, "invalid start date %q", from)
			return filter.Condition{}, false, &w
		}
		fromT = &t
	}
	if to != "" {
		t, err := time.ParseInLocation(query.DateLayout, to, time.UTC)
		if err != nil {
			w := warn(columnID, "invalid end date %q", to)
			return filter.Condition{}, false, &w
		}
		end := t.Add(24*time.Hour - time.Second)
		toT = &end
	}
	if fromT != nil && toT != nil && fromT.After(*toT) {
		w := warn(columnID, "date range start %s is after end %s", from, to)
		return filter.Condition{}, false, &w
	}
	b, err := filter.NewDateBounds(fromT, toT)
	if err != nil {
		return wrap(columnID, filter.Condition{}, false, err)
	}
	c, err := filter.NewDateRange(columnID, b)
	return wrap(columnID, c, false, err)
}

// numeric maps a comparison to a range; ne is a negated equality range.
func numeric(columnID string, op query.Op, n float64) (filter.Condition, bool, *Warning) {
	var gt, gte, lt, lte *float64
	negate := false
	switch op {
	case query.OpEq:
		gte, lte = &n, &n
	case query.OpNe:
		gte, lte = &n, &n
		negate = true
	case query.OpGt:
		gt = &n
	case query.OpGte:
		gte = &n
	case query.OpLt:
		lt = &n
	case query.OpLte:
		lte = &n
	default:
		w := warn(columnID, "unsupported operator %q", op)
		return filter.Condition{}, false, &w
	}
	r, err := filter.NewRangeFilter(gt, gte, lt, lte)
	if err != nil {
		return wrap(columnID, filter.Condition{}, false, err)
	}
	c, err := filter.NewRange(columnID, r)
	return wrap(columnID, c, negate, err)
}
