package memory

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

var timeLayouts = []string{filter.DateTimeLayout, "2006-01-02", time.RFC3339}

func matches(row map[string]any, expr filter.Expression) bool {
	for _, c := range expr.Must() {
		if !eval(row, c) {
			return false
		}
	}
	if should := expr.Should(); len(should) > 0 {
		hit := false
		for _, c := range should {
			if eval(row, c) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, c := range expr.MustNot() {
		if eval(row, c) {
			return false
		}
	}
	return true
}

func eval(row map[string]any, c filter.Condition) bool {
	v, ok := row[c.Key()]
	if !ok || v == nil {
		return false
	}

	switch c.Kind() {
	case filter.KindEq:
		return toString(v) == c.Match()
	case filter.KindIn:
		s := toString(v)
		for _, m := range c.Values() {
			if s == m {
				return true
			}
		}
		return false
	case filter.KindLike:
		return strings.Contains(strings.ToLower(toString(v)), strings.ToLower(strings.TrimSpace(c.Match())))
	case filter.KindRange:
		f, ok := toFloat(v)
		return ok && c.Range().Contains(f)
	case filter.KindDateRange:
		t, ok := toTime(v)
		return ok && c.Dates().Contains(t)
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// toTime reads civil dates, "YYYY-MM-DD HH:MM:SS" timestamps, RFC 3339 and unix seconds, all as UTC.
func toTime(v any) (time.Time, bool) {
	if f, ok := v.(float64); ok {
		return time.Unix(int64(f), 0).UTC(), true
	}
	s := toString(v)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// compare orders nil first, numbers numerically and everything else as strings.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(toString(a), toString(b))
}
