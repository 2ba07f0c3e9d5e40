package redis

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// isTagFunc reports whether a field is indexed as TAG. Nil means no TAG fields are known.
type isTagFunc func(field string) bool

// queryString returns the FT query for expr, "*" when it has no conditions.
func queryString(expr filter.Expression, isTag isTagFunc) string {
	if f := buildFilter(expr, isTag); f != "" {
		return f
	}
	return "*"
}

// buildFilter translates filter.Expression into an FT query string.
func buildFilter(expr filter.Expression, isTag isTagFunc) string {
	if expr.IsEmpty() {
		return ""
	}

	var parts []string

	for _, cond := range expr.Must() {
		parts = append(parts, buildCondition(cond, isTag))
	}

	if shouldParts := buildShouldGroup(expr.Should(), isTag); shouldParts != "" {
		parts = append(parts, shouldParts)
	}

	for _, cond := range expr.MustNot() {
		parts = append(parts, "-"+buildCondition(cond, isTag))
	}

	return strings.Join(parts, " ")
}

func buildCondition(cond filter.Condition, isTag isTagFunc) string {
	switch cond.Kind() {
	case filter.KindEq:
		return buildTagFilter(cond.Key(), cond.Match())
	case filter.KindIn:
		return buildTagSetFilter(cond.Key(), cond.Values())
	case filter.KindLike:
		return buildLikeFilter(cond.Key(), cond.Match(), isTag != nil && isTag(cond.Key()))
	case filter.KindRange:
		return buildNumericFilter(cond.Key(), *cond.Range())
	case filter.KindDateRange:
		return buildDateFilter(cond.Key(), *cond.Dates())
	}
	return ""
}

func buildShouldGroup(conditions []filter.Condition, isTag isTagFunc) string {
	if len(conditions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		parts = append(parts, buildCondition(cond, isTag))
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

func buildTagFilter(key, value string) string {
	escaped := tagEscaper.Replace(value)
	return fmt.Sprintf("@%s:{%s}", key, escaped)
}

func buildTagSetFilter(key string, values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", key, strings.Join(escaped, " | "))
}

// buildLikeFilter matches the term as an infix (case-insensitive): tag wildcard for TAG
// fields, infix text query otherwise.
func buildLikeFilter(key, term string, tag bool) string {
	escaped := tagEscaper.Replace(strings.ToLower(strings.TrimSpace(term)))
	if tag {
		return fmt.Sprintf("@%s:{*%s*}", key, escaped)
	}
	return fmt.Sprintf("@%s:(*%s*)", key, escaped)
}

func buildNumericFilter(key string, r filter.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.GT() != nil {
		minBound = fmt.Sprintf("(%g", *r.GT())
	} else if r.GTE() != nil {
		minBound = fmt.Sprintf("%g", *r.GTE())
	}

	if r.LT() != nil {
		maxBound = fmt.Sprintf("(%g", *r.LT())
	} else if r.LTE() != nil {
		maxBound = fmt.Sprintf("%g", *r.LTE())
	}

	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

// buildDateFilter matches dates stored as NUMERIC unix seconds.
func buildDateFilter(key string, b filter.DateBounds) string {
	minBound := "-inf"
	maxBound := "+inf"
	if b.From() != nil {
		minBound = unixSeconds(*b.From())
	}
	if b.To() != nil {
		maxBound = unixSeconds(*b.To())
	}
	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

func unixSeconds(t time.Time) string {
	return fmt.Sprintf("%d", t.Unix())
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)
