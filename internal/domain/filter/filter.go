package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 64

// DateTimeLayout is the wire layout of date range boundaries.
const DateTimeLayout = "2006-01-02 15:04:05"

// Expression is a structured filter with must/should/must_not boolean semantics.
// Must conditions are AND-ed, should conditions form one OR group, must_not conditions are negated.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// Without returns a copy of the expression with every condition on key removed.
func (e Expression) Without(key string) Expression {
	return Expression{
		must:    dropKey(e.must, key),
		should:  e.should,
		mustNot: dropKey(e.mustNot, key),
	}
}

func dropKey(conds []Condition, key string) []Condition {
	var out []Condition
	for _, c := range conds {
		if c.key != key {
			out = append(out, c)
		}
	}
	return out
}

// Key returns a canonical, order-independent representation.
// Two expressions with the same conditions in any order have the same key.
func (e Expression) Key() string {
	return "must(" + groupKey(e.must) + ")should(" + groupKey(e.should) + ")not(" + groupKey(e.mustNot) + ")"
}

func groupKey(conds []Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// Kind discriminates condition variants.
type Kind uint8

// Condition kinds.
const (
	KindEq Kind = iota + 1
	KindIn
	KindLike
	KindRange
	KindDateRange
)

// Condition is a single filter clause on one field.
type Condition struct {
	key       string
	kind      Kind
	match     string
	values    []string
	rangeExpr *Range
	dates     *DateBounds
}

// NewMatch creates an exact match condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, kind: KindEq, match: match}, nil
}

// NewIn creates a set-membership condition. Values are sorted and deduplicated.
func NewIn(key string, values []string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	set := normalizeSet(values)
	if len(set) == 0 {
		return Condition{}, fmt.Errorf("at least one value is required for key %q", key)
	}
	return Condition{key: key, kind: KindIn, values: set}, nil
}

// NewLike creates a case-insensitive substring condition.
func NewLike(key, substring string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if strings.TrimSpace(substring) == "" {
		return Condition{}, fmt.Errorf("search value is required for key %q", key)
	}
	return Condition{key: key, kind: KindLike, match: substring}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, kind: KindRange, rangeExpr: &r}, nil
}

// NewDateRange creates an inclusive timestamp range condition.
func NewDateRange(key string, b DateBounds) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if b.from == nil && b.to == nil {
		return Condition{}, fmt.Errorf("at least one date boundary is required for key %q", key)
	}
	return Condition{key: key, kind: KindDateRange, dates: &b}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Kind returns the condition variant.
func (c Condition) Kind() Kind { return c.kind }

// Match returns the exact match or LIKE value.
func (c Condition) Match() string { return c.match }

// Values returns the set-membership values.
func (c Condition) Values() []string { return c.values }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// Dates returns the date range boundaries.
func (c Condition) Dates() *DateBounds { return c.dates }

// IsMatch reports whether this is an exact match condition.
func (c Condition) IsMatch() bool { return c.kind == KindEq }

// IsRange reports whether this is a numeric range condition.
func (c Condition) IsRange() bool { return c.kind == KindRange }

// String renders the condition canonically.
func (c Condition) String() string {
	switch c.kind {
	case KindEq:
		return c.key + "=" + strconv.Quote(c.match)
	case KindIn:
		quoted := make([]string, len(c.values))
		for i, v := range c.values {
			quoted[i] = strconv.Quote(v)
		}
		return c.key + " in [" + strings.Join(quoted, ",") + "]"
	case KindLike:
		return c.key + " like " + strconv.Quote(c.match)
	case KindRange:
		return c.key + " " + c.rangeExpr.String()
	case KindDateRange:
		return c.key + " " + c.dates.String()
	}
	return c.key + " ?"
}

func normalizeSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v satisfies every boundary.
func (r Range) Contains(v float64) bool {
	if r.gt != nil && v <= *r.gt {
		return false
	}
	if r.gte != nil && v < *r.gte {
		return false
	}
	if r.lt != nil && v >= *r.lt {
		return false
	}
	if r.lte != nil && v > *r.lte {
		return false
	}
	return true
}

func (r Range) String() string {
	var parts []string
	add := func(op string, v *float64) {
		if v != nil {
			parts = append(parts, op+strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	add(">", r.gt)
	add(">=", r.gte)
	add("<", r.lt)
	add("<=", r.lte)
	return strings.Join(parts, " ")
}

// DateBounds is an inclusive timestamp range. A nil side is open.
type DateBounds struct {
	from *time.Time
	to   *time.Time
}

// NewDateBounds creates bounds. from must not be after to.
func NewDateBounds(from, to *time.Time) (DateBounds, error) {
	if from != nil && to != nil && from.After(*to) {
		return DateBounds{}, fmt.Errorf("date range start %s is after end %s",
			from.Format(DateTimeLayout), to.Format(DateTimeLayout))
	}
	return DateBounds{from: from, to: to}, nil
}

// From returns the inclusive lower bound.
func (b DateBounds) From() *time.Time { return b.from }

// To returns the inclusive upper bound.
func (b DateBounds) To() *time.Time { return b.to }

// Contains reports whether t lies within the bounds.
func (b DateBounds) Contains(t time.Time) bool {
	if b.from != nil && t.Before(*b.from) {
		return false
	}
	if b.to != nil && t.After(*b.to) {
		return false
	}
	return true
}

func (b DateBounds) String() string {
	var parts []string
	if b.from != nil {
		parts = append(parts, ">="+b.from.Format(DateTimeLayout))
	}
	if b.to != nil {
		parts = append(parts, "<="+b.to.Format(DateTimeLayout))
	}
	return strings.Join(parts, " ")
}
