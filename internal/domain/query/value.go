package query

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates filter value variants.
type Kind string

// Filter value kinds.
const (
	KindExact     Kind = "eq"
	KindSet       Kind = "in"
	KindDateRange Kind = "dr"
	KindNumeric   Kind = "num"
)

// Op is a numeric comparison operator.
type Op string

// Numeric comparison operators.
const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// IsValid checks if the operator is supported.
func (o Op) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

// DateLayout is the civil-date layout of date range filter values.
const DateLayout = "2006-01-02"

// Value is a column filter value: exact match, set membership, date range or numeric comparison.
type Value struct {
	kind   Kind
	exact  string
	set    []string
	from   string
	to     string
	op     Op
	number float64
}

// Exact creates an exact-match value.
func Exact(s string) Value { return Value{kind: KindExact, exact: s} }

// Set creates a set-membership value. Members are sorted and deduplicated.
func Set(members ...string) Value {
	seen := make(map[string]bool, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	if len(out) == 0 {
		out = nil
	}
	return Value{kind: KindSet, set: out}
}

// DateRange creates an inclusive civil-date range. Either side may be empty (open).
func DateRange(from, to string) Value {
	return Value{kind: KindDateRange, from: strings.TrimSpace(from), to: strings.TrimSpace(to)}
}

// Numeric creates a numeric comparison value.
func Numeric(op Op, n float64) Value { return Value{kind: KindNumeric, op: op, number: n} }

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// ExactValue returns the exact-match string.
func (v Value) ExactValue() string { return v.exact }

// Members returns the set-membership values (sorted).
func (v Value) Members() []string { return v.set }

// From returns the date range start (YYYY-MM-DD or empty).
func (v Value) From() string { return v.from }

// To returns the date range end (YYYY-MM-DD or empty).
func (v Value) To() string { return v.to }

// Op returns the numeric operator.
func (v Value) Op() Op { return v.op }

// Number returns the numeric operand.
func (v Value) Number() float64 { return v.number }

// IsEmpty reports whether the value filters nothing.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindExact:
		return v.exact == ""
	case KindSet:
		return len(v.set) == 0
	case KindDateRange:
		return v.from == "" && v.to == ""
	case KindNumeric:
		return !v.op.IsValid()
	}
	return true
}

// Equal compares two values by content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindExact:
		return v.exact == o.exact
	case KindSet:
		if len(v.set) != len(o.set) {
			return false
		}
		for i := range v.set {
			if v.set[i] != o.set[i] {
				return false
			}
		}
		return true
	case KindDateRange:
		return v.from == o.from && v.to == o.to
	case KindNumeric:
		return v.op == o.op && v.number == o.number
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindExact:
		return fmt.Sprintf("= %q", v.exact)
	case KindSet:
		return fmt.Sprintf("in %q", v.set)
	case KindDateRange:
		return fmt.Sprintf("between %q and %q", v.from, v.to)
	case KindNumeric:
		return fmt.Sprintf("%s %g", v.op, v.number)
	}
	return "<invalid>"
}
