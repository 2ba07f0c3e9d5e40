package sqldb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// QueryBuilder accumulates SQL text and bind arguments for one dialect.
type QueryBuilder struct {
	strings.Builder
	dialect Dialect
	args    []any
}

func newQueryBuilder(d Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: d}
}

// Args returns the bind arguments in placeholder order.
func (b *QueryBuilder) Args() []any { return b.args }

// WriteInt writes an integer literal.
func (b *QueryBuilder) WriteInt(i int) {
	b.WriteString(strconv.Itoa(i))
}

// WriteIdentifier writes a quoted identifier. Must only be called after validateIdentifiers.
func (b *QueryBuilder) WriteIdentifier(identifier string) {
	b.WriteString(b.dialect.quote(identifier))
}

// WriteArg binds v and writes its placeholder.
func (b *QueryBuilder) WriteArg(v any) {
	b.args = append(b.args, v)
	b.WriteString(b.dialect.placeholder(len(b.args)))
}

// WriteWhere writes " WHERE ..." for a non-empty expression.
func (b *QueryBuilder) WriteWhere(expr filter.Expression) error {
	if expr.IsEmpty() {
		return nil
	}
	b.WriteString(" WHERE ")
	return b.writeExpression(expr)
}

// WriteWhereNotNull writes a WHERE clause that also drops rows where column is NULL,
// so a missing value never takes a bucket of a limited GROUP BY.
func (b *QueryBuilder) WriteWhereNotNull(expr filter.Expression, column string) error {
	b.WriteString(" WHERE ")
	b.WriteIdentifier(column)
	b.WriteString(" IS NOT NULL")
	if expr.IsEmpty() {
		return nil
	}
	b.WriteString(" AND ")
	return b.writeExpression(expr)
}

func (b *QueryBuilder) writeExpression(expr filter.Expression) error {
	first := true
	and := func() {
		if !first {
			b.WriteString(" AND ")
		}
		first = false
	}

	for _, cond := range expr.Must() {
		and()
		if err := b.writeCondition(cond); err != nil {
			return err
		}
	}

	if should := expr.Should(); len(should) > 0 {
		and()
		b.WriteString("(")
		for i, cond := range should {
			if i > 0 {
				b.WriteString(" OR ")
			}
			if err := b.writeCondition(cond); err != nil {
				return err
			}
		}
		b.WriteString(")")
	}

	for _, cond := range expr.MustNot() {
		and()
		b.WriteString("NOT (")
		if err := b.writeCondition(cond); err != nil {
			return err
		}
		b.WriteString(")")
	}
	return nil
}

func (b *QueryBuilder) writeCondition(cond filter.Condition) error {
	if err := validateIdentifiers(cond.Key()); err != nil {
		return err
	}

	switch cond.Kind() {
	case filter.KindEq:
		b.WriteIdentifier(cond.Key())
		b.WriteString(" = ")
		b.WriteArg(cond.Match())

	case filter.KindIn:
		b.WriteIdentifier(cond.Key())
		b.WriteString(" IN (")
		for i, v := range cond.Values() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteArg(v)
		}
		b.WriteString(")")

	case filter.KindLike:
		b.WriteIdentifier(cond.Key())
		b.WriteString(" " + b.dialect.likeOp + " ")
		b.WriteArg(containsPattern(cond.Match()))
		b.WriteString(b.dialect.likeSuffix)

	case filter.KindRange:
		b.writeBounds(cond.Key(), rangeBounds(*cond.Range()))

	case filter.KindDateRange:
		d := *cond.Dates()
		var bounds []bound
		if d.From() != nil {
			bounds = append(bounds, bound{op: ">=", value: d.From().Format(filter.DateTimeLayout)})
		}
		if d.To() != nil {
			bounds = append(bounds, bound{op: "<=", value: d.To().Format(filter.DateTimeLayout)})
		}
		b.writeBounds(cond.Key(), bounds)

	default:
		return fmt.Errorf("unsupported condition on %q", cond.Key())
	}
	return nil
}

type bound struct {
	op    string
	value any
}

func rangeBounds(r filter.Range) []bound {
	var out []bound
	if r.GT() != nil {
		out = append(out, bound{op: ">", value: *r.GT()})
	}
	if r.GTE() != nil {
		out = append(out, bound{op: ">=", value: *r.GTE()})
	}
	if r.LT() != nil {
		out = append(out, bound{op: "<", value: *r.LT()})
	}
	if r.LTE() != nil {
		out = append(out, bound{op: "<=", value: *r.LTE()})
	}
	return out
}

func (b *QueryBuilder) writeBounds(column string, bounds []bound) {
	b.WriteString("(")
	for i, bd := range bounds {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteIdentifier(column)
		b.WriteString(" " + bd.op + " ")
		b.WriteArg(bd.value)
	}
	b.WriteString(")")
}

func validateIdentifiers(identifiers ...string) error {
	for _, id := range identifiers {
		if !db.IsValidFieldName(id) {
			return fmt.Errorf("%w: %q", db.ErrInvalidFieldName, id)
		}
	}
	return nil
}
