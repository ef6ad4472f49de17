package relq

import (
	"fmt"
	"strings"
	"time"
)

// ColRef is a fully-qualified column reference: a table alias from the
// query's join map plus a column name.
type ColRef struct {
	Alias  string
	Column string
}

// SQL renders the reference with dialect quoting.
func (c ColRef) SQL(d Dialect) string {
	return d.QuoteName(c.Alias) + "." + d.QuoteName(c.Column)
}

// ResolveOptions controls how an expression binds to a query's join graph.
type ResolveOptions struct {
	// AllowJoins permits field paths that cross relations. When false,
	// any multi-segment path fails with ErrJoinedFieldDisallowed.
	AllowJoins bool

	// PromoteJoins marks every join the expression requires for promotion
	// to LEFT OUTER, so the expression cannot silently exclude rows with
	// no matching related row.
	PromoteJoins bool
}

// Expression is a declarative scalar expression: a field reference, a
// literal, or an arithmetic combination of expressions. Expressions are
// immutable; resolving one against a query never mutates it.
type Expression interface {
	Resolve(q *Query, opts ResolveOptions) (ResolvedExpression, error)
}

// ResolvedExpression is an expression bound to a specific query's join
// context. Compile renders it to a SQL fragment with `?` placeholders and
// the bind values in placeholder order.
type ResolvedExpression interface {
	Compile(d Dialect) (sql string, params []any, err error)

	// Columns lists every column reference the fragment renders.
	Columns() []ColRef

	// Joins lists the join aliases resolution required, in creation order.
	Joins() []string

	// OutputType is the SQL type the fragment yields, for output-type
	// inference; empty when unknown.
	OutputType() string

	// ContainsAggregate reports whether the fragment is built over an
	// aggregate function.
	ContainsAggregate() bool

	// relabeled returns a copy with column-reference aliases rewritten
	// through change. Used when a query is pushed down into a subquery.
	relabeled(change map[string]string) ResolvedExpression
}

// FieldRef is a reference to a column by dotted field path, e.g.
// "related.amount".
type FieldRef struct {
	path string
}

// F creates a field reference expression.
func F(path string) FieldRef {
	return FieldRef{path: path}
}

// Resolve binds the field path against the query's schema and join graph.
func (f FieldRef) Resolve(q *Query, opts ResolveOptions) (ResolvedExpression, error) {
	parts := strings.Split(f.path, ".")
	for _, part := range parts {
		if !isValidIdentifier(part) {
			return nil, fmt.Errorf("invalid field path %q", f.path)
		}
	}
	if len(parts) > 1 && !opts.AllowJoins {
		return nil, fmt.Errorf("%w: %s", ErrJoinedFieldDisallowed, f.path)
	}

	// A bare annotation alias resolves to the aggregate itself.
	if len(parts) == 1 {
		if ra, ok := q.aggregates[parts[0]]; ok {
			return ra, nil
		}
	}

	col, typ, joins, err := q.setupJoins(parts, opts.PromoteJoins)
	if err != nil {
		return nil, err
	}
	return &resolvedCol{ref: col, typ: typ, joins: joins}, nil
}

// ValueExpr is a literal operand inside a composite expression. The value
// is always emitted as a bind parameter, never inlined.
type ValueExpr struct {
	v any
}

// Value creates a literal expression.
func Value(v any) ValueExpr {
	return ValueExpr{v: v}
}

// Resolve returns the literal unchanged; literals need no join context.
func (v ValueExpr) Resolve(_ *Query, _ ResolveOptions) (ResolvedExpression, error) {
	return &resolvedValue{v: v.v}, nil
}

// CombinedExpr is an arithmetic combination of two expressions.
type CombinedExpr struct {
	lhs, rhs Expression
	op       string
}

// Combine creates an arithmetic expression with an explicit operator.
func Combine(lhs Expression, op string, rhs Expression) CombinedExpr {
	switch op {
	case "+", "-", "*", "/":
	default:
		panic(fmt.Errorf("unsupported arithmetic operator %q", op))
	}
	return CombinedExpr{lhs: lhs, op: op, rhs: rhs}
}

// Add creates lhs + rhs.
func Add(lhs, rhs Expression) CombinedExpr { return Combine(lhs, "+", rhs) }

// Sub creates lhs - rhs.
func Sub(lhs, rhs Expression) CombinedExpr { return Combine(lhs, "-", rhs) }

// Mul creates lhs * rhs.
func Mul(lhs, rhs Expression) CombinedExpr { return Combine(lhs, "*", rhs) }

// Div creates lhs / rhs.
func Div(lhs, rhs Expression) CombinedExpr { return Combine(lhs, "/", rhs) }

// Resolve resolves both operands in order against the same query.
func (c CombinedExpr) Resolve(q *Query, opts ResolveOptions) (ResolvedExpression, error) {
	lhs, err := c.lhs.Resolve(q, opts)
	if err != nil {
		return nil, err
	}
	rhs, err := c.rhs.Resolve(q, opts)
	if err != nil {
		return nil, err
	}
	return &resolvedCombined{lhs: lhs, op: c.op, rhs: rhs}, nil
}

// resolvedCol is a field reference bound to a join alias.
type resolvedCol struct {
	ref   ColRef
	typ   string
	joins []string
}

func (r *resolvedCol) Compile(d Dialect) (string, []any, error) {
	return r.ref.SQL(d), nil, nil
}

func (r *resolvedCol) Columns() []ColRef       { return []ColRef{r.ref} }
func (r *resolvedCol) Joins() []string         { return r.joins }
func (r *resolvedCol) OutputType() string      { return r.typ }
func (r *resolvedCol) ContainsAggregate() bool { return false }

func (r *resolvedCol) relabeled(change map[string]string) ResolvedExpression {
	out := *r
	if alias, ok := change[r.ref.Alias]; ok {
		out.ref = ColRef{Alias: alias, Column: r.ref.Column}
	}
	return &out
}

// resolvedValue is a bound literal.
type resolvedValue struct {
	v any
}

func (r *resolvedValue) Compile(_ Dialect) (string, []any, error) {
	return "?", []any{r.v}, nil
}

func (r *resolvedValue) Columns() []ColRef       { return nil }
func (r *resolvedValue) Joins() []string         { return nil }
func (r *resolvedValue) OutputType() string      { return "" }
func (r *resolvedValue) ContainsAggregate() bool { return false }

func (r *resolvedValue) relabeled(_ map[string]string) ResolvedExpression { return r }

// resolvedCombined is a bound arithmetic combination.
type resolvedCombined struct {
	lhs, rhs ResolvedExpression
	op       string
}

func (r *resolvedCombined) Compile(d Dialect) (string, []any, error) {
	// Temporal +/- duration routes through the dialect's interval builder.
	if r.op == "+" || r.op == "-" {
		if sql, params, ok, err := r.compileDateArith(d); ok || err != nil {
			return sql, params, err
		}
	}

	lhsSQL, lhsParams, err := r.lhs.Compile(d)
	if err != nil {
		return "", nil, err
	}
	rhsSQL, rhsParams, err := r.rhs.Compile(d)
	if err != nil {
		return "", nil, err
	}

	sql := "(" + lhsSQL + " " + r.op + " " + rhsSQL + ")"
	params := append(append([]any{}, lhsParams...), rhsParams...)
	return sql, params, nil
}

// compileDateArith handles <temporal> +/- <duration literal>. The reversed
// form <duration> + <temporal> is normalized; <duration> - <temporal> is
// not a thing any dialect can express and falls through to plain rendering.
func (r *resolvedCombined) compileDateArith(d Dialect) (string, []any, bool, error) {
	temporal, dur := r.lhs, r.rhs
	if durationValue(temporal) != nil && r.op == "+" {
		temporal, dur = dur, temporal
	}
	dv := durationValue(dur)
	if dv == nil || !isTemporalType(temporal.OutputType()) {
		return "", nil, false, nil
	}

	lhsSQL, lhsParams, err := temporal.Compile(d)
	if err != nil {
		return "", nil, true, err
	}
	subtract := r.op == "-"
	sql := d.DateArithSQL(lhsSQL, "?", subtract)
	params := append(append([]any{}, lhsParams...), d.DateArithParam(*dv, subtract))
	return sql, params, true, nil
}

func (r *resolvedCombined) Columns() []ColRef {
	return append(append([]ColRef{}, r.lhs.Columns()...), r.rhs.Columns()...)
}

func (r *resolvedCombined) Joins() []string {
	return append(append([]string{}, r.lhs.Joins()...), r.rhs.Joins()...)
}

func (r *resolvedCombined) OutputType() string {
	if t := r.lhs.OutputType(); t != "" {
		return t
	}
	return r.rhs.OutputType()
}

func (r *resolvedCombined) ContainsAggregate() bool {
	return r.lhs.ContainsAggregate() || r.rhs.ContainsAggregate()
}

func (r *resolvedCombined) relabeled(change map[string]string) ResolvedExpression {
	return &resolvedCombined{
		lhs: r.lhs.relabeled(change),
		op:  r.op,
		rhs: r.rhs.relabeled(change),
	}
}

// durationValue extracts a duration literal operand, or nil.
func durationValue(e ResolvedExpression) *time.Duration {
	rv, ok := e.(*resolvedValue)
	if !ok {
		return nil
	}
	dv, ok := rv.v.(time.Duration)
	if !ok {
		return nil
	}
	return &dv
}

func isTemporalType(typ string) bool {
	t := strings.ToLower(typ)
	return strings.HasPrefix(t, "timestamp") ||
		strings.HasPrefix(t, "datetime") ||
		t == "date" || t == "time"
}
