package relq

import "strings"

// aggregateFunc describes one aggregate function: its SQL name, whether
// its output is always integral, and whether it computes a float
// regardless of input type.
type aggregateFunc struct {
	name           string
	returnsInteger bool
	computesFloat  bool
}

var (
	aggCount = aggregateFunc{name: "COUNT", returnsInteger: true}
	aggSum   = aggregateFunc{name: "SUM"}
	aggAvg   = aggregateFunc{name: "AVG", computesFloat: true}
	aggMin   = aggregateFunc{name: "MIN"}
	aggMax   = aggregateFunc{name: "MAX"}
)

// Aggregate is a declarative aggregate descriptor: a function, a target
// (field path string or Expression), and an optional condition restricting
// which rows contribute. Descriptors are immutable; Only and Distinct
// return copies, so one descriptor can be reused across queries.
type Aggregate struct {
	fn        aggregateFunc
	target    any
	distinct  bool
	condition Predicate
}

// Count aggregates with COUNT. Target is a field path or Expression.
func Count(target any) *Aggregate { return &Aggregate{fn: aggCount, target: target} }

// Sum aggregates with SUM.
func Sum(target any) *Aggregate { return &Aggregate{fn: aggSum, target: target} }

// Avg aggregates with AVG.
func Avg(target any) *Aggregate { return &Aggregate{fn: aggAvg, target: target} }

// Min aggregates with MIN.
func Min(target any) *Aggregate { return &Aggregate{fn: aggMin, target: target} }

// Max aggregates with MAX.
func Max(target any) *Aggregate { return &Aggregate{fn: aggMax, target: target} }

// Distinct returns a copy counting only distinct values.
func (a *Aggregate) Distinct() *Aggregate {
	out := *a
	out.distinct = true
	return &out
}

// Only returns a copy whose aggregation is restricted to rows matching p.
// The condition compiles to a CASE WHEN rewrite of the aggregated
// expression, never into the query's WHERE or HAVING.
func (a *Aggregate) Only(p Predicate) *Aggregate {
	out := *a
	out.condition = p
	return &out
}

// defaultAlias derives the output alias for a plain field-path target,
// e.g. "related.amount" + SUM -> "related_amount__sum".
func (a *Aggregate) defaultAlias(path string) string {
	return strings.ReplaceAll(path, ".", "_") + "__" + strings.ToLower(a.fn.name)
}

// ResolvedAggregate is an aggregate bound to a query: the resolved target
// expression, the compiled condition (nil when unconditional), and the
// descriptor's output alias. It implements ResolvedExpression so
// aggregates can appear wherever expressions do (HAVING constraints,
// outer subquery select lists).
type ResolvedAggregate struct {
	fn        aggregateFunc
	expr      ResolvedExpression
	condition *WhereNode
	alias     string
	summary   bool
	distinct  bool
}

// Alias returns the output alias the aggregate is selected under.
func (ra *ResolvedAggregate) Alias() string { return ra.alias }

// Summary reports whether this is a whole-query aggregate rather than a
// per-row annotation.
func (ra *ResolvedAggregate) Summary() bool { return ra.summary }

// Compile renders FUNCTION(field), or with a condition
// FUNCTION(CASE WHEN cond THEN field ELSE NULL END). Parameter order is
// condition params first, then field params, matching placeholder order.
func (ra *ResolvedAggregate) Compile(d Dialect) (string, []any, error) {
	fieldSQL, fieldParams, err := ra.expr.Compile(d)
	if err != nil {
		return "", nil, err
	}

	var condSQL string
	var condParams []any
	if ra.condition != nil {
		condSQL, condParams, err = ra.condition.Compile(d)
		if err != nil {
			return "", nil, err
		}
	}

	inner := fieldSQL
	var params []any
	if condSQL != "" {
		inner = "CASE WHEN " + condSQL + " THEN " + fieldSQL + " ELSE NULL END"
		params = append(params, condParams...)
	}
	if ra.distinct {
		inner = "DISTINCT " + inner
	}
	params = append(params, fieldParams...)
	return ra.fn.name + "(" + inner + ")", params, nil
}

func (ra *ResolvedAggregate) Columns() []ColRef {
	cols := append([]ColRef{}, ra.expr.Columns()...)
	return append(cols, ra.condition.columns()...)
}

func (ra *ResolvedAggregate) Joins() []string { return ra.expr.Joins() }

func (ra *ResolvedAggregate) OutputType() string {
	switch {
	case ra.fn.returnsInteger:
		return "bigint"
	case ra.fn.computesFloat:
		return "double precision"
	default:
		return ra.expr.OutputType()
	}
}

func (ra *ResolvedAggregate) ContainsAggregate() bool { return true }

func (ra *ResolvedAggregate) relabeled(change map[string]string) ResolvedExpression {
	out := *ra
	out.expr = ra.expr.relabeled(change)
	out.condition = ra.condition.relabeled(change)
	return &out
}

// columns collects every column reference in a filter tree; nil-safe.
func (w *WhereNode) columns() []ColRef {
	if w == nil {
		return nil
	}
	var cols []ColRef
	for _, child := range w.Children {
		switch c := child.(type) {
		case *WhereNode:
			cols = append(cols, c.columns()...)
		case *Constraint:
			cols = append(cols, c.LHS.Columns()...)
			if rv, ok := c.Value.(ResolvedExpression); ok {
				cols = append(cols, rv.Columns()...)
			}
		}
	}
	return cols
}

// annotationRef references a previously-defined aggregate alias from an
// outer aggregation query. It compiles to a plain column reference against
// the subquery's select list.
type annotationRef struct {
	ref ColRef
	typ string
}

func (r *annotationRef) Compile(d Dialect) (string, []any, error) {
	return r.ref.SQL(d), nil, nil
}

func (r *annotationRef) Columns() []ColRef       { return []ColRef{r.ref} }
func (r *annotationRef) Joins() []string         { return nil }
func (r *annotationRef) OutputType() string      { return r.typ }
func (r *annotationRef) ContainsAggregate() bool { return true }

func (r *annotationRef) relabeled(change map[string]string) ResolvedExpression {
	out := *r
	if alias, ok := change[r.ref.Alias]; ok {
		out.ref = ColRef{Alias: alias, Column: r.ref.Column}
	}
	return &out
}
