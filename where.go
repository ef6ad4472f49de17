package relq

import (
	"fmt"
	"reflect"
	"strings"
)

// Connector joins sibling predicate nodes.
type Connector string

const (
	AND Connector = "AND"
	OR  Connector = "OR"
)

// Predicate is the declarative side of the filter tree: a single lookup
// condition or a group of predicates with AND/OR logic and optional
// negation. Predicates are inert data until a query resolves them.
type Predicate interface {
	isPredicate()
}

// Cond is a single lookup condition, e.g. C("amount__gt", 10).
// Value may be a literal, a slice (for in/range lookups), nil (forcing an
// IS NULL test), or an Expression compared against the field.
type Cond struct {
	Lookup string
	Value  any
}

// PredicateGroup is a boolean combination of predicates.
type PredicateGroup struct {
	Connector Connector
	Negated   bool
	Preds     []Predicate
}

func (Cond) isPredicate()           {}
func (PredicateGroup) isPredicate() {}

// C creates a single lookup condition.
func C(lookup string, value any) Cond {
	return Cond{Lookup: lookup, Value: value}
}

// And groups predicates with AND logic.
func And(preds ...Predicate) PredicateGroup {
	if len(preds) == 0 {
		panic(fmt.Errorf("AND requires at least one predicate"))
	}
	return PredicateGroup{Connector: AND, Preds: preds}
}

// Or groups predicates with OR logic.
func Or(preds ...Predicate) PredicateGroup {
	if len(preds) == 0 {
		panic(fmt.Errorf("OR requires at least one predicate"))
	}
	return PredicateGroup{Connector: OR, Preds: preds}
}

// Not negates a predicate.
func Not(p Predicate) PredicateGroup {
	return PredicateGroup{Connector: AND, Negated: true, Preds: []Predicate{p}}
}

// WhereNode is the compiled filter tree: leaves are Constraints, internal
// nodes combine children with a connector. An empty node matches
// everything and compiles to an empty fragment.
type WhereNode struct {
	Connector Connector
	Negated   bool
	Children  []WhereChild
}

// WhereChild is either a *WhereNode subtree or a *Constraint leaf.
type WhereChild interface {
	compileWhere(d Dialect) (string, []any, error)
}

// newWhereNode creates an empty tree with the given connector.
func newWhereNode(conn Connector) *WhereNode {
	return &WhereNode{Connector: conn}
}

// Compile renders the tree to a boolean SQL fragment with `?` placeholders
// and its bind values in placeholder order.
func (w *WhereNode) Compile(d Dialect) (string, []any, error) {
	return w.compileWhere(d)
}

func (w *WhereNode) compileWhere(d Dialect) (string, []any, error) {
	if len(w.Children) == 0 {
		return "", nil, nil
	}

	var frags []string
	var params []any
	for _, child := range w.Children {
		sql, childParams, err := child.compileWhere(d)
		if err != nil {
			return "", nil, err
		}
		if sql == "" {
			continue
		}
		frags = append(frags, sql)
		params = append(params, childParams...)
	}
	if len(frags) == 0 {
		return "", nil, nil
	}

	sql := strings.Join(frags, " "+string(w.Connector)+" ")
	if len(frags) > 1 {
		sql = "(" + sql + ")"
	}
	if w.Negated {
		sql = "NOT (" + sql + ")"
	}
	return sql, params, nil
}

// add appends a child.
func (w *WhereNode) add(child WhereChild) {
	w.Children = append(w.Children, child)
}

// clone deep-copies the tree. Constraints are immutable and shared.
func (w *WhereNode) clone() *WhereNode {
	if w == nil {
		return nil
	}
	out := &WhereNode{Connector: w.Connector, Negated: w.Negated}
	for _, child := range w.Children {
		if node, ok := child.(*WhereNode); ok {
			out.Children = append(out.Children, node.clone())
		} else {
			out.Children = append(out.Children, child)
		}
	}
	return out
}

// relabeled returns a copy with all column aliases rewritten through change.
func (w *WhereNode) relabeled(change map[string]string) *WhereNode {
	if w == nil {
		return nil
	}
	out := &WhereNode{Connector: w.Connector, Negated: w.Negated}
	for _, child := range w.Children {
		switch c := child.(type) {
		case *WhereNode:
			out.Children = append(out.Children, c.relabeled(change))
		case *Constraint:
			out.Children = append(out.Children, c.relabeled(change))
		}
	}
	return out
}

// Constraint is a compiled filter leaf: a resolved left-hand side, a
// comparison kind, and a right-hand side. Value holds a literal, a []any
// (in/range), nil, or a ResolvedExpression.
type Constraint struct {
	LHS    ResolvedExpression
	Lookup Lookup
	Value  any
}

func (c *Constraint) relabeled(change map[string]string) *Constraint {
	out := &Constraint{LHS: c.LHS.relabeled(change), Lookup: c.Lookup, Value: c.Value}
	if rv, ok := c.Value.(ResolvedExpression); ok {
		out.Value = rv.relabeled(change)
	}
	return out
}

func (c *Constraint) compileWhere(d Dialect) (string, []any, error) {
	lhsSQL, lhsParams, err := c.LHS.Compile(d)
	if err != nil {
		return "", nil, err
	}

	// A nil right-hand side always means an IS NULL test, whatever the
	// requested lookup was.
	if c.Value == nil {
		return lhsSQL + " IS NULL", lhsParams, nil
	}

	if rhs, ok := c.Value.(ResolvedExpression); ok {
		return c.compileAgainstExpression(d, lhsSQL, lhsParams, rhs)
	}
	return c.compileAgainstValue(d, lhsSQL, lhsParams)
}

// compileAgainstExpression handles a compilable right-hand side. Its own
// parameters follow the left-hand side's, and it never receives the
// dialect's literal cast wrapper.
func (c *Constraint) compileAgainstExpression(d Dialect, lhsSQL string, lhsParams []any, rhs ResolvedExpression) (string, []any, error) {
	rhsSQL, rhsParams, err := rhs.Compile(d)
	if err != nil {
		return "", nil, err
	}
	params := append(append([]any{}, lhsParams...), rhsParams...)

	var sql string
	switch c.Lookup {
	case LookupExact:
		sql = lhsSQL + " = " + rhsSQL
	case LookupIExact:
		sql = "UPPER(" + lhsSQL + ") = UPPER(" + rhsSQL + ")"
	case LookupGT, LookupGTE, LookupLT, LookupLTE:
		sql = lhsSQL + " " + comparisonOp(c.Lookup) + " " + rhsSQL
	default:
		return "", nil, fmt.Errorf("lookup %q cannot compare against an expression", c.Lookup)
	}
	return sql, params, nil
}

func (c *Constraint) compileAgainstValue(d Dialect, lhsSQL string, lhsParams []any) (string, []any, error) {
	cast := func() string { return d.LookupCast(c.Lookup, "?") }

	switch c.Lookup {
	case LookupExact:
		return lhsSQL + " = " + cast(), appendParams(lhsParams, c.Value), nil

	case LookupIExact:
		return "UPPER(" + lhsSQL + ") = UPPER(" + cast() + ")", appendParams(lhsParams, c.Value), nil

	case LookupGT, LookupGTE, LookupLT, LookupLTE:
		return lhsSQL + " " + comparisonOp(c.Lookup) + " " + cast(), appendParams(lhsParams, c.Value), nil

	case LookupIn:
		values, ok := asSlice(c.Value)
		if !ok {
			return "", nil, fmt.Errorf("in lookup requires a slice, got %T", c.Value)
		}
		if len(values) == 0 {
			// Match nothing; parameters from the left side still bind.
			return "(1 = 0)", lhsParams, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		return lhsSQL + " IN (" + placeholders + ")", append(append([]any{}, lhsParams...), values...), nil

	case LookupContains, LookupStartsWith, LookupEndsWith:
		pattern, err := likePattern(c.Lookup, c.Value)
		if err != nil {
			return "", nil, err
		}
		return lhsSQL + " LIKE " + cast() + d.LikeEscape(), appendParams(lhsParams, pattern), nil

	case LookupIContains, LookupIStartsWith, LookupIEndsWith:
		pattern, err := likePattern(c.Lookup, c.Value)
		if err != nil {
			return "", nil, err
		}
		return "UPPER(" + lhsSQL + ") LIKE UPPER(" + cast() + ")" + d.LikeEscape(), appendParams(lhsParams, pattern), nil

	case LookupIsNull:
		want, ok := c.Value.(bool)
		if !ok {
			return "", nil, fmt.Errorf("isnull lookup requires a bool, got %T", c.Value)
		}
		if want {
			return lhsSQL + " IS NULL", lhsParams, nil
		}
		return lhsSQL + " IS NOT NULL", lhsParams, nil

	case LookupRange:
		bounds, ok := asSlice(c.Value)
		if !ok || len(bounds) != 2 {
			return "", nil, fmt.Errorf("range lookup requires exactly two bounds")
		}
		return lhsSQL + " BETWEEN " + cast() + " AND " + cast(),
			append(append([]any{}, lhsParams...), bounds...), nil

	default:
		return "", nil, fmt.Errorf("unsupported lookup %q", c.Lookup)
	}
}

func comparisonOp(lk Lookup) string {
	switch lk {
	case LookupGT:
		return ">"
	case LookupGTE:
		return ">="
	case LookupLT:
		return "<"
	case LookupLTE:
		return "<="
	default:
		return "="
	}
}

// likePattern builds the LIKE pattern for a containment lookup, escaping
// wildcards in the literal.
func likePattern(lk Lookup, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s lookup requires a string, got %T", lk, value)
	}
	escaped := EscapeLike(s)
	switch lk {
	case LookupContains, LookupIContains:
		return "%" + escaped + "%", nil
	case LookupStartsWith, LookupIStartsWith:
		return escaped + "%", nil
	default:
		return "%" + escaped, nil
	}
}

func appendParams(params []any, values ...any) []any {
	return append(append([]any{}, params...), values...)
}

// asSlice expands any slice or array value into []any.
func asSlice(v any) ([]any, bool) {
	if vs, ok := v.([]any); ok {
		return vs, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
