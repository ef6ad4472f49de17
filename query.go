// Package relq compiles relational query models to SQL with positional
// parameters, with dialect support for PostgreSQL, MySQL/MariaDB, SQLite,
// and SQL Server.
//
// A Query is built against a Schema (derived from DBML plus registered
// relations) using Django-style dotted lookups:
//
//	q, err := relq.New(schema, "orders")
//	q.AddFilter(relq.C("customer.name__istartswith", "ac"))
//	q.AddAggregate(relq.Sum("amount").Only(relq.C("status", "PAID")), "paid_total", true)
//
//	result, err := relq.Compile(q, postgres.New())
//	// result.SQL:    SELECT SUM(CASE WHEN "orders"."status" = $1 THEN ...
//	// result.Params: []any{"PAID", "ac%"}
//
// Aggregates carry an optional condition that compiles into a CASE
// expression inside the aggregate function. Filters on joined tables
// promote their joins to LEFT OUTER so the condition only restricts the
// aggregate's input rows, never the row set itself.
//
// Compiled fragments use neutral `?` placeholders; Compile renumbers them
// through the dialect, so Params aligns positionally with the final SQL.
//
// A Query is not safe for concurrent use. Build and compile it from a
// single goroutine, or serialize access externally; Clone gives each
// goroutine its own copy.
package relq

import (
	"fmt"
	"sort"
	"strings"
)

// JoinType is the SQL join class of an alias.
type JoinType string

const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT OUTER JOIN"
)

// Direction represents sort direction.
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// join records one entry in the query's alias map. The root table has an
// empty parentAlias.
type join struct {
	alias        string
	table        string
	parentAlias  string
	parentColumn string
	column       string
	joinType     JoinType
	nullable     bool
	refCount     int
}

type orderClause struct {
	col ColRef
	dir Direction
}

type extraSelect struct {
	alias  string
	sql    string
	params []any
}

// Query is the mutable query model: a root table, a join graph, WHERE and
// HAVING trees, selected columns, and aggregates keyed by output alias in
// insertion order. A Query must not be shared across goroutines; callers
// serialize all construction and compilation on one instance.
type Query struct {
	schema *Schema
	root   string

	tables   []string // alias order; tables[0] is the root
	aliasMap map[string]*join

	where  *WhereNode
	having *WhereNode

	aggregates     map[string]*ResolvedAggregate
	aggregateOrder []string

	extra       []extraSelect
	selectCols  []ColRef
	relatedCols []ColRef

	ordering []orderClause
	limit    *int
	offset   *int
	distinct bool
}

// New creates a query rooted at a schema table.
func New(schema *Schema, table string) (*Query, error) {
	if _, err := schema.Table(table); err != nil {
		return nil, err
	}
	q := &Query{
		schema:     schema,
		root:       table,
		tables:     []string{table},
		aliasMap:   make(map[string]*join),
		where:      newWhereNode(AND),
		having:     newWhereNode(AND),
		aggregates: make(map[string]*ResolvedAggregate),
	}
	q.aliasMap[table] = &join{alias: table, table: table, joinType: InnerJoin, refCount: 1}
	return q, nil
}

// Where returns the live WHERE tree.
func (q *Query) Where() *WhereNode { return q.where }

// Having returns the live HAVING tree.
func (q *Query) Having() *WhereNode { return q.having }

// Aggregates returns the resolved aggregates in insertion order, which is
// also their SELECT-list order.
func (q *Query) Aggregates() []*ResolvedAggregate {
	out := make([]*ResolvedAggregate, 0, len(q.aggregateOrder))
	for _, alias := range q.aggregateOrder {
		out = append(out, q.aggregates[alias])
	}
	return out
}

// JoinTypeOf returns the join class of an alias in the join map.
func (q *Query) JoinTypeOf(alias string) (JoinType, bool) {
	j, ok := q.aliasMap[alias]
	if !ok {
		return "", false
	}
	return j.joinType, true
}

// setupJoins resolves a field path against the schema, creating (or
// reusing) the join chain it crosses. It returns the resolved column, its
// SQL type, and the aliases of every join the path required. A trailing
// path segment naming a relation resolves to the relation's FK column on
// the current table, trimming the redundant final hop.
func (q *Query) setupJoins(parts []string, promote bool) (ColRef, string, []string, error) {
	cur := q.root
	curAlias := q.root
	var joins []string

	for i, part := range parts {
		last := i == len(parts)-1
		if last {
			if col := q.schema.column(cur, part); col != nil {
				if promote {
					q.PromoteJoins(joins, true)
				}
				return ColRef{Alias: curAlias, Column: part}, col.Type, joins, nil
			}
			if rel := q.schema.relation(cur, part); rel != nil {
				col := q.schema.column(cur, rel.Column)
				if promote {
					q.PromoteJoins(joins, true)
				}
				return ColRef{Alias: curAlias, Column: rel.Column}, col.Type, joins, nil
			}
			return ColRef{}, "", nil, fmt.Errorf("no field or relation %q on table %q (path %q)",
				part, cur, strings.Join(parts, "."))
		}

		rel := q.schema.relation(cur, part)
		if rel == nil {
			return ColRef{}, "", nil, fmt.Errorf("no relation %q on table %q (path %q)",
				part, cur, strings.Join(parts, "."))
		}
		alias := q.joinTo(curAlias, rel)
		joins = append(joins, alias)
		cur = rel.Target
		curAlias = alias
	}
	return ColRef{}, "", nil, fmt.Errorf("empty field path")
}

// joinTo returns the alias joining parentAlias through rel, reusing an
// identical existing join so that repeated resolution of the same path is
// idempotent. Nullable relations start out LEFT OUTER.
func (q *Query) joinTo(parentAlias string, rel *Relation) string {
	for _, alias := range q.tables {
		j := q.aliasMap[alias]
		if j.parentAlias == parentAlias && j.table == rel.Target &&
			j.parentColumn == rel.Column && j.column == rel.TargetColumn {
			j.refCount++
			return alias
		}
	}

	alias := rel.Target
	if _, taken := q.aliasMap[alias]; taken {
		alias = fmt.Sprintf("T%d", len(q.tables)+1)
	}
	jt := InnerJoin
	if rel.Nullable {
		jt = LeftJoin
	}
	q.aliasMap[alias] = &join{
		alias:        alias,
		table:        rel.Target,
		parentAlias:  parentAlias,
		parentColumn: rel.Column,
		column:       rel.TargetColumn,
		joinType:     jt,
		nullable:     rel.Nullable,
		refCount:     1,
	}
	q.tables = append(q.tables, alias)
	return alias
}

// PromoteJoins marks aliases as LEFT OUTER joins. With unconditional set,
// every listed join is promoted; otherwise only nullable ones. Promotion
// is monotonic: nothing here or in path resolution ever demotes an alias
// back to inner. Only DemoteJoins does, via a full usage scan.
func (q *Query) PromoteJoins(aliases []string, unconditional bool) {
	for _, alias := range aliases {
		j, ok := q.aliasMap[alias]
		if !ok || j.parentAlias == "" {
			continue
		}
		if unconditional || j.nullable {
			j.joinType = LeftJoin
		}
	}
}

// DemoteJoins resets non-nullable promoted joins back to inner when the
// WHERE tree constrains them: a row filtered on a joined column cannot be
// a NULL outer-join row, so the outer join is equivalent to inner. This is
// the only code path that ever demotes.
func (q *Query) DemoteJoins() {
	used := make(map[string]bool)
	for _, col := range q.where.columns() {
		used[col.Alias] = true
	}
	for _, alias := range q.tables {
		j := q.aliasMap[alias]
		if j.parentAlias != "" && !j.nullable && used[alias] {
			j.joinType = InnerJoin
		}
	}
}

// AddFields adds columns to the SELECT list by field path.
func (q *Query) AddFields(paths ...string) error {
	for _, path := range paths {
		parts, lk, err := parseLookup(path)
		if err != nil {
			return err
		}
		if lk != LookupExact {
			return fmt.Errorf("field path %q must not carry a lookup suffix", path)
		}
		col, _, _, err := q.setupJoins(parts, false)
		if err != nil {
			return err
		}
		q.selectCols = append(q.selectCols, col)
	}
	return nil
}

// AddRelated joins a relation path and appends every column of its target
// table to the related-select list, in column-name order.
func (q *Query) AddRelated(path string) error {
	cur := q.root
	curAlias := q.root
	for _, part := range strings.Split(path, ".") {
		rel := q.schema.relation(cur, part)
		if rel == nil {
			return fmt.Errorf("no relation %q on table %q", part, cur)
		}
		curAlias = q.joinTo(curAlias, rel)
		cur = rel.Target
	}

	table, err := q.schema.Table(cur)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(table.Columns))
	for name := range table.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q.relatedCols = append(q.relatedCols, ColRef{Alias: curAlias, Column: name})
	}
	return nil
}

// AddExtraSelect prepends a raw SQL fragment to the SELECT list. The
// fragment's parameters bind before every other SELECT parameter.
func (q *Query) AddExtraSelect(alias, sql string, params ...any) error {
	if !isValidIdentifier(alias) {
		return fmt.Errorf("invalid extra-select alias %q", alias)
	}
	q.extra = append(q.extra, extraSelect{alias: alias, sql: sql, params: params})
	return nil
}

// AddOrderBy appends an ORDER BY term by field path.
func (q *Query) AddOrderBy(path string, dir Direction) error {
	parts, lk, err := parseLookup(path)
	if err != nil {
		return err
	}
	if lk != LookupExact {
		return fmt.Errorf("order path %q must not carry a lookup suffix", path)
	}
	if len(parts) == 1 {
		if _, ok := q.aggregates[parts[0]]; ok {
			q.ordering = append(q.ordering, orderClause{col: ColRef{Alias: "", Column: parts[0]}, dir: dir})
			return nil
		}
	}
	col, _, _, err := q.setupJoins(parts, false)
	if err != nil {
		return err
	}
	q.ordering = append(q.ordering, orderClause{col: col, dir: dir})
	return nil
}

// SetLimit caps the number of result rows.
func (q *Query) SetLimit(n int) { q.limit = &n }

// SetOffset skips leading result rows.
func (q *Query) SetOffset(n int) { q.offset = &n }

// SetDistinct requests DISTINCT row output.
func (q *Query) SetDistinct() { q.distinct = true }

// AddFilter resolves a predicate into the query's WHERE tree (or HAVING,
// for constraints on aggregate aliases). The live trees are only touched
// after the whole predicate resolved; a failing predicate leaves them
// unchanged.
func (q *Query) AddFilter(p Predicate) error {
	where := newWhereNode(AND)
	having := newWhereNode(AND)
	if err := q.addPredicate(p, where, having, false); err != nil {
		return err
	}
	mergeWhere(q.where, where)
	mergeWhere(q.having, having)
	return nil
}

// mergeWhere appends src's content to dst, unwrapping single children.
func mergeWhere(dst, src *WhereNode) {
	switch len(src.Children) {
	case 0:
	case 1:
		dst.add(src.Children[0])
	default:
		dst.add(src)
	}
}

// addPredicate resolves a declarative predicate into the supplied
// disposable trees. It never touches q.where or q.having directly, so the
// same machinery serves both query filters and aggregate conditions.
func (q *Query) addPredicate(p Predicate, where, having *WhereNode, promote bool) error {
	switch pred := p.(type) {
	case Cond:
		return q.addCond(pred, where, having, promote)
	case PredicateGroup:
		sub := &WhereNode{Connector: pred.Connector, Negated: pred.Negated}
		subHaving := &WhereNode{Connector: pred.Connector, Negated: pred.Negated}
		for _, child := range pred.Preds {
			if err := q.addPredicate(child, sub, subHaving, promote); err != nil {
				return err
			}
		}
		if len(sub.Children) > 0 {
			where.add(sub)
		}
		if len(subHaving.Children) > 0 {
			having.add(subHaving)
		}
		return nil
	default:
		return fmt.Errorf("unknown predicate type %T", p)
	}
}

func (q *Query) addCond(cond Cond, where, having *WhereNode, promote bool) error {
	parts, lk, err := parseLookup(cond.Lookup)
	if err != nil {
		return err
	}

	value := cond.Value
	valueAggregate := false
	if e, ok := cond.Value.(Expression); ok {
		re, err := e.Resolve(q, ResolveOptions{AllowJoins: true, PromoteJoins: promote})
		if err != nil {
			return err
		}
		value = re
		valueAggregate = re.ContainsAggregate()
	}

	// Constraints on aggregate aliases belong in HAVING: they compare
	// post-aggregation values.
	if len(parts) == 1 {
		if ra, ok := q.aggregates[parts[0]]; ok {
			having.add(&Constraint{LHS: ra, Lookup: lk, Value: value})
			return nil
		}
	}

	col, typ, joins, err := q.setupJoins(parts, promote)
	if err != nil {
		return err
	}
	constraint := &Constraint{
		LHS:    &resolvedCol{ref: col, typ: typ, joins: joins},
		Lookup: lk,
		Value:  value,
	}
	if valueAggregate {
		having.add(constraint)
	} else {
		where.add(constraint)
	}
	return nil
}

// AddAggregate resolves an aggregate descriptor against the query and
// stores it under alias. With summary set the aggregate produces one row
// for the whole result set; otherwise it is a per-row annotation.
//
// An empty alias derives "path__function" from a field-path target;
// expression targets require an explicit alias.
//
// On error the query is unchanged: joins and promotions created while
// resolving the target or condition are rolled back along with the
// untouched WHERE/HAVING trees, so the query stays usable for further
// aggregates after a failed one.
func (q *Query) AddAggregate(agg *Aggregate, alias string, summary bool) error {
	tables, aliases := q.snapshotJoins()
	if err := q.addAggregate(agg, alias, summary); err != nil {
		q.tables = tables
		q.aliasMap = aliases
		return err
	}
	return nil
}

// snapshotJoins copies the join state so addAggregate's mutations can be
// rolled back on any error exit.
func (q *Query) snapshotJoins() ([]string, map[string]*join) {
	tables := append([]string{}, q.tables...)
	aliases := make(map[string]*join, len(q.aliasMap))
	for alias, j := range q.aliasMap {
		copied := *j
		aliases[alias] = &copied
	}
	return tables, aliases
}

func (q *Query) addAggregate(agg *Aggregate, alias string, summary bool) error {
	var expr ResolvedExpression

	switch target := agg.target.(type) {
	case Expression:
		if alias == "" {
			return ErrUnaliasedExpressionAggregate
		}
		re, err := target.Resolve(q, ResolveOptions{AllowJoins: true, PromoteJoins: true})
		if err != nil {
			return err
		}
		if re.ContainsAggregate() {
			if agg.condition != nil {
				return fmt.Errorf("%w: %s", ErrConditionOnAggregatedField, alias)
			}
			return fmt.Errorf("%w: expression for %q references an aggregate", ErrAggregateOverAggregate, alias)
		}
		expr = re

	case string:
		if existing, ok := q.aggregates[target]; ok {
			if agg.condition != nil {
				return fmt.Errorf("%w: %s", ErrConditionOnAggregatedField, target)
			}
			if !summary {
				return fmt.Errorf("%w: %s", ErrAggregateOverAggregate, target)
			}
			// The outer query reads the annotation from the inner
			// subquery's select list.
			expr = &annotationRef{
				ref: ColRef{Alias: subqueryAlias, Column: target},
				typ: existing.OutputType(),
			}
			if alias == "" {
				alias = agg.defaultAlias(target)
			}
			break
		}

		parts, lookup, err := parseLookup(target)
		if err != nil {
			return err
		}
		if lookup != LookupExact {
			return fmt.Errorf("aggregate target %q must not carry a lookup suffix", target)
		}
		col, typ, joins, err := q.setupJoins(parts, false)
		if err != nil {
			return err
		}
		// An aggregate target must not filter out rows lacking a match.
		q.PromoteJoins(joins, true)
		expr = &resolvedCol{ref: col, typ: typ, joins: joins}
		if alias == "" {
			alias = agg.defaultAlias(target)
		}

	default:
		return fmt.Errorf("aggregate target must be a field path or Expression, got %T", agg.target)
	}

	if _, exists := q.aggregates[alias]; exists {
		return fmt.Errorf("aggregate alias %q already in use", alias)
	}

	var condition *WhereNode
	if agg.condition != nil {
		resolved, err := q.resolveCondition(agg.condition)
		if err != nil {
			return err
		}
		condition = resolved
	}

	q.aggregates[alias] = &ResolvedAggregate{
		fn:        agg.fn,
		expr:      expr,
		condition: condition,
		alias:     alias,
		summary:   summary,
		distinct:  agg.distinct,
	}
	q.aggregateOrder = append(q.aggregateOrder, alias)
	return nil
}

// resolveCondition compiles an aggregate condition against the query's
// schema and current alias set without ever touching the query's own
// WHERE/HAVING trees: the predicate resolves into fresh disposable trees,
// so the query's filter state is unchanged on every exit path. Joins the
// condition introduces are allowed and promoted to LEFT OUTER, matching
// the treatment of the aggregate's target.
func (q *Query) resolveCondition(p Predicate) (*WhereNode, error) {
	where := newWhereNode(AND)
	having := newWhereNode(AND)
	if err := q.addPredicate(p, where, having, true); err != nil {
		return nil, err
	}
	if len(having.Children) > 0 {
		return nil, ErrConditionReferencesAnnotation
	}
	return where, nil
}

// Clone deep-copies the query model. The clone shares the schema and the
// immutable resolved aggregates but owns its join map and filter trees.
func (q *Query) Clone() *Query {
	out := &Query{
		schema:         q.schema,
		root:           q.root,
		tables:         append([]string{}, q.tables...),
		aliasMap:       make(map[string]*join, len(q.aliasMap)),
		where:          q.where.clone(),
		having:         q.having.clone(),
		aggregates:     make(map[string]*ResolvedAggregate, len(q.aggregates)),
		aggregateOrder: append([]string{}, q.aggregateOrder...),
		extra:          append([]extraSelect{}, q.extra...),
		selectCols:     append([]ColRef{}, q.selectCols...),
		relatedCols:    append([]ColRef{}, q.relatedCols...),
		ordering:       append([]orderClause{}, q.ordering...),
		distinct:       q.distinct,
	}
	for alias, j := range q.aliasMap {
		copied := *j
		out.aliasMap[alias] = &copied
	}
	for alias, ra := range q.aggregates {
		out.aggregates[alias] = ra
	}
	if q.limit != nil {
		n := *q.limit
		out.limit = &n
	}
	if q.offset != nil {
		n := *q.offset
		out.offset = &n
	}
	return out
}

// needsSubquery reports whether summary aggregates must run as an outer
// query over the current query as a subquery: when they wrap annotations,
// or when LIMIT/OFFSET/DISTINCT would change which rows aggregate.
func (q *Query) needsSubquery() bool {
	summary := false
	for _, alias := range q.aggregateOrder {
		ra := q.aggregates[alias]
		if !ra.summary {
			continue
		}
		summary = true
		if _, ok := ra.expr.(*annotationRef); ok {
			return true
		}
	}
	if !summary {
		return false
	}
	if q.limit != nil || q.offset != nil || q.distinct {
		return true
	}
	for _, alias := range q.aggregateOrder {
		if !q.aggregates[alias].summary {
			return true
		}
	}
	return false
}
