package relq

import (
	"fmt"
	"strings"
)

// subqueryAlias names the inner query in two-phase aggregation.
const subqueryAlias = "subquery"

// Result is a compiled query: SQL text and the positional bind parameters
// aligned with its placeholders.
type Result struct {
	SQL    string
	Params []any
}

// Compile renders the query model to dialect SQL. Compiling is read-only:
// the same unmutated query compiles to identical output every time.
func Compile(q *Query, d Dialect) (*Result, error) {
	var sql string
	var params []any
	var err error
	if q.needsSubquery() {
		sql, params, err = compileAggregateSubquery(q, d)
	} else {
		sql, params, err = compileSelect(q, d)
	}
	if err != nil {
		return nil, err
	}
	return &Result{SQL: finalizePlaceholders(sql, d), Params: params}, nil
}

// compileSelect renders a single-phase SELECT. The select list is built in
// fixed order: extra-select fragments, columns, aggregates, related
// columns; every fragment's parameters concatenate in that same order so
// the flat list aligns with placeholder positions.
func compileSelect(q *Query, d Dialect) (string, []any, error) {
	var sql strings.Builder
	var params []any

	// Summary aggregates collapse the result to a single row; plain
	// column selections and ordering have no meaning there. Mixing
	// summary aggregates with annotations never reaches this path, that
	// combination compiles through the subquery form.
	collapse := false
	for _, alias := range q.aggregateOrder {
		if q.aggregates[alias].summary {
			collapse = true
			break
		}
	}

	sql.WriteString("SELECT ")
	if q.distinct {
		sql.WriteString("DISTINCT ")
	}

	var selections []string
	for _, e := range q.extra {
		selections = append(selections, "("+e.sql+") AS "+d.QuoteName(e.alias))
		params = append(params, e.params...)
	}
	if !collapse {
		for _, col := range q.selectCols {
			selections = append(selections, col.SQL(d))
		}
	}
	for _, ra := range q.Aggregates() {
		frag, aggParams, err := ra.Compile(d)
		if err != nil {
			return "", nil, err
		}
		selections = append(selections, frag+" AS "+d.QuoteName(ra.alias))
		params = append(params, aggParams...)
	}
	if !collapse {
		for _, col := range q.relatedCols {
			selections = append(selections, col.SQL(d))
		}
	}
	if len(selections) == 0 {
		sql.WriteString("*")
	} else {
		sql.WriteString(strings.Join(selections, ", "))
	}

	sql.WriteString(" FROM ")
	sql.WriteString(d.QuoteName(q.root))

	for _, alias := range q.tables[1:] {
		j := q.aliasMap[alias]
		sql.WriteString(" ")
		sql.WriteString(string(j.joinType))
		sql.WriteString(" ")
		sql.WriteString(d.QuoteName(j.table))
		if alias != j.table {
			sql.WriteString(" ")
			sql.WriteString(d.QuoteName(alias))
		}
		fmt.Fprintf(&sql, " ON (%s.%s = %s.%s)",
			d.QuoteName(j.parentAlias), d.QuoteName(j.parentColumn),
			d.QuoteName(alias), d.QuoteName(j.column))
	}

	whereSQL, whereParams, err := q.where.Compile(d)
	if err != nil {
		return "", nil, err
	}
	if whereSQL != "" {
		sql.WriteString(" WHERE ")
		sql.WriteString(whereSQL)
		params = append(params, whereParams...)
	}

	if q.hasAnnotations() && len(q.selectCols)+len(q.relatedCols) > 0 {
		var groupCols []string
		for _, col := range q.selectCols {
			groupCols = append(groupCols, col.SQL(d))
		}
		for _, col := range q.relatedCols {
			groupCols = append(groupCols, col.SQL(d))
		}
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(groupCols, ", "))
	}

	havingSQL, havingParams, err := q.having.Compile(d)
	if err != nil {
		return "", nil, err
	}
	if havingSQL != "" {
		sql.WriteString(" HAVING ")
		sql.WriteString(havingSQL)
		params = append(params, havingParams...)
	}

	if len(q.ordering) > 0 && !collapse {
		var orderParts []string
		for _, o := range q.ordering {
			ref := o.col.SQL(d)
			if o.col.Alias == "" {
				// Ordering on an aggregate alias.
				ref = d.QuoteName(o.col.Column)
			}
			orderParts = append(orderParts, ref+" "+string(o.dir))
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(orderParts, ", "))
	}

	pagination, err := d.LimitOffsetSQL(q.limit, q.offset, len(q.ordering) > 0)
	if err != nil {
		return "", nil, err
	}
	sql.WriteString(pagination)

	return sql.String(), params, nil
}

// hasAnnotations reports whether any per-row aggregate is present.
func (q *Query) hasAnnotations() bool {
	for _, alias := range q.aggregateOrder {
		if !q.aggregates[alias].summary {
			return true
		}
	}
	return false
}

// compileAggregateSubquery renders two-phase aggregation: the query minus
// its summary aggregates becomes the inner subquery, and the summary
// aggregates run over it. Every base-table alias in the summary fragments
// is relabeled to the subquery alias, in both targets and conditions, and
// the columns they reference are pushed into the inner select list. The
// outer parameter list precedes the inner query's captured parameters,
// matching placeholder order in the assembled text.
func compileAggregateSubquery(q *Query, d Dialect) (string, []any, error) {
	inner := q.Clone()
	inner.aggregates = make(map[string]*ResolvedAggregate)
	inner.aggregateOrder = nil
	for _, alias := range q.aggregateOrder {
		ra := q.aggregates[alias]
		if ra.summary {
			continue
		}
		inner.aggregates[alias] = ra
		inner.aggregateOrder = append(inner.aggregateOrder, alias)
	}

	change := make(map[string]string, len(q.tables))
	for _, alias := range q.tables {
		change[alias] = subqueryAlias
	}

	var aggFrags []string
	var aggParams []any
	for _, alias := range q.aggregateOrder {
		ra := q.aggregates[alias]
		if !ra.summary {
			continue
		}
		for _, col := range ra.Columns() {
			if col.Alias != subqueryAlias {
				inner.addSubqueryCol(col)
			}
		}
		frag, params, err := ra.relabeled(change).Compile(d)
		if err != nil {
			return "", nil, err
		}
		aggFrags = append(aggFrags, frag+" AS "+d.QuoteName(ra.alias))
		aggParams = append(aggParams, params...)
	}
	if len(aggFrags) == 0 {
		return "", nil, fmt.Errorf("subquery aggregation requires at least one summary aggregate")
	}

	innerSQL, innerParams, err := compileSelect(inner, d)
	if err != nil {
		return "", nil, err
	}

	sql := "SELECT " + strings.Join(aggFrags, ", ") +
		" FROM (" + innerSQL + ") " + d.QuoteName(subqueryAlias)
	return sql, append(aggParams, innerParams...), nil
}

// addSubqueryCol ensures a column referenced from the outer aggregation
// phase appears in the inner select list.
func (q *Query) addSubqueryCol(col ColRef) {
	for _, existing := range q.selectCols {
		if existing == col {
			return
		}
	}
	q.selectCols = append(q.selectCols, col)
}

// finalizePlaceholders renumbers neutral `?` placeholders left-to-right
// through the dialect. Identifiers and literals never contain `?` (all
// values bind as parameters), so a plain scan is sufficient.
func finalizePlaceholders(sql string, d Dialect) string {
	if !strings.ContainsRune(sql, '?') {
		return sql
	}
	var out strings.Builder
	out.Grow(len(sql) + 16)
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			n++
			out.WriteString(d.Placeholder(n))
			continue
		}
		out.WriteByte(sql[i])
	}
	return out.String()
}
