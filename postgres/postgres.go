// Package postgres provides the PostgreSQL dialect for relq.
package postgres

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relqio/relq"
)

// Dialect implements relq.Dialect for PostgreSQL.
type Dialect struct{}

// New creates a new PostgreSQL dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name identifies the dialect.
func (d *Dialect) Name() string {
	return "postgres"
}

// QuoteName quotes an identifier with double quotes.
func (d *Dialect) QuoteName(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// Placeholder returns the $n bind placeholder.
func (d *Dialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// LookupCast adds a ::text cast for case-insensitive lookups; Postgres
// cannot infer a type for UPPER over an untyped bind parameter.
func (d *Dialect) LookupCast(lk relq.Lookup, placeholder string) string {
	switch lk {
	case relq.LookupIExact, relq.LookupIContains, relq.LookupIStartsWith, relq.LookupIEndsWith:
		return placeholder + "::text"
	}
	return placeholder
}

// LikeEscape returns ""; backslash escapes LIKE patterns by default.
func (d *Dialect) LikeEscape() string {
	return ""
}

// LimitOffsetSQL renders LIMIT/OFFSET; either may stand alone.
func (d *Dialect) LimitOffsetSQL(limit, offset *int, _ bool) (string, error) {
	var sql string
	if limit != nil {
		sql += " LIMIT " + strconv.Itoa(*limit)
	}
	if offset != nil {
		sql += " OFFSET " + strconv.Itoa(*offset)
	}
	return sql, nil
}

// DateArithSQL renders interval arithmetic.
func (d *Dialect) DateArithSQL(lhs, rhs string, subtract bool) string {
	op := "+"
	if subtract {
		op = "-"
	}
	return "(" + lhs + " " + op + " " + rhs + "::interval)"
}

// DateArithParam binds a duration as a Postgres interval string.
func (d *Dialect) DateArithParam(dur time.Duration, _ bool) any {
	return fmt.Sprintf("%d microseconds", dur.Microseconds())
}
