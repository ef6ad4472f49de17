// Package mssql provides the SQL Server dialect for relq.
package mssql

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relqio/relq"
)

// Dialect implements relq.Dialect for SQL Server.
type Dialect struct{}

// New creates a new SQL Server dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name identifies the dialect.
func (d *Dialect) Name() string {
	return "mssql"
}

// QuoteName quotes an identifier with square brackets.
func (d *Dialect) QuoteName(name string) string {
	escaped := strings.ReplaceAll(name, "]", "]]")
	return "[" + escaped + "]"
}

// Placeholder returns the @pn bind placeholder.
func (d *Dialect) Placeholder(n int) string {
	return "@p" + strconv.Itoa(n)
}

// LookupCast returns the placeholder unchanged; SQL Server needs no casts.
func (d *Dialect) LookupCast(_ relq.Lookup, placeholder string) string {
	return placeholder
}

// LikeEscape declares the backslash escape; SQL Server LIKE has no default
// escape character.
func (d *Dialect) LikeEscape() string {
	return ` ESCAPE '\'`
}

// LimitOffsetSQL renders OFFSET/FETCH, which SQL Server requires in
// place of LIMIT and only under an ORDER BY.
func (d *Dialect) LimitOffsetSQL(limit, offset *int, ordered bool) (string, error) {
	if limit == nil && offset == nil {
		return "", nil
	}
	if !ordered {
		return "", fmt.Errorf("mssql pagination requires an ORDER BY clause")
	}
	sql := " OFFSET 0 ROWS"
	if offset != nil {
		sql = " OFFSET " + strconv.Itoa(*offset) + " ROWS"
	}
	if limit != nil {
		sql += " FETCH NEXT " + strconv.Itoa(*limit) + " ROWS ONLY"
	}
	return sql, nil
}

// DateArithSQL renders date arithmetic through DATEADD. Subtraction
// negates the bound microsecond count instead.
func (d *Dialect) DateArithSQL(lhs, rhs string, _ bool) string {
	return "DATEADD(MICROSECOND, " + rhs + ", " + lhs + ")"
}

// DateArithParam binds a duration as a microsecond count, negated for
// subtraction.
func (d *Dialect) DateArithParam(dur time.Duration, subtract bool) any {
	us := dur.Microseconds()
	if subtract {
		return -us
	}
	return us
}
