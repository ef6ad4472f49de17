// Package mysql provides the MySQL/MariaDB dialect for relq.
package mysql

import (
	"strconv"
	"strings"
	"time"

	"github.com/relqio/relq"
)

// Dialect implements relq.Dialect for MySQL and MariaDB.
type Dialect struct{}

// New creates a new MySQL dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name identifies the dialect.
func (d *Dialect) Name() string {
	return "mysql"
}

// QuoteName quotes an identifier with backticks.
func (d *Dialect) QuoteName(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// Placeholder returns the ? bind placeholder regardless of position.
func (d *Dialect) Placeholder(_ int) string {
	return "?"
}

// LookupCast returns the placeholder unchanged; MySQL needs no casts.
func (d *Dialect) LookupCast(_ relq.Lookup, placeholder string) string {
	return placeholder
}

// LikeEscape returns ""; backslash escapes LIKE patterns by default.
func (d *Dialect) LikeEscape() string {
	return ""
}

// mysqlMaxLimit stands in for a missing LIMIT when only OFFSET is set;
// MySQL has no unbounded form.
const mysqlMaxLimit = "18446744073709551615"

// LimitOffsetSQL renders LIMIT/OFFSET. A bare OFFSET gets the documented
// maximum row count as its LIMIT.
func (d *Dialect) LimitOffsetSQL(limit, offset *int, _ bool) (string, error) {
	var sql string
	switch {
	case limit != nil:
		sql = " LIMIT " + strconv.Itoa(*limit)
	case offset != nil:
		sql = " LIMIT " + mysqlMaxLimit
	}
	if offset != nil {
		sql += " OFFSET " + strconv.Itoa(*offset)
	}
	return sql, nil
}

// DateArithSQL renders date arithmetic through DATE_ADD/DATE_SUB.
func (d *Dialect) DateArithSQL(lhs, rhs string, subtract bool) string {
	fn := "DATE_ADD"
	if subtract {
		fn = "DATE_SUB"
	}
	return fn + "(" + lhs + ", INTERVAL " + rhs + " MICROSECOND)"
}

// DateArithParam binds a duration as a microsecond count.
func (d *Dialect) DateArithParam(dur time.Duration, _ bool) any {
	return dur.Microseconds()
}
