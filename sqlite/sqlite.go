// Package sqlite provides the SQLite dialect for relq.
package sqlite

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relqio/relq"
)

// Dialect implements relq.Dialect for SQLite.
type Dialect struct{}

// New creates a new SQLite dialect.
func New() *Dialect {
	return &Dialect{}
}

// Name identifies the dialect.
func (d *Dialect) Name() string {
	return "sqlite"
}

// QuoteName quotes an identifier with double quotes.
func (d *Dialect) QuoteName(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// Placeholder returns the ? bind placeholder regardless of position.
func (d *Dialect) Placeholder(_ int) string {
	return "?"
}

// LookupCast returns the placeholder unchanged; SQLite needs no casts.
func (d *Dialect) LookupCast(_ relq.Lookup, placeholder string) string {
	return placeholder
}

// LikeEscape declares the backslash escape; SQLite LIKE has no default
// escape character.
func (d *Dialect) LikeEscape() string {
	return ` ESCAPE '\'`
}

// LimitOffsetSQL renders LIMIT/OFFSET. SQLite rejects a bare OFFSET, so
// an unbounded LIMIT -1 precedes it.
func (d *Dialect) LimitOffsetSQL(limit, offset *int, _ bool) (string, error) {
	var sql string
	switch {
	case limit != nil:
		sql = " LIMIT " + strconv.Itoa(*limit)
	case offset != nil:
		sql = " LIMIT -1"
	}
	if offset != nil {
		sql += " OFFSET " + strconv.Itoa(*offset)
	}
	return sql, nil
}

// DateArithSQL renders date arithmetic through the DATETIME modifier form.
func (d *Dialect) DateArithSQL(lhs, rhs string, _ bool) string {
	return "DATETIME(" + lhs + ", " + rhs + ")"
}

// DateArithParam binds a duration as a signed seconds modifier string.
func (d *Dialect) DateArithParam(dur time.Duration, subtract bool) any {
	sign := "+"
	if subtract {
		sign = "-"
	}
	return fmt.Sprintf("%s%g seconds", sign, dur.Seconds())
}
