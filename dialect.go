package relq

import (
	"strings"
	"time"
)

// Dialect supplies the database-specific SQL fragments the compiler cannot
// produce generically: identifier quoting, bind placeholders, lookup casts,
// and date/interval arithmetic.
//
// Compiled fragments use the neutral `?` placeholder; the compiler's final
// assembly pass renumbers placeholders left-to-right through Placeholder.
type Dialect interface {
	// Name identifies the dialect (e.g. "postgres").
	Name() string

	// QuoteName quotes an identifier to handle reserved words.
	QuoteName(name string) string

	// Placeholder returns the bind placeholder for the nth parameter,
	// 1-based ("$1", "?", "@p1").
	Placeholder(n int) string

	// LookupCast wraps a literal value placeholder with any cast the
	// dialect needs for the given lookup. Compilable right-hand sides
	// (sub-expressions) never receive this wrapper.
	LookupCast(lk Lookup, placeholder string) string

	// LikeEscape returns the clause appended after a LIKE pattern, or ""
	// when backslash already escapes by default.
	LikeEscape() string

	// LimitOffsetSQL renders the pagination tail clause, leading space
	// included, or "" when both limit and offset are nil. ordered
	// reports whether the query carries an ORDER BY, which some
	// dialects require for pagination.
	LimitOffsetSQL(limit, offset *int, ordered bool) (string, error)

	// DateArithSQL renders temporal-plus-duration arithmetic over an
	// already-rendered lhs fragment and a rhs placeholder.
	DateArithSQL(lhs, rhs string, subtract bool) string

	// DateArithParam converts a duration literal into the bind value
	// DateArithSQL expects.
	DateArithParam(d time.Duration, subtract bool) any
}

// EscapeLike escapes LIKE wildcards in a literal fragment so that
// contains/startswith/endswith lookups match the characters verbatim.
// Backslash is the escape character on every supported dialect.
func EscapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
