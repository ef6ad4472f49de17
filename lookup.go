package relq

import (
	"fmt"
	"strings"
)

// Lookup identifies the comparison kind of a predicate leaf. It is the
// `__suffix` of a lookup string; a bare field path means LookupExact.
type Lookup string

const (
	LookupExact       Lookup = "exact"
	LookupIExact      Lookup = "iexact"
	LookupGT          Lookup = "gt"
	LookupGTE         Lookup = "gte"
	LookupLT          Lookup = "lt"
	LookupLTE         Lookup = "lte"
	LookupIn          Lookup = "in"
	LookupContains    Lookup = "contains"
	LookupIContains   Lookup = "icontains"
	LookupStartsWith  Lookup = "startswith"
	LookupIStartsWith Lookup = "istartswith"
	LookupEndsWith    Lookup = "endswith"
	LookupIEndsWith   Lookup = "iendswith"
	LookupIsNull      Lookup = "isnull"
	LookupRange       Lookup = "range"
)

var lookups = map[string]Lookup{
	"exact":       LookupExact,
	"iexact":      LookupIExact,
	"gt":          LookupGT,
	"gte":         LookupGTE,
	"lt":          LookupLT,
	"lte":         LookupLTE,
	"in":          LookupIn,
	"contains":    LookupContains,
	"icontains":   LookupIContains,
	"startswith":  LookupStartsWith,
	"istartswith": LookupIStartsWith,
	"endswith":    LookupEndsWith,
	"iendswith":   LookupIEndsWith,
	"isnull":      LookupIsNull,
	"range":       LookupRange,
}

// parseLookup splits a lookup string such as "related.amount__gt" into
// its dotted path segments and comparison kind. A missing or unknown
// suffix means exact match; an unknown suffix that is not a valid
// identifier is an error.
func parseLookup(s string) ([]string, Lookup, error) {
	path := s
	lk := LookupExact

	if idx := strings.LastIndex(s, "__"); idx >= 0 {
		if known, ok := lookups[s[idx+2:]]; ok {
			path = s[:idx]
			lk = known
		}
	}

	if path == "" {
		return nil, "", fmt.Errorf("empty field path in lookup %q", s)
	}

	parts := strings.Split(path, ".")
	for _, part := range parts {
		if !isValidIdentifier(part) {
			return nil, "", fmt.Errorf("invalid field path segment %q in lookup %q", part, s)
		}
	}
	return parts, lk, nil
}
