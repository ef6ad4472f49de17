package relq

import "errors"

// Sentinel errors returned by query construction and compilation.
// Callers match them with errors.Is; wrapped forms carry the offending
// lookup or alias.
var (
	// ErrUnaliasedExpressionAggregate is returned when an aggregate targets
	// a composite expression but no output alias was supplied. A default
	// alias can only be derived from a plain field path.
	ErrUnaliasedExpressionAggregate = errors.New("aggregating over an expression requires an explicit alias")

	// ErrJoinedFieldDisallowed is returned when a field path crosses a
	// relation in a context where joins are not permitted.
	ErrJoinedFieldDisallowed = errors.New("joined field reference not permitted")

	// ErrAggregateOverAggregate is returned when a per-row annotation
	// targets an existing aggregate alias. Only summary aggregates may
	// wrap an annotation.
	ErrAggregateOverAggregate = errors.New("cannot aggregate over an aggregate")

	// ErrConditionOnAggregatedField is returned when a conditional
	// aggregate targets an annotated field. Conditions apply before
	// aggregation, so the combination is structurally impossible.
	ErrConditionOnAggregatedField = errors.New("cannot use aggregated fields in conditional aggregates")

	// ErrConditionReferencesAnnotation is returned when an aggregate
	// condition references an annotated field. Conditional aggregation
	// must stay within WHERE-clause semantics.
	ErrConditionReferencesAnnotation = errors.New("condition cannot reference annotated fields")
)
