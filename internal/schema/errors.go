package schema

import "errors"

// Sentinel errors for the association model. All are raised at spec-build
// time and propagate synchronously; nothing in this package retries.
var (
	// ErrUnknownEntity indicates an entity type name with no registration.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrUnknownAssociation indicates an association name not declared on
	// the entity type.
	ErrUnknownAssociation = errors.New("unknown association")

	// ErrNotEagerLoadable indicates an association that carries a
	// per-instance filter, which cannot be batched because no concrete
	// owning instance exists when the spec is built.
	ErrNotEagerLoadable = errors.New("association not eager loadable")

	// ErrNoEntityBound indicates a query with no single resolvable entity
	// type (raw or polymorphic queries).
	ErrNoEntityBound = errors.New("query has no bound entity type")

	// ErrMalformedEagerArgument indicates an eager argument that is neither
	// an association name nor a nested mapping.
	ErrMalformedEagerArgument = errors.New("malformed eager argument")
)
