package schema

import sq "github.com/Masterminds/squirrel"

// Kind classifies the shape of an association.
type Kind int

const (
	// ManyToOne: the owning record holds a foreign key referencing one
	// record of the target type.
	ManyToOne Kind = iota
	// OneToMany: the target type holds a foreign key referencing the
	// owning record; inverse of ManyToOne.
	OneToMany
	// ManyToMany: the two types are linked through a link table carrying
	// both sides' keys.
	ManyToMany
)

// String returns a human-readable representation of the association kind.
func (k Kind) String() string {
	switch k {
	case ManyToOne:
		return "many_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ToMany reports whether the association yields a list field.
func (k Kind) ToMany() bool {
	return k == OneToMany || k == ManyToMany
}

// Order is one ORDER BY term of an association's declared ordering.
type Order struct {
	Column string
	Desc   bool
}

// Filter narrows an association's fetch for one concrete owning record.
// A reflection carrying a filter cannot be eager loaded: at spec-build
// time no owning instance exists to evaluate it against.
type Filter func(owner map[string]any) sq.Sqlizer

// Association is the reflection describing one named relationship of an
// entity type. Zero-valued key fields are filled in by Registry.Finalize
// from naming conventions.
type Association struct {
	// Name is the association name, unique per entity type.
	Name string
	// Kind is the relationship shape.
	Kind Kind
	// Target is the associated entity type name. Defaults to the
	// singularized association name.
	Target string
	// ForeignKey is the key column: on the owner for ManyToOne, on the
	// target for OneToMany. Unused for ManyToMany.
	ForeignKey string
	// LinkTable, LeftKey and RightKey describe the ManyToMany link table:
	// LeftKey references the owner's primary key, RightKey the target's.
	LinkTable string
	LeftKey   string
	RightKey  string
	// Order is the declared ordering applied to every fetch.
	Order []Order
	// Reciprocal names the inverse ManyToOne association on the target,
	// used to back-reference the owner from loaded children. Only
	// meaningful for OneToMany; inferred when empty.
	Reciprocal string
	// DefaultEager is the reflection's own nested eager spec, merged with
	// the caller's spec on every cascade.
	DefaultEager *EagerSpec
	// Filter is the optional per-instance predicate.
	Filter Filter
}
