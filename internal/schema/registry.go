package schema

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// Registry is the schema registry collaborator: it resolves entity types
// and association reflections and fills in conventional key names.
type Registry struct {
	entities  map[string]*EntityType
	order     []string
	logger    *slog.Logger
	finalized bool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entities: make(map[string]*EntityType),
		logger:   logger,
	}
}

// Register adds an entity type. The backing table name defaults to the
// pluralized entity name. Association key defaulting happens in Finalize,
// once every target type is known.
func (r *Registry) Register(entity *EntityType) error {
	if entity.Name == "" {
		return fmt.Errorf("entity type requires a name")
	}
	if _, exists := r.entities[entity.Name]; exists {
		return fmt.Errorf("entity type %s already registered", entity.Name)
	}
	if entity.Table == "" {
		entity.Table = inflection.Plural(entity.Name)
	}
	seen := make(map[string]struct{}, len(entity.Associations))
	for _, assoc := range entity.Associations {
		if assoc.Name == "" {
			return fmt.Errorf("entity type %s declares an unnamed association", entity.Name)
		}
		if _, dup := seen[assoc.Name]; dup {
			return fmt.Errorf("entity type %s declares association %s twice", entity.Name, assoc.Name)
		}
		seen[assoc.Name] = struct{}{}
	}
	r.entities[entity.Name] = entity
	r.order = append(r.order, entity.Name)
	r.finalized = false
	return nil
}

// Entity resolves an entity type by name.
func (r *Registry) Entity(name string) (*EntityType, error) {
	entity, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return entity, nil
}

// Entities returns the registered entity types in registration order.
func (r *Registry) Entities() []*EntityType {
	entities := make([]*EntityType, 0, len(r.order))
	for _, name := range r.order {
		entities = append(entities, r.entities[name])
	}
	return entities
}

// Finalize fills in conventional association keys and infers reciprocals.
// It must run after every entity type is registered and before the first
// resolve; Association calls it lazily when needed.
//
// Conventions follow the usual relational naming: the ManyToOne foreign
// key is "<name>_id" on the owner, the OneToMany foreign key is
// "<singular owner table>_id" on the target, and a ManyToMany link table
// is the two table names sorted and joined with "_", with
// "<singular table>_id" keys on both sides.
func (r *Registry) Finalize() error {
	if r.finalized {
		return nil
	}
	for _, name := range r.order {
		entity := r.entities[name]
		for _, assoc := range entity.Associations {
			if err := r.normalize(entity, assoc); err != nil {
				return err
			}
		}
	}
	// Reciprocal inference needs every ManyToOne foreign key normalized
	// first, so it runs as a second pass.
	for _, name := range r.order {
		entity := r.entities[name]
		for _, assoc := range entity.Associations {
			if assoc.Kind != OneToMany || assoc.Reciprocal != "" {
				continue
			}
			if recip := r.inferReciprocal(entity, assoc); recip != "" {
				assoc.Reciprocal = recip
				r.logger.Debug("inferred reciprocal association",
					slog.String("entity", entity.Name),
					slog.String("association", assoc.Name),
					slog.String("reciprocal", recip),
				)
			}
		}
	}
	r.finalized = true
	return nil
}

func (r *Registry) normalize(owner *EntityType, assoc *Association) error {
	if assoc.Target == "" {
		assoc.Target = inflection.Singular(assoc.Name)
	}
	target, ok := r.entities[assoc.Target]
	if !ok {
		return fmt.Errorf("%w: association %s.%s targets %s", ErrUnknownEntity, owner.Name, assoc.Name, assoc.Target)
	}
	switch assoc.Kind {
	case ManyToOne:
		if assoc.ForeignKey == "" {
			assoc.ForeignKey = inflection.Singular(assoc.Name) + "_id"
		}
	case OneToMany:
		if assoc.ForeignKey == "" {
			assoc.ForeignKey = inflection.Singular(owner.Table) + "_id"
		}
	case ManyToMany:
		if assoc.LinkTable == "" {
			tables := []string{owner.Table, target.Table}
			sort.Strings(tables)
			assoc.LinkTable = strings.Join(tables, "_")
		}
		if assoc.LeftKey == "" {
			assoc.LeftKey = inflection.Singular(owner.Table) + "_id"
		}
		if assoc.RightKey == "" {
			assoc.RightKey = inflection.Singular(target.Table) + "_id"
		}
	default:
		return fmt.Errorf("association %s.%s has unknown kind %d", owner.Name, assoc.Name, assoc.Kind)
	}
	return nil
}

// inferReciprocal finds the target's ManyToOne association pointing back
// at the owner through the same foreign key.
func (r *Registry) inferReciprocal(owner *EntityType, assoc *Association) string {
	target, ok := r.entities[assoc.Target]
	if !ok {
		return ""
	}
	for _, candidate := range target.Associations {
		if candidate.Kind == ManyToOne &&
			candidate.Target == owner.Name &&
			candidate.ForeignKey == assoc.ForeignKey {
			return candidate.Name
		}
	}
	return ""
}

// Association resolves the named association reflection on the entity type.
func (r *Registry) Association(entity *EntityType, name string) (*Association, error) {
	if err := r.Finalize(); err != nil {
		return nil, err
	}
	for _, assoc := range entity.Associations {
		if assoc.Name == name {
			return assoc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnknownAssociation, name, entity.Name)
}

// Target resolves an association's associated entity type.
func (r *Registry) Target(assoc *Association) (*EntityType, error) {
	return r.Entity(assoc.Target)
}

// Reciprocal returns the association's reciprocal name, or "".
func (r *Registry) Reciprocal(assoc *Association) string {
	if assoc.Kind != OneToMany {
		return ""
	}
	return assoc.Reciprocal
}

// ValidateEagerLoadable fails when the reflection carries a per-instance
// filter: no concrete owning instance exists at spec-build time.
func ValidateEagerLoadable(entity *EntityType, assoc *Association) error {
	if assoc.Filter != nil {
		return fmt.Errorf("%w: %s on %s carries a per-instance filter", ErrNotEagerLoadable, assoc.Name, entity.Name)
	}
	return nil
}

// ValidateEagerSpec walks the spec resolving every requested association
// against the entity graph, so unknown or blocked associations surface at
// spec-build time rather than during loading.
func (r *Registry) ValidateEagerSpec(entity *EntityType, spec *EagerSpec) error {
	if spec.IsEmpty() {
		return nil
	}
	for _, name := range spec.Names() {
		assoc, err := r.Association(entity, name)
		if err != nil {
			return err
		}
		if err := ValidateEagerLoadable(entity, assoc); err != nil {
			return err
		}
		nested := spec.Branch(name)
		if nested.IsEmpty() {
			continue
		}
		target, err := r.Target(assoc)
		if err != nil {
			return err
		}
		if err := r.ValidateEagerSpec(target, nested); err != nil {
			return err
		}
	}
	return nil
}
