// Package graph implements joined-query eager loading: it expands an eager
// request into unique join aliases woven into one SQL statement, then
// reconstructs the deduplicated object tree from the flat joined rows.
package graph

import (
	"fmt"

	"relgraph/internal/planner"
	"relgraph/internal/schema"
	"relgraph/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Plan describes every join added for graph-based eager loading. Plans are
// value-like: Extend returns an extended copy, so a query composed from a
// previously returned query value never observes later extensions.
type Plan struct {
	masterAlias  string
	masterEntity *schema.EntityType
	entries      map[string]*Entry
	order        []string
	selects      []SelectColumn
	aliases      map[string]struct{}
}

// Entry is the plan's metadata for one join alias.
type Entry struct {
	// Alias is the unique table alias in the joined query.
	Alias string
	// Association is the reflection this alias loads.
	Association *schema.Association
	// Entity is the associated entity type.
	Entity *schema.EntityType
	// Ancestors is the ordered ancestor-alias chain; empty for an alias
	// directly under the master.
	Ancestors []string
	// Reciprocal is the back-reference association name on the child,
	// recorded for OneToMany aliases only.
	Reciprocal string
}

// SelectColumn is one entry of the joined query's select list.
type SelectColumn struct {
	Alias  string
	Column string
}

// NewPlan creates a plan holding only the master alias (the query's own
// base table) at depth zero, with the master's columns selected.
func NewPlan(entity *schema.EntityType) *Plan {
	plan := &Plan{
		masterAlias:  entity.Table,
		masterEntity: entity,
		entries:      make(map[string]*Entry),
		aliases:      map[string]struct{}{entity.Table: {}},
	}
	for _, col := range entity.ColumnNames() {
		plan.selects = append(plan.selects, SelectColumn{Alias: entity.Table, Column: col})
	}
	return plan
}

// MasterAlias returns the alias of the query's base table.
func (p *Plan) MasterAlias() string {
	return p.masterAlias
}

// MasterEntity returns the entity type of the query's base table.
func (p *Plan) MasterEntity() *schema.EntityType {
	return p.masterEntity
}

// Selects returns the joined query's select list in select order.
func (p *Plan) Selects() []SelectColumn {
	return p.selects
}

// Entries returns the plan entries in registration order.
func (p *Plan) Entries() []*Entry {
	entries := make([]*Entry, len(p.order))
	for i, alias := range p.order {
		entries[i] = p.entries[alias]
	}
	return entries
}

// EntityFor resolves the entity type scanned under an alias.
func (p *Plan) EntityFor(alias string) *schema.EntityType {
	if alias == p.masterAlias {
		return p.masterEntity
	}
	if entry, ok := p.entries[alias]; ok {
		return entry.Entity
	}
	return nil
}

// clone copies the plan so extension never mutates the original.
func (p *Plan) clone() *Plan {
	entries := make(map[string]*Entry, len(p.entries))
	for alias, entry := range p.entries {
		entries[alias] = entry
	}
	aliases := make(map[string]struct{}, len(p.aliases))
	for alias := range p.aliases {
		aliases[alias] = struct{}{}
	}
	return &Plan{
		masterAlias:  p.masterAlias,
		masterEntity: p.masterEntity,
		entries:      entries,
		order:        append([]string(nil), p.order...),
		selects:      append([]SelectColumn(nil), p.selects...),
		aliases:      aliases,
	}
}

// allocateAlias returns the requested alias, appending numeric suffixes
// (_0, _1, ...) until it does not collide with an alias already in the
// join set.
func (p *Plan) allocateAlias(name string) string {
	alias := name
	for i := 0; ; i++ {
		if _, taken := p.aliases[alias]; !taken {
			p.aliases[alias] = struct{}{}
			return alias
		}
		alias = fmt.Sprintf("%s_%d", name, i)
	}
}

// Extend expands the requested associations into joins on the builder and
// registers a plan entry per allocated alias, recursing into nested
// requests. A nil plan starts from the master-only plan for the entity.
// The returned plan and builder are extended copies; the inputs are left
// untouched.
func Extend(
	plan *Plan,
	builder sq.SelectBuilder,
	registry *schema.Registry,
	entity *schema.EntityType,
	parentAlias string,
	ancestors []string,
	args ...any,
) (sq.SelectBuilder, *Plan, error) {
	spec, err := schema.NewEagerSpec(args...)
	if err != nil {
		return builder, plan, err
	}
	if plan == nil {
		plan = NewPlan(entity)
	} else {
		plan = plan.clone()
	}
	if parentAlias == "" {
		parentAlias = plan.masterAlias
	}
	builder, err = extendSpec(plan, builder, registry, entity, parentAlias, ancestors, spec)
	if err != nil {
		return builder, plan, err
	}
	return builder, plan, nil
}

func extendSpec(
	plan *Plan,
	builder sq.SelectBuilder,
	registry *schema.Registry,
	entity *schema.EntityType,
	parentAlias string,
	ancestors []string,
	spec *schema.EagerSpec,
) (sq.SelectBuilder, error) {
	for _, name := range spec.Names() {
		assoc, err := registry.Association(entity, name)
		if err != nil {
			return builder, err
		}
		if err := schema.ValidateEagerLoadable(entity, assoc); err != nil {
			return builder, err
		}
		target, err := registry.Target(assoc)
		if err != nil {
			return builder, err
		}

		alias := plan.allocateAlias(name)
		builder, err = joinAssociation(plan, builder, entity, assoc, target, parentAlias, alias)
		if err != nil {
			return builder, err
		}

		entry := &Entry{
			Alias:       alias,
			Association: assoc,
			Entity:      target,
			Ancestors:   append([]string(nil), ancestors...),
		}
		if assoc.Kind == schema.OneToMany {
			entry.Reciprocal = registry.Reciprocal(assoc)
		}
		plan.entries[alias] = entry
		plan.order = append(plan.order, alias)
		for _, col := range target.ColumnNames() {
			plan.selects = append(plan.selects, SelectColumn{Alias: alias, Column: col})
		}
		builder = builder.Columns(sqlutil.QualifyAll(alias, target.ColumnNames())...)

		if nested := spec.Branch(name); !nested.IsEmpty() {
			builder, err = extendSpec(plan, builder, registry, target, alias, append(append([]string(nil), ancestors...), alias), nested)
			if err != nil {
				return builder, err
			}
		}
	}
	return builder, nil
}

func joinAssociation(
	plan *Plan,
	builder sq.SelectBuilder,
	owner *schema.EntityType,
	assoc *schema.Association,
	target *schema.EntityType,
	parentAlias, alias string,
) (sq.SelectBuilder, error) {
	targetPK := target.SinglePrimaryKey()
	ownerPK := owner.SinglePrimaryKey()

	switch assoc.Kind {
	case schema.ManyToOne:
		if targetPK == "" {
			return builder, fmt.Errorf("%w: entity %s", planner.ErrNoPrimaryKey, target.Name)
		}
		builder = builder.LeftJoin(fmt.Sprintf(
			"%s AS %s ON %s = %s",
			sqlutil.QuoteIdentifier(target.Table),
			sqlutil.QuoteIdentifier(alias),
			sqlutil.Qualify(alias, targetPK),
			sqlutil.Qualify(parentAlias, assoc.ForeignKey),
		))
	case schema.OneToMany:
		if ownerPK == "" {
			return builder, fmt.Errorf("%w: entity %s", planner.ErrNoPrimaryKey, owner.Name)
		}
		builder = builder.LeftJoin(fmt.Sprintf(
			"%s AS %s ON %s = %s",
			sqlutil.QuoteIdentifier(target.Table),
			sqlutil.QuoteIdentifier(alias),
			sqlutil.Qualify(alias, assoc.ForeignKey),
			sqlutil.Qualify(parentAlias, ownerPK),
		))
	case schema.ManyToMany:
		if ownerPK == "" {
			return builder, fmt.Errorf("%w: entity %s", planner.ErrNoPrimaryKey, owner.Name)
		}
		if targetPK == "" {
			return builder, fmt.Errorf("%w: entity %s", planner.ErrNoPrimaryKey, target.Name)
		}
		linkAlias := plan.allocateAlias(assoc.LinkTable)
		builder = builder.LeftJoin(fmt.Sprintf(
			"%s AS %s ON %s = %s",
			sqlutil.QuoteIdentifier(assoc.LinkTable),
			sqlutil.QuoteIdentifier(linkAlias),
			sqlutil.Qualify(linkAlias, assoc.LeftKey),
			sqlutil.Qualify(parentAlias, ownerPK),
		))
		builder = builder.LeftJoin(fmt.Sprintf(
			"%s AS %s ON %s = %s",
			sqlutil.QuoteIdentifier(target.Table),
			sqlutil.QuoteIdentifier(alias),
			sqlutil.Qualify(alias, targetPK),
			sqlutil.Qualify(linkAlias, assoc.RightKey),
		))
	default:
		return builder, fmt.Errorf("association %s has unknown kind %d", assoc.Name, assoc.Kind)
	}
	return builder, nil
}
