// Package eager implements the batched eager-loading strategy: one
// key-indexed fetch per association per nesting level, regardless of the
// number of owning records.
package eager

import (
	"context"
	"fmt"

	"relgraph/internal/dbexec"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/planner"
	"relgraph/internal/record"
	"relgraph/internal/schema"

	"go.opentelemetry.io/otel/attribute"
)

// Loader runs the batched strategy against a query executor.
type Loader struct {
	registry *schema.Registry
	executor dbexec.QueryExecutor
	metrics  *observability.EagerMetrics
}

// NewLoader creates a loader. metrics may be nil.
func NewLoader(registry *schema.Registry, executor dbexec.QueryExecutor, metrics *observability.EagerMetrics) *Loader {
	return &Loader{registry: registry, executor: executor, metrics: metrics}
}

// ownerIndex groups owning records by normalized grouping-key value and
// keeps the original typed values for SQL args.
type ownerIndex struct {
	byKey  map[string][]*record.Record
	values []any
}

func buildOwnerIndex(records []*record.Record, column string) *ownerIndex {
	idx := &ownerIndex{byKey: make(map[string][]*record.Record)}
	for _, rec := range records {
		v := rec.Get(column)
		if v == nil {
			continue
		}
		key := record.KeyString(v)
		if _, seen := idx.byKey[key]; !seen {
			idx.values = append(idx.values, v)
		}
		idx.byKey[key] = append(idx.byKey[key], rec)
	}
	return idx
}

// Apply populates the records' association fields per the spec, issuing
// exactly one fetch per association and cascading into each fetched record
// set with the caller's nested spec merged with the reflection's own
// default spec. It mutates the records in place.
//
// Fetches for different associations are independent; they are issued
// sequentially here, and attachment order across associations is not
// observable to callers.
func (l *Loader) Apply(ctx context.Context, records []*record.Record, spec *schema.EagerSpec, entity *schema.EntityType) error {
	if spec.IsEmpty() || len(records) == 0 {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, "eager.load",
		attribute.String("entity", entity.Name),
		attribute.Int("owner_count", len(records)),
	)
	var err error
	defer func() { observability.FinishSpan(span, err) }()

	// Grouping indexes are shared across associations keyed on the same
	// column, so scanning the owner set happens once per distinct key.
	indexes := make(map[string]*ownerIndex)
	index := func(column string) *ownerIndex {
		if idx, ok := indexes[column]; ok {
			return idx
		}
		idx := buildOwnerIndex(records, column)
		indexes[column] = idx
		return idx
	}

	for _, name := range spec.Names() {
		if err = l.loadAssociation(ctx, records, spec, entity, name, index); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadAssociation(
	ctx context.Context,
	records []*record.Record,
	spec *schema.EagerSpec,
	entity *schema.EntityType,
	name string,
	index func(string) *ownerIndex,
) error {
	assoc, err := l.registry.Association(entity, name)
	if err != nil {
		return err
	}
	if err := schema.ValidateEagerLoadable(entity, assoc); err != nil {
		return err
	}
	target, err := l.registry.Target(assoc)
	if err != nil {
		return err
	}

	groupColumn := assoc.ForeignKey
	if assoc.Kind.ToMany() {
		groupColumn = entity.SinglePrimaryKey()
		if groupColumn == "" {
			return fmt.Errorf("%w: entity %s", planner.ErrNoPrimaryKey, entity.Name)
		}
	}
	idx := index(groupColumn)

	var fetched []*record.Record
	var ownerKeys [][]any
	if len(idx.values) == 0 {
		// No owner carries a grouping-key value: the result is known to be
		// empty without a round trip.
		l.metrics.RecordFetchSkipped(ctx, name)
	} else {
		fetched, ownerKeys, err = l.fetch(ctx, assoc, target, idx.values)
		if err != nil {
			return err
		}
		l.metrics.RecordFetch(ctx, name, len(records), len(fetched))
		logging.FromContext(ctx).Debug("eager fetch",
			"entity", entity.Name,
			"association", name,
			"kind", assoc.Kind.String(),
			"owners", len(records),
			"rows", len(fetched),
		)
	}

	merged := spec.Branch(name).Merge(assoc.DefaultEager)
	if !merged.IsEmpty() && len(fetched) > 0 {
		if err := l.Apply(ctx, fetched, merged, target); err != nil {
			return err
		}
	}

	switch assoc.Kind {
	case schema.ManyToOne:
		l.attachManyToOne(records, assoc, target, fetched, idx)
	case schema.OneToMany:
		l.attachOneToMany(records, assoc, fetched, idx)
	case schema.ManyToMany:
		l.attachManyToMany(records, assoc, fetched, ownerKeys, idx)
	}
	return nil
}

// fetch issues the association's single batched query and scans the result.
// ownerKeys is populated for ManyToMany only: the link table's left-key
// value carried per row.
func (l *Loader) fetch(ctx context.Context, assoc *schema.Association, target *schema.EntityType, keyValues []any) ([]*record.Record, [][]any, error) {
	ctx, span := observability.StartSpan(ctx, "eager.fetch",
		attribute.String("association", assoc.Name),
		attribute.String("kind", assoc.Kind.String()),
	)
	var err error
	defer func() { observability.FinishSpan(span, err) }()

	var plan planner.SQLQuery
	switch assoc.Kind {
	case schema.ManyToOne:
		plan, err = planner.PlanManyToOneBatch(target, keyValues, assoc.Order)
	case schema.OneToMany:
		plan, err = planner.PlanOneToManyBatch(target, assoc.ForeignKey, keyValues, assoc.Order)
	case schema.ManyToMany:
		plan, err = planner.PlanManyToManyBatch(target, assoc.LinkTable, assoc.LeftKey, assoc.RightKey, keyValues, assoc.Order)
	default:
		err = fmt.Errorf("association %s has unknown kind %d", assoc.Name, assoc.Kind)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := l.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	if assoc.Kind == schema.ManyToMany {
		fetched, extras, scanErr := record.ScanRowsWithExtras(rows, target, 1)
		if scanErr != nil {
			err = scanErr
			return nil, nil, err
		}
		return fetched, extras, nil
	}
	fetched, scanErr := record.ScanRows(rows, target)
	if scanErr != nil {
		err = scanErr
		return nil, nil, err
	}
	return fetched, nil, nil
}

// attachManyToOne sets every owner's singular field: nil first so owners
// without a match observe a loaded null, then the matching target record.
func (l *Loader) attachManyToOne(owners []*record.Record, assoc *schema.Association, target *schema.EntityType, fetched []*record.Record, idx *ownerIndex) {
	for _, owner := range owners {
		owner.SetOne(assoc.Name, nil)
	}
	pk := target.SinglePrimaryKey()
	for _, rec := range fetched {
		key := record.KeyString(rec.Get(pk))
		for _, owner := range idx.byKey[key] {
			owner.SetOne(assoc.Name, rec)
		}
	}
}

func (l *Loader) attachOneToMany(owners []*record.Record, assoc *schema.Association, fetched []*record.Record, idx *ownerIndex) {
	for _, owner := range owners {
		owner.InitMany(assoc.Name)
	}
	reciprocal := l.registry.Reciprocal(assoc)
	for _, rec := range fetched {
		key := record.KeyString(rec.Get(assoc.ForeignKey))
		matched := idx.byKey[key]
		for _, owner := range matched {
			owner.Append(assoc.Name, rec)
		}
		if reciprocal != "" && len(matched) > 0 {
			rec.SetOne(reciprocal, matched[0])
		}
	}
}

func (l *Loader) attachManyToMany(owners []*record.Record, assoc *schema.Association, fetched []*record.Record, ownerKeys [][]any, idx *ownerIndex) {
	for _, owner := range owners {
		owner.InitMany(assoc.Name)
	}
	for i, rec := range fetched {
		key := record.KeyString(ownerKeys[i][0])
		for _, owner := range idx.byKey[key] {
			owner.Append(assoc.Name, rec)
		}
	}
}
