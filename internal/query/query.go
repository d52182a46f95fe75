// Package query provides the composable query value the engine is driven
// through. Queries are immutable: every extension returns a new query, so
// composing eager calls never affects a previously returned value.
package query

import (
	"context"
	"fmt"

	"relgraph/internal/dbexec"
	"relgraph/internal/eager"
	"relgraph/internal/graph"
	"relgraph/internal/logging"
	"relgraph/internal/observability"
	"relgraph/internal/record"
	"relgraph/internal/schema"
	"relgraph/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Query selects records of one entity type, optionally with associations
// eager-loaded by either strategy.
type Query struct {
	registry  *schema.Registry
	entity    *schema.EntityType
	executor  dbexec.QueryExecutor
	metrics   *observability.EagerMetrics
	builder   sq.SelectBuilder
	eagerSpec *schema.EagerSpec
	plan      *graph.Plan
}

// New creates a query over an entity type. A nil entity produces an
// unbound query: it cannot execute or eager-load, and resolving its entity
// fails with schema.ErrNoEntityBound.
func New(registry *schema.Registry, entity *schema.EntityType, executor dbexec.QueryExecutor) *Query {
	q := &Query{
		registry: registry,
		entity:   entity,
		executor: executor,
	}
	if entity != nil {
		q.builder = sq.Select(sqlutil.QualifyAll(entity.Table, entity.ColumnNames())...).
			From(sqlutil.QuoteIdentifier(entity.Table))
	}
	return q
}

// clone copies the query shallowly. The builder is a value and the spec
// and plan are immutable, so the copy shares nothing mutable.
func (q *Query) clone() *Query {
	c := *q
	return &c
}

// Entity returns the query's single bound entity type, failing with
// schema.ErrNoEntityBound for raw or polymorphic queries.
func (q *Query) Entity() (*schema.EntityType, error) {
	if q.entity == nil {
		return nil, schema.ErrNoEntityBound
	}
	return q.entity, nil
}

// WithMetrics returns a query that records eager-loading metrics.
func (q *Query) WithMetrics(metrics *observability.EagerMetrics) *Query {
	nq := q.clone()
	nq.metrics = metrics
	return nq
}

// Where returns a query with an added WHERE condition (squirrel syntax).
func (q *Query) Where(pred any, args ...any) *Query {
	nq := q.clone()
	nq.builder = q.builder.Where(pred, args...)
	return nq
}

// OrderBy returns a query with added ORDER BY clauses.
func (q *Query) OrderBy(clauses ...string) *Query {
	nq := q.clone()
	nq.builder = q.builder.OrderBy(clauses...)
	return nq
}

// Limit returns a query with a LIMIT.
func (q *Query) Limit(n uint64) *Query {
	nq := q.clone()
	nq.builder = q.builder.Limit(n)
	return nq
}

// WithEager returns a query that batch-loads the requested associations
// after the base fetch (one query per association per nesting level).
// The arguments are validated against the schema registry immediately.
func (q *Query) WithEager(args ...any) (*Query, error) {
	entity, err := q.Entity()
	if err != nil {
		return nil, err
	}
	parsed, err := schema.NewEagerSpec(args...)
	if err != nil {
		return nil, err
	}
	if err := q.registry.ValidateEagerSpec(entity, parsed); err != nil {
		return nil, err
	}
	nq := q.clone()
	nq.eagerSpec = q.eagerSpec.Merge(parsed)
	return nq, nil
}

// WithEagerGraph returns a query that loads the requested associations
// through a single joined query, reconstructing the object graph from the
// flat rows after execution. The joins are woven into the query itself, so
// the plan is built now.
func (q *Query) WithEagerGraph(args ...any) (*Query, error) {
	entity, err := q.Entity()
	if err != nil {
		return nil, err
	}
	builder, plan, err := graph.Extend(q.plan, q.builder, q.registry, entity, "", nil, args...)
	if err != nil {
		return nil, err
	}
	nq := q.clone()
	nq.builder = builder
	nq.plan = plan
	return nq, nil
}

// SQL renders the query's SQL and arguments.
func (q *Query) SQL() (string, []any, error) {
	return q.builder.PlaceholderFormat(sq.Question).ToSql()
}

// All executes the query and returns its records with every requested
// association populated.
func (q *Query) All(ctx context.Context) ([]*record.Record, error) {
	entity, err := q.Entity()
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx).WithQueryID(uuid.NewString())
	ctx = logging.WithLogger(ctx, logger)
	ctx, span := observability.StartSpan(ctx, "query.all",
		attribute.String("entity", entity.Name),
		attribute.Bool("eager_graph", q.plan != nil),
	)
	defer func() { observability.FinishSpan(span, err) }()

	sqlStr, args, err := q.SQL()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}
	logger.Debug("executing query", "entity", entity.Name, "sql", sqlStr)

	rows, err := q.executor.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := q.postLoad(ctx, rows, entity)
	return records, err
}

// postLoad converts raw rows into records once per execution: graph
// queries reconstruct the object tree, eager queries scan then batch-load.
func (q *Query) postLoad(ctx context.Context, rows dbexec.Rows, entity *schema.EntityType) ([]*record.Record, error) {
	if q.plan != nil {
		raw, err := graph.ScanRows(rows, q.plan)
		if err != nil {
			return nil, err
		}
		records := graph.Reconstruct(raw, q.plan)
		q.metrics.RecordReconstruct(ctx, len(records))
		return records, nil
	}

	records, err := record.ScanRows(rows, entity)
	if err != nil {
		return nil, err
	}
	if !q.eagerSpec.IsEmpty() {
		loader := eager.NewLoader(q.registry, q.executor, q.metrics)
		if err := loader.Apply(ctx, records, q.eagerSpec, entity); err != nil {
			return nil, err
		}
	}
	return records, nil
}
