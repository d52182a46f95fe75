// Package observability holds the engine's metric instruments and span
// helpers.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EagerMetrics holds custom metrics for eager-loading passes.
type EagerMetrics struct {
	fetchCounter    metric.Int64Counter
	queriesSaved    metric.Int64Counter
	fetchSkipped    metric.Int64Counter
	ownerCount      metric.Int64Histogram
	batchResultRows metric.Int64Histogram
	rootRecords     metric.Int64Histogram
}

// InitEagerMetrics initializes the eager-loading metric instruments against
// the global meter provider.
func InitEagerMetrics() (*EagerMetrics, error) {
	meter := otel.Meter("relgraph")

	fetchCounter, err := meter.Int64Counter(
		"relgraph.eager.fetches",
		metric.WithDescription("Total number of batched association fetches issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch counter: %w", err)
	}

	queriesSaved, err := meter.Int64Counter(
		"relgraph.eager.queries_saved",
		metric.WithDescription("Queries avoided by batching relative to per-record loading"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queries saved counter: %w", err)
	}

	fetchSkipped, err := meter.Int64Counter(
		"relgraph.eager.fetches_skipped",
		metric.WithDescription("Association fetches skipped because no owner carried a key"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch skipped counter: %w", err)
	}

	ownerCount, err := meter.Int64Histogram(
		"relgraph.eager.owner_count",
		metric.WithDescription("Number of owning records covered by a single batched fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create owner count histogram: %w", err)
	}

	batchResultRows, err := meter.Int64Histogram(
		"relgraph.eager.batch_rows",
		metric.WithDescription("Rows returned by a batched association fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch rows histogram: %w", err)
	}

	rootRecords, err := meter.Int64Histogram(
		"relgraph.graph.root_records",
		metric.WithDescription("Canonical root records produced by a graph reconstruction"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create root records histogram: %w", err)
	}

	return &EagerMetrics{
		fetchCounter:    fetchCounter,
		queriesSaved:    queriesSaved,
		fetchSkipped:    fetchSkipped,
		ownerCount:      ownerCount,
		batchResultRows: batchResultRows,
		rootRecords:     rootRecords,
	}, nil
}

// RecordFetch records one issued batched fetch covering ownerCount records.
func (m *EagerMetrics) RecordFetch(ctx context.Context, association string, ownerCount, resultRows int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("association", association))
	m.fetchCounter.Add(ctx, 1, attrs)
	if ownerCount > 1 {
		m.queriesSaved.Add(ctx, int64(ownerCount-1), attrs)
	}
	m.ownerCount.Record(ctx, int64(ownerCount), attrs)
	m.batchResultRows.Record(ctx, int64(resultRows), attrs)
}

// RecordFetchSkipped records a fetch elided because no grouping key was set.
func (m *EagerMetrics) RecordFetchSkipped(ctx context.Context, association string) {
	if m == nil {
		return
	}
	m.fetchSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("association", association)))
}

// RecordReconstruct records the root record count of a reconstruction pass.
func (m *EagerMetrics) RecordReconstruct(ctx context.Context, rootCount int) {
	if m == nil {
		return
	}
	m.rootRecords.Record(ctx, int64(rootCount))
}
