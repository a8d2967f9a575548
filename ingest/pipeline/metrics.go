package pipeline

import (
	"context"

	"pricetrack/ingest"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("ingest/pipeline")

var pagesFetched, _ = meter.Int64Counter("pages_fetched")
var recordsProcessed, _ = meter.Int64Counter("records_processed")
var recordsSkipped, _ = meter.Int64Counter("records_skipped")
var categoryFailures, _ = meter.Int64Counter("category_failures")

func taskAttrs(task ingest.CategoryTask) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("source", string(task.Source)),
		attribute.String("category", task.Category),
	)
}

func observePage(ctx context.Context, task ingest.CategoryTask) {
	pagesFetched.Add(ctx, 1, taskAttrs(task))
}

func observeRecords(ctx context.Context, task ingest.CategoryTask, n int) {
	recordsProcessed.Add(ctx, int64(n), taskAttrs(task))
}

func observeSkip(ctx context.Context, task ingest.CategoryTask) {
	recordsSkipped.Add(ctx, 1, taskAttrs(task))
}

func observeFailure(ctx context.Context, task ingest.CategoryTask) {
	categoryFailures.Add(ctx, 1, taskAttrs(task))
}
