package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"cinepulse/internal/infrastructure"
)

const (
	TracerName = "cinepulse.pipeline"
)

// Tracer provides OpenTelemetry instrumentation for stage transitions
type Tracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewTracer creates a stage tracer recording into the given metrics
func NewTracer(metrics *infrastructure.BusinessMetrics) *Tracer {
	return &Tracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// StartStage opens a span for one transition
func (t *Tracer) StartStage(ctx context.Context, d Domain, key string, op Operation) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("pipeline.%s.%s", d, op),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.domain", string(d)),
			attribute.String("pipeline.key", key),
			attribute.String("pipeline.operation", string(op)),
		),
	)
	if t.metrics != nil {
		t.metrics.PipelineActiveStages.Add(ctx, 1, metric.WithAttributes(
			attribute.String("domain", string(d)),
		))
	}
	return ctx, span
}

// EndStage records the outcome of a transition and closes its span
func (t *Tracer) EndStage(ctx context.Context, span trace.Span, d Domain, op Operation, duration time.Duration, err error) {
	if t == nil {
		return
	}
	defer span.End()

	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("pipeline.error_kind", string(KindOf(err))))
	} else {
		span.SetStatus(codes.Ok, "stage committed")
	}
	span.SetAttributes(attribute.Float64("pipeline.duration_seconds", duration.Seconds()))

	if t.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("domain", string(d)),
		attribute.String("operation", string(op)),
		attribute.String("status", status),
	)
	t.metrics.PipelineStageExecutions.Add(ctx, 1, attrs)
	t.metrics.PipelineStageDuration.Record(ctx, duration.Seconds(), attrs)
	t.metrics.PipelineActiveStages.Add(ctx, -1, metric.WithAttributes(
		attribute.String("domain", string(d)),
	))
	if err != nil {
		t.metrics.PipelineStageFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("domain", string(d)),
			attribute.String("operation", string(op)),
			attribute.String("kind", string(KindOf(err))),
		))
	}
}

// RecordArtifact counts rendered artifact bytes
func (t *Tracer) RecordArtifact(ctx context.Context, d Domain, artifactType string, size int) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.PipelineArtifactBytes.Add(ctx, int64(size), metric.WithAttributes(
		attribute.String("domain", string(d)),
		attribute.String("artifact", artifactType),
	))
}
