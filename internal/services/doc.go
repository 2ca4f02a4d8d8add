// Package services sits between the HTTP handlers and the pipeline
// controller. It turns uploads and request DTOs into pipeline calls, merges
// omitted analysis parameters with the configured defaults, and records
// ingestion metrics.
//
// # Service Pattern
//
// Services take their collaborators through the constructor and log through
// an injected *slog.Logger:
//
//	svc := services.NewPipelineService(controller, metrics, logger)
//	rec, err := svc.Upload(ctx, pipeline.DomainRegion, "us", "weeks.csv", file)
//
// Every error returned is either a *pipeline.Error or wraps one, so the HTTP
// layer maps them uniformly to problem details.
package services
