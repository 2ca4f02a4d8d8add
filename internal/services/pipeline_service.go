package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cinepulse/internal/clustering"
	"cinepulse/internal/dataprocessing"
	"cinepulse/internal/forecast"
	"cinepulse/internal/infrastructure"
	"cinepulse/internal/pipeline"
	"cinepulse/pkg/contracts/domain"
)

// AnalyzeRequest holds optional clustering overrides
type AnalyzeRequest struct {
	K        *int   `json:"k,omitempty" validate:"omitempty,min=1,max=100"`
	Seed     *int64 `json:"seed,omitempty"`
	Restarts *int   `json:"restarts,omitempty" validate:"omitempty,min=1,max=100"`
}

// ForecastRequest holds optional ARIMA overrides
type ForecastRequest struct {
	P       *int `json:"p,omitempty" validate:"omitempty,min=0,max=10"`
	D       *int `json:"d,omitempty" validate:"omitempty,min=0,max=2"`
	Q       *int `json:"q,omitempty" validate:"omitempty,min=0,max=10"`
	Horizon *int `json:"horizon,omitempty" validate:"omitempty,min=1,max=365"`
}

// LoadRequest is a JSON payload: a table for catalog and region, or text
// entries for item
type LoadRequest struct {
	Columns []string   `json:"columns,omitempty" validate:"required_with=Rows"`
	Rows    [][]string `json:"rows,omitempty"`
	Text    []string   `json:"text,omitempty"`
	Source  string     `json:"source,omitempty" validate:"max=256"`
}

// Payload converts the request into a payload of the domain's kind
func (r LoadRequest) Payload(d pipeline.Domain) domain.Payload {
	var p domain.Payload
	if d.PayloadKind() == domain.PayloadKindText {
		p = domain.TextPayload(r.Text)
	} else {
		p = domain.TablePayload(&domain.Frame{Columns: r.Columns, Rows: r.Rows})
	}
	p.Source = r.Source
	return p
}

// PipelineService runs pipeline operations on behalf of the transport layer
type PipelineService struct {
	controller *pipeline.Controller
	metrics    *infrastructure.BusinessMetrics
	logger     *slog.Logger
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(controller *pipeline.Controller, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		controller: controller,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "pipeline_service")),
	}
}

// Controller returns the underlying controller
func (s *PipelineService) Controller() *pipeline.Controller {
	return s.controller
}

// Upload parses an uploaded file and loads it as the key's raw payload
func (s *PipelineService) Upload(ctx context.Context, d pipeline.Domain, key, filename string, r io.Reader) (pipeline.Record, error) {
	counter := &countingReader{r: r}
	payload, err := dataprocessing.ParsePayload(counter, filename, d.PayloadKind())
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return pipeline.Record{}, err
		}
		s.logger.WarnContext(ctx, "upload rejected",
			slog.String("domain", string(d)),
			slog.String("key", key),
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		return pipeline.Record{}, &pipeline.Error{
			Kind:      pipeline.KindInvalidParameter,
			Domain:    d,
			Key:       key,
			Operation: pipeline.OpLoad,
			Reason:    "upload could not be parsed",
			Cause:     err,
		}
	}
	s.metrics.RecordUpload(ctx, string(d), counter.n)

	rec, err := s.controller.Load(ctx, d, key, payload)
	if err != nil {
		return pipeline.Record{}, err
	}
	s.logger.InfoContext(ctx, "payload uploaded",
		slog.String("domain", string(d)),
		slog.String("key", rec.Key),
		slog.String("filename", filename),
		slog.Int64("bytes", counter.n),
		slog.Int("rows", rec.Raw.Len()),
		slog.Uint64("version", rec.Version))
	return rec, nil
}

// LoadJSON loads a payload posted as JSON
func (s *PipelineService) LoadJSON(ctx context.Context, d pipeline.Domain, key string, req LoadRequest) (pipeline.Record, error) {
	return s.controller.Load(ctx, d, key, req.Payload(d))
}

// Clean runs the clean stage
func (s *PipelineService) Clean(ctx context.Context, d pipeline.Domain, key string) (pipeline.Record, error) {
	return s.controller.Clean(ctx, d, key)
}

// Analyze clusters the catalog, filling omitted parameters from the defaults
func (s *PipelineService) Analyze(ctx context.Context, key string, req AnalyzeRequest) (pipeline.Record, error) {
	return s.controller.Analyze(ctx, key, s.ClusterParams(req))
}

// ClusterParams merges req over the configured clustering defaults
func (s *PipelineService) ClusterParams(req AnalyzeRequest) clustering.Params {
	p := s.controller.Config().Cluster
	if req.K != nil {
		p.K = *req.K
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	if req.Restarts != nil {
		p.Restarts = *req.Restarts
	}
	return p
}

// Forecast projects the region series, filling omitted parameters from the defaults
func (s *PipelineService) Forecast(ctx context.Context, key string, req ForecastRequest) (pipeline.Record, error) {
	return s.controller.Forecast(ctx, key, s.ForecastParams(req))
}

// ForecastParams merges req over the configured forecast defaults
func (s *PipelineService) ForecastParams(req ForecastRequest) forecast.Params {
	p := s.controller.Config().Forecast
	if req.P != nil {
		p.Order.P = *req.P
	}
	if req.D != nil {
		p.Order.D = *req.D
	}
	if req.Q != nil {
		p.Order.Q = *req.Q
	}
	if req.Horizon != nil {
		p.Horizon = *req.Horizon
	}
	return p
}

// Tokenize tallies the item's cleaned comments
func (s *PipelineService) Tokenize(ctx context.Context, key string) (pipeline.Record, error) {
	return s.controller.Tokenize(ctx, key)
}

// Render renders and caches an artifact
func (s *PipelineService) Render(ctx context.Context, d pipeline.Domain, key, artifactType string) (pipeline.Artifact, error) {
	start := time.Now()
	art, err := s.controller.Render(ctx, d, key, artifactType)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	s.logger.InfoContext(ctx, "artifact rendered",
		slog.String("domain", string(d)),
		slog.String("key", key),
		slog.String("type", artifactType),
		slog.Int("size", art.Size),
		slog.Duration("duration", time.Since(start)))
	return art, nil
}

// Artifact returns a cached artifact
func (s *PipelineService) Artifact(d pipeline.Domain, key, artifactType string) (pipeline.Artifact, error) {
	return s.controller.Artifact(d, key, artifactType)
}

// Export flattens a committed stage into a table
func (s *PipelineService) Export(d pipeline.Domain, key string, stage pipeline.Stage) (*domain.Frame, error) {
	return s.controller.Export(d, key, stage)
}

// Summary returns the JSON view of a record
func (s *PipelineService) Summary(d pipeline.Domain, key string) (pipeline.RecordSummary, error) {
	rec, err := s.controller.Record(d, key)
	if err != nil {
		return pipeline.RecordSummary{}, err
	}
	return rec.Summary(), nil
}

// Result returns the committed analysis result of a record
func (s *PipelineService) Result(d pipeline.Domain, key string) (*pipeline.Result, error) {
	rec, err := s.controller.Record(d, key)
	if err != nil {
		return nil, err
	}
	if rec.Result == nil {
		return nil, pipeline.NewPrerequisiteError(d, rec.Key, d.AnalysisOp(), pipeline.StageResult)
	}
	return rec.Result, nil
}

// Keys lists the keys of a domain
func (s *PipelineService) Keys(d pipeline.Domain) []string {
	return s.controller.Keys(d)
}

// ArtifactTypes lists the renderable artifact types of a domain
func (s *PipelineService) ArtifactTypes(d pipeline.Domain) []string {
	return s.controller.Renderers().Types(d)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
