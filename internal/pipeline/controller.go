package pipeline

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"cinepulse/internal/clustering"
	"cinepulse/internal/forecast"
	"cinepulse/internal/textnorm"
	"cinepulse/pkg/contracts/domain"
)

// Clusterer partitions cleaned catalog rows
type Clusterer interface {
	Cluster(ctx context.Context, rows []domain.CatalogRow, p clustering.Params) (*domain.ClusterSummary, error)
}

// Forecaster projects cleaned region series
type Forecaster interface {
	Forecast(ctx context.Context, points []domain.RegionPoint, p forecast.Params) (*domain.ForecastSummary, error)
}

// Config holds controller defaults
type Config struct {
	Cluster      clustering.Params
	Forecast     forecast.Params
	StageTimeout time.Duration
}

// DefaultConfig returns the default controller configuration
func DefaultConfig() Config {
	return Config{
		Cluster:      clustering.DefaultParams(),
		Forecast:     forecast.DefaultParams(),
		StageTimeout: DefaultStageTimeout,
	}
}

// Controller enforces stage prerequisites and per-key mutual exclusion on
// top of a Store. Transitions on distinct keys never wait on each other.
type Controller struct {
	store      *Store
	locks      *keyLocks
	cfg        Config
	clusterer  Clusterer
	forecaster Forecaster
	normalizer *textnorm.Normalizer
	segmenter  textnorm.Segmenter
	renderers  *Registry
	events     EventSink
	tracer     *Tracer
	logger     *slog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithEvents sets the sink receiving stage events
func WithEvents(sink EventSink) Option {
	return func(c *Controller) { c.events = sink }
}

// WithTracer enables OpenTelemetry instrumentation
func WithTracer(t *Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithRenderers sets the artifact renderer registry
func WithRenderers(r *Registry) Option {
	return func(c *Controller) { c.renderers = r }
}

// WithClusterer replaces the clustering engine
func WithClusterer(cl Clusterer) Option {
	return func(c *Controller) { c.clusterer = cl }
}

// WithForecaster replaces the forecast engine
func WithForecaster(f Forecaster) Option {
	return func(c *Controller) { c.forecaster = f }
}

// WithNormalizer replaces the comment normalizer
func WithNormalizer(n *textnorm.Normalizer) Option {
	return func(c *Controller) { c.normalizer = n }
}

// WithSegmenter replaces the token segmenter used by Tokenize
func WithSegmenter(s textnorm.Segmenter) Option {
	return func(c *Controller) { c.segmenter = s }
}

// NewController creates a controller over store
func NewController(store *Store, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		locks:  newKeyLocks(),
		cfg:    cfg,
		events: nopSink{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "pipeline"))
	if c.clusterer == nil {
		c.clusterer = clustering.NewEngine(c.logger)
	}
	if c.forecaster == nil {
		c.forecaster = forecast.NewEngine(c.logger)
	}
	if c.normalizer == nil {
		c.normalizer = textnorm.New()
	}
	if c.segmenter == nil {
		c.segmenter = textnorm.ScriptSegmenter{}
	}
	if c.renderers == nil {
		c.renderers = NewRegistry()
	}
	if c.events == nil {
		c.events = nopSink{}
	}
	return c
}

// Store returns the underlying store
func (c *Controller) Store() *Store {
	return c.store
}

// Renderers returns the artifact registry
func (c *Controller) Renderers() *Registry {
	return c.renderers
}

// InFlight returns the number of keys with a stage transition running
func (c *Controller) InFlight() int {
	return c.locks.inFlight()
}

// Config returns the controller defaults
func (c *Controller) Config() Config {
	return c.cfg
}

// Load replaces the raw payload of a key, creating the record on first load
func (c *Controller) Load(ctx context.Context, d Domain, key string, payload domain.Payload) (Record, error) {
	return c.transition(ctx, d, key, OpLoad, func(ctx context.Context, key string) (Record, error) {
		if err := payload.Validate(); err != nil {
			return Record{}, NewInvalidParameterError(d, key, OpLoad, err.Error())
		}
		if payload.Kind != d.PayloadKind() {
			return Record{}, NewInvalidParameterError(d, key, OpLoad,
				"domain expects a "+string(d.PayloadKind())+" payload")
		}
		prev, existed := c.store.Get(d, key)
		rec, err := c.store.PutRaw(d, key, payload)
		if err == nil && existed && prev.Cleaned != nil {
			c.logger.InfoContext(ctx, "raw payload replaced",
				slog.String("domain", string(d)),
				slog.String("key", key),
				slog.Bool("downstream_invalidated", c.store.InvalidatesOnReload()))
		}
		return rec, err
	})
}

// Clean applies the domain cleaning transform to the raw payload
func (c *Controller) Clean(ctx context.Context, d Domain, key string) (Record, error) {
	return c.transition(ctx, d, key, OpClean, func(ctx context.Context, key string) (Record, error) {
		rec, ok := c.store.Get(d, key)
		if !ok || rec.Raw == nil {
			return Record{}, NewPrerequisiteError(d, key, OpClean, StageRaw)
		}
		cleaned, err := c.clean(d, rec.Raw)
		if err != nil {
			return Record{}, err
		}
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		return c.store.PutCleaned(d, key, cleaned)
	})
}

// Analyze clusters the cleaned catalog
func (c *Controller) Analyze(ctx context.Context, key string, p clustering.Params) (Record, error) {
	return c.transition(ctx, DomainCatalog, key, OpAnalyze, func(ctx context.Context, key string) (Record, error) {
		rec, err := c.requireCleaned(DomainCatalog, key, OpAnalyze)
		if err != nil {
			return Record{}, err
		}
		summary, err := c.clusterer.Cluster(ctx, rec.Cleaned.Catalog, p)
		if err != nil {
			return Record{}, err
		}
		return c.commitResult(ctx, DomainCatalog, key, &Result{Clusters: summary})
	})
}

// Forecast projects every metric of the cleaned region series
func (c *Controller) Forecast(ctx context.Context, key string, p forecast.Params) (Record, error) {
	return c.transition(ctx, DomainRegion, key, OpForecast, func(ctx context.Context, key string) (Record, error) {
		rec, err := c.requireCleaned(DomainRegion, key, OpForecast)
		if err != nil {
			return Record{}, err
		}
		summary, err := c.forecaster.Forecast(ctx, rec.Cleaned.Region, p)
		if err != nil {
			return Record{}, err
		}
		return c.commitResult(ctx, DomainRegion, key, &Result{Forecast: summary})
	})
}

// Tokenize tallies token frequencies over the cleaned comments
func (c *Controller) Tokenize(ctx context.Context, key string) (Record, error) {
	return c.transition(ctx, DomainItem, key, OpTokenize, func(ctx context.Context, key string) (Record, error) {
		rec, err := c.requireCleaned(DomainItem, key, OpTokenize)
		if err != nil {
			return Record{}, err
		}
		table := textnorm.Tally(rec.Cleaned.Comments, c.segmenter)
		return c.commitResult(ctx, DomainItem, key, &Result{Tokens: &table})
	})
}

// Render produces an artifact and caches it on the record, replacing any
// previous artifact of the same type
func (c *Controller) Render(ctx context.Context, d Domain, key, artifactType string) (Artifact, error) {
	var out Artifact
	_, err := c.transition(ctx, d, key, OpRender, func(ctx context.Context, key string) (Record, error) {
		rd, err := c.renderers.Get(d, artifactType)
		if err != nil {
			return Record{}, err
		}
		rec, ok := c.store.Get(d, key)
		if !ok {
			return Record{}, NewPrerequisiteError(d, key, OpRender, StageRaw)
		}
		if !rec.Has(rd.Needs()) {
			return Record{}, NewPrerequisiteError(d, key, OpRender, rd.Needs())
		}

		data, err := rd.Render(ctx, rec)
		if err != nil {
			return Record{}, err
		}
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		sum := blake2b.Sum256(data)
		out = Artifact{
			Type:        artifactType,
			ContentType: rd.ContentType(),
			Data:        data,
			Digest:      hex.EncodeToString(sum[:]),
		}
		updated, err := c.store.PutArtifact(d, key, out)
		if err != nil {
			return Record{}, err
		}
		out = updated.Artifacts[artifactType]
		c.tracer.RecordArtifact(ctx, d, artifactType, len(data))
		return updated, nil
	})
	if err != nil {
		return Artifact{}, err
	}
	return out, nil
}

// Record returns a snapshot of the record
func (c *Controller) Record(d Domain, key string) (Record, error) {
	key, err := NormalizeKey(d, key)
	if err != nil {
		return Record{}, err
	}
	rec, ok := c.store.Get(d, key)
	if !ok {
		return Record{}, NewNotFoundError(d, key, "record")
	}
	return rec, nil
}

// Artifact returns a cached artifact
func (c *Controller) Artifact(d Domain, key, artifactType string) (Artifact, error) {
	key, err := NormalizeKey(d, key)
	if err != nil {
		return Artifact{}, err
	}
	a, ok := c.store.GetArtifact(d, key, artifactType)
	if !ok {
		return Artifact{}, NewNotFoundError(d, key, "artifact "+artifactType)
	}
	return a, nil
}

// Keys lists the keys of a domain
func (c *Controller) Keys(d Domain) []string {
	return c.store.Keys(d)
}

func (c *Controller) requireCleaned(d Domain, key string, op Operation) (Record, error) {
	rec, ok := c.store.Get(d, key)
	if !ok || rec.Cleaned == nil {
		return Record{}, NewPrerequisiteError(d, key, op, StageCleaned)
	}
	return rec, nil
}

func (c *Controller) commitResult(ctx context.Context, d Domain, key string, r *Result) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	return c.store.PutResult(d, key, r)
}

// transition validates the key, takes the per-key lock without waiting,
// bounds the stage by the configured timeout and reports the outcome.
func (c *Controller) transition(ctx context.Context, d Domain, key string, op Operation,
	fn func(ctx context.Context, key string) (Record, error)) (Record, error) {
	if _, err := ParseDomain(string(d)); err != nil {
		return Record{}, classify(err, d, key, op)
	}
	key, err := NormalizeKey(d, key)
	if err != nil {
		return Record{}, classify(err, d, key, op)
	}
	if !opAllowed(d, op) {
		return Record{}, NewInvalidParameterError(d, key, op,
			string(op)+" is not available for the "+string(d)+" domain")
	}

	release, ok := c.locks.tryAcquire(lockID(d, key))
	if !ok {
		c.logger.WarnContext(ctx, "transition rejected, key busy",
			slog.String("domain", string(d)),
			slog.String("key", key),
			slog.String("operation", string(op)))
		return Record{}, NewBusyError(d, key, op)
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return Record{}, classify(err, d, key, op)
	}
	if c.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.StageTimeout)
		defer cancel()
	}

	start := time.Now()
	ctx, span := c.tracer.StartStage(ctx, d, key, op)
	c.events.Publish(newEvent(d, key, op, EventStarted))

	rec, err := fn(ctx, key)
	duration := time.Since(start)

	var pErr *Error
	if err != nil {
		pErr = classify(err, d, key, op)
		err = pErr
	}
	c.tracer.EndStage(ctx, span, d, op, duration, err)

	ev := newEvent(d, key, op, EventCompleted)
	ev.DurationMS = duration.Milliseconds()
	if pErr != nil {
		ev.Status, ev.ErrorKind, ev.Error = EventFailed, pErr.Kind, pErr.Error()
		c.logger.WarnContext(ctx, "stage failed",
			slog.String("domain", string(d)),
			slog.String("key", key),
			slog.String("operation", string(op)),
			slog.String("kind", string(pErr.Kind)),
			slog.Duration("duration", duration),
			slog.String("error", pErr.Error()))
		c.events.Publish(ev)
		return Record{}, pErr
	}

	ev.Version = rec.Version
	c.logger.InfoContext(ctx, "stage committed",
		slog.String("domain", string(d)),
		slog.String("key", key),
		slog.String("operation", string(op)),
		slog.Uint64("version", rec.Version),
		slog.Duration("duration", duration))
	c.events.Publish(ev)
	return rec, nil
}

func opAllowed(d Domain, op Operation) bool {
	switch op {
	case OpAnalyze, OpForecast, OpTokenize:
		return d.AnalysisOp() == op
	}
	return true
}
