package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"cinepulse/internal/clustering"
	"cinepulse/internal/config"
	apierrors "cinepulse/internal/errors"
	"cinepulse/internal/forecast"
	"cinepulse/internal/infrastructure"
	customMiddleware "cinepulse/internal/middleware"
	"cinepulse/internal/pipeline"
	"cinepulse/internal/render"
	"cinepulse/internal/services"
	"cinepulse/internal/textnorm"
	handlers "cinepulse/internal/transport/http"
	ws "cinepulse/internal/websocket"
	"cinepulse/pkg/contracts"
)

const (
	// RuntimeCollectInterval is how often runtime gauges are sampled
	RuntimeCollectInterval = 15 * time.Second
	// RateLimitSweepInterval is how often idle client limiters are dropped
	RateLimitSweepInterval = time.Minute
)

// Application represents the main application container
type Application struct {
	Config           *config.Config
	Logger           *slog.Logger
	OTelProviders    *infrastructure.OTelProviders
	Metrics          *infrastructure.BusinessMetrics
	RuntimeCollector *infrastructure.RuntimeCollector
	Store            *pipeline.Store
	Controller       *pipeline.Controller
	WebSocketHub     *ws.Hub
	PipelineService  *services.PipelineService
	HealthService    *services.HealthService
	ErrorHandler     *apierrors.ErrorHandler
	RateLimiter      *customMiddleware.RateLimiter
	Router           *chi.Mux
	Server           *http.Server
}

// NewApplication loads the configuration, initializes the global logger and
// builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return New(cfg, logger)
}

// New builds an application from an explicit configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger.Info("application starting",
		slog.String("version", contracts.GetVersionString()),
		slog.String("addr", cfg.Server.Addr()))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	collector, err := infrastructure.NewRuntimeCollector(otelProviders.Meter, RuntimeCollectInterval)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime collector: %w", err)
	}

	a := &Application{
		Config:           cfg,
		Logger:           logger,
		OTelProviders:    otelProviders,
		Metrics:          metrics,
		RuntimeCollector: collector,
		ErrorHandler:     apierrors.NewErrorHandler(logger, false),
	}
	a.initializeServices()
	a.setupRouter()
	a.createServer()
	return a, nil
}

// ControllerConfig maps the pipeline section onto controller defaults
func ControllerConfig(p config.PipelineConfig) pipeline.Config {
	return pipeline.Config{
		Cluster: clustering.Params{
			K:             p.ClusterK,
			Seed:          p.ClusterSeed,
			Restarts:      p.ClusterRestarts,
			MaxIterations: p.ClusterMaxIterations,
		},
		Forecast: forecast.Params{
			Order:   forecast.Order{P: p.ARIMAP, D: p.ARIMAD, Q: p.ARIMAQ},
			Horizon: p.Horizon,
		},
		StageTimeout: p.StageTimeout,
	}
}

// NewController builds the record store and pipeline controller from cfg
func NewController(cfg config.PipelineConfig, logger *slog.Logger, opts ...pipeline.Option) *pipeline.Controller {
	store := pipeline.NewStore(pipeline.WithInvalidateOnReload(cfg.InvalidateOnReload))
	segmenter := textnorm.ScriptSegmenter{}
	base := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithNormalizer(textnorm.New(cfg.StopWords...)),
		pipeline.WithSegmenter(segmenter),
		pipeline.WithRenderers(render.NewRegistry(render.Options{
			TopTokens: cfg.TopTokens,
			Segmenter: segmenter,
		})),
	}
	return pipeline.NewController(store, ControllerConfig(cfg), append(base, opts...)...)
}

func (a *Application) initializeServices() {
	a.WebSocketHub = ws.NewHub(ws.Options{
		Config:         a.Config.WebSocket,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		Metrics:        a.Metrics,
		Logger:         a.Logger,
	})

	a.Controller = NewController(a.Config.Pipeline, a.Logger,
		pipeline.WithEvents(a.WebSocketHub),
		pipeline.WithTracer(pipeline.NewTracer(a.Metrics)))
	a.Store = a.Controller.Store()

	a.PipelineService = services.NewPipelineService(a.Controller, a.Metrics, a.Logger)
	a.HealthService = services.NewHealthService(a.Controller, a.WebSocketHub, a.Logger)

	if a.Config.RateLimit.Enabled {
		a.RateLimiter = customMiddleware.NewRateLimiter(
			a.Config.RateLimit.RPS,
			a.Config.RateLimit.Burst,
			a.ErrorHandler,
			a.Logger)
	}
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Middleware that leaves the ResponseWriter untouched, so the WebSocket
	// upgrade still sees a hijackable writer
	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)

	r.Handle("/ws", a.WebSocketHub)
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → errors/logging → headers → CORS → rate limit
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics).Handler)
		r.Use(apierrors.NewErrorMiddleware(a.ErrorHandler, a.Logger).Handler)
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.corsConfig()))
		if a.RateLimiter != nil {
			r.Use(a.RateLimiter.Handler)
		}

		health := handlers.NewHealthHandler(a.HealthService, a.Logger)
		r.Get("/healthz", health.HealthCheck)
		r.Get("/healthz/live", health.LivenessCheck)
		r.Get("/version", health.Version)

		pipelineHandler := handlers.NewPipelineHandler(a.PipelineService, customMiddleware.NewValidator(),
			a.ErrorHandler, a.Config.Upload.MaxBytes, a.Logger)
		r.Mount("/api/"+contracts.APIVersion, pipelineHandler.Routes())
	})

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)
	a.Router = r
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", "If-None-Match"},
		ExposedHeaders: []string{"X-Request-ID", "ETag", "Retry-After", "Content-Disposition"},
		MaxAge:         300,
	}
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Run serves on the configured address until ctx is cancelled
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the background workers and the HTTP server on ln until ctx is
// cancelled or the server fails, then shuts everything down
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.WebSocketHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.RuntimeCollector.Run(gctx)
		return nil
	})
	if a.RateLimiter != nil {
		g.Go(func() error {
			a.RateLimiter.Run(gctx, RateLimitSweepInterval)
			return nil
		})
	}
	g.Go(func() error {
		a.Logger.InfoContext(gctx, "server listening", slog.String("addr", ln.Addr().String()))
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

// Stop gracefully stops the server and releases the store and telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	a.Store.Close()
	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application shutdown complete",
		slog.Int64("events_dropped", a.WebSocketHub.Stats()["events_dropped"]))
	return errors.Join(errs...)
}
