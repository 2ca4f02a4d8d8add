package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "cinepulse/internal/errors"
	"cinepulse/internal/exporter"
	"cinepulse/internal/middleware"
	"cinepulse/internal/pipeline"
	"cinepulse/internal/services"
)

type ctxKey string

const domainCtxKey ctxKey = "domain"

// DefaultMaxUploadBytes bounds request bodies when no limit is configured
const DefaultMaxUploadBytes = 32 << 20

// LoadContentTypes are the request bodies accepted by the load route
var LoadContentTypes = []string{"multipart/form-data", "application/json"}

// PipelineHandler serves the pipeline operations
type PipelineHandler struct {
	service      *services.PipelineService
	validator    *middleware.Validator
	errorHandler *apierrors.ErrorHandler
	maxBytes     int64
	logger       *slog.Logger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(service *services.PipelineService, validator *middleware.Validator,
	errorHandler *apierrors.ErrorHandler, maxBytes int64, logger *slog.Logger) *PipelineHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if validator == nil {
		validator = middleware.NewValidator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineHandler{
		service:      service,
		validator:    validator,
		errorHandler: errorHandler,
		maxBytes:     maxBytes,
		logger:       logger.With(slog.String("handler", "pipeline")),
	}
}

// Routes returns the pipeline router
func (h *PipelineHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{domain}", func(r chi.Router) {
		r.Use(h.DomainCtx)
		r.Get("/", h.ListKeys)

		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", h.Summary)
			r.Get("/result", h.Result)
			r.With(middleware.ContentTypeValidator(h.errorHandler, LoadContentTypes...)).
				Post("/load", h.Load)
			r.Post("/clean", h.Clean)
			r.Post("/analyze", h.Analyze)
			r.Post("/forecast", h.Forecast)
			r.Post("/tokenize", h.Tokenize)
			r.Post("/render/{artifact}", h.Render)
			r.Get("/artifacts/{artifact}", h.Artifact)
			r.Get("/export/{stage}", h.Export)
		})
	})

	return r
}

// DomainCtx resolves the {domain} path parameter
func (h *PipelineHandler) DomainCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := pipeline.ParseDomain(chi.URLParam(r, "domain"))
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), domainCtxKey, d)))
	})
}

func domainFrom(r *http.Request) pipeline.Domain {
	d, _ := r.Context().Value(domainCtxKey).(pipeline.Domain)
	return d
}

// ListKeys handles GET /{domain}
func (h *PipelineHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	d := domainFrom(r)
	keys := h.service.Keys(d)
	if keys == nil {
		keys = []string{}
	}
	render.JSON(w, r, map[string]interface{}{
		"domain":    d,
		"keys":      keys,
		"artifacts": h.service.ArtifactTypes(d),
	})
}

// Summary handles GET /{domain}/{key}
func (h *PipelineHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(domainFrom(r), chi.URLParam(r, "key"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

// Result handles GET /{domain}/{key}/result
func (h *PipelineHandler) Result(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Result(domainFrom(r), chi.URLParam(r, "key"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// Load handles POST /{domain}/{key}/load. A multipart body carries the
// upload in the "file" field; a JSON body is decoded as a LoadRequest.
func (h *PipelineHandler) Load(w http.ResponseWriter, r *http.Request) {
	d := domainFrom(r)
	key := chi.URLParam(r, "key")
	if r.ContentLength > h.maxBytes {
		h.errorHandler.HandleError(w, r, &http.MaxBytesError{Limit: h.maxBytes})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	var (
		rec pipeline.Record
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		rec, err = h.loadMultipart(r, d, key)
	} else {
		var req services.LoadRequest
		if err = h.validator.DecodeJSON(r, &req); err == nil {
			rec, err = h.service.LoadJSON(r.Context(), d, key, req)
		}
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rec.Summary())
}

func (h *PipelineHandler) loadMultipart(r *http.Request, d pipeline.Domain, key string) (pipeline.Record, error) {
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pipeline.Record{}, err
		}
		return pipeline.Record{}, apierrors.InvalidRequestWithError(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return pipeline.Record{}, apierrors.ErrValidation("file", "multipart field is required")
	}
	defer file.Close()

	return h.service.Upload(r.Context(), d, key, header.Filename, file)
}

// Clean handles POST /{domain}/{key}/clean
func (h *PipelineHandler) Clean(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Clean(r.Context(), domainFrom(r), chi.URLParam(r, "key"))
	h.respondRecord(w, r, rec, err)
}

// Analyze handles POST /catalog/{key}/analyze
func (h *PipelineHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.requireDomain(r, pipeline.DomainCatalog, key, pipeline.OpAnalyze); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	var req services.AnalyzeRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	rec, err := h.service.Analyze(r.Context(), key, req)
	h.respondRecord(w, r, rec, err)
}

// Forecast handles POST /region/{key}/forecast
func (h *PipelineHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.requireDomain(r, pipeline.DomainRegion, key, pipeline.OpForecast); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	var req services.ForecastRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	rec, err := h.service.Forecast(r.Context(), key, req)
	h.respondRecord(w, r, rec, err)
}

// Tokenize handles POST /item/{key}/tokenize
func (h *PipelineHandler) Tokenize(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.requireDomain(r, pipeline.DomainItem, key, pipeline.OpTokenize); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	rec, err := h.service.Tokenize(r.Context(), key)
	h.respondRecord(w, r, rec, err)
}

// Render handles POST /{domain}/{key}/render/{artifact}
func (h *PipelineHandler) Render(w http.ResponseWriter, r *http.Request) {
	d := domainFrom(r)
	key := chi.URLParam(r, "key")
	art, err := h.service.Render(r.Context(), d, key, chi.URLParam(r, "artifact"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, art)
}

// Artifact handles GET /{domain}/{key}/artifacts/{artifact}. The digest
// doubles as a strong ETag.
func (h *PipelineHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	d := domainFrom(r)
	key := chi.URLParam(r, "key")
	typ := chi.URLParam(r, "artifact")

	art, err := h.service.Artifact(d, key, typ)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	etag := `"` + art.Digest + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", artifactFilename(d, key, typ, art.ContentType)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Data); err != nil {
		h.logger.WarnContext(r.Context(), "artifact write failed",
			slog.String("type", typ),
			slog.String("error", err.Error()))
	}
}

// Export handles GET /{domain}/{key}/export/{stage}
func (h *PipelineHandler) Export(w http.ResponseWriter, r *http.Request) {
	d := domainFrom(r)
	key := chi.URLParam(r, "key")
	stage, err := pipeline.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	frame, err := h.service.Export(d, key, stage)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%s_%s.csv", d, safeName(key), stage)))
	if err := exporter.WriteFrame(w, frame, exporter.WriteOptions{BOMPrefix: true}); err != nil {
		h.logger.WarnContext(r.Context(), "export write failed",
			slog.String("domain", string(d)),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()))
	}
}

func (h *PipelineHandler) respondRecord(w http.ResponseWriter, r *http.Request, rec pipeline.Record, err error) {
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, rec.Summary())
}

func (h *PipelineHandler) requireDomain(r *http.Request, want pipeline.Domain, key string, op pipeline.Operation) error {
	d := domainFrom(r)
	if d == want {
		return nil
	}
	return pipeline.NewInvalidParameterError(d, key, op,
		fmt.Sprintf("%s applies to the %s domain only", op, want))
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func artifactFilename(d pipeline.Domain, key, typ, contentType string) string {
	ext := ".xlsx"
	if strings.HasPrefix(contentType, "text/csv") {
		ext = ".csv"
	}
	return fmt.Sprintf("%s_%s_%s%s", d, safeName(key), typ, ext)
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
