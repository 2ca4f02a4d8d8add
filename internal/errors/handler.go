package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"cinepulse/internal/pipeline"
)

// Problem types, relative to the API root
const (
	TypeValidation          = "/errors/validation"
	TypeNotFound            = "/errors/not-found"
	TypeRateLimit           = "/errors/rate-limit"
	TypeInternal            = "/errors/internal"
	TypeTimeout             = "/errors/timeout"
	TypePayloadTooLarge     = "/errors/payload-too-large"
	TypeUnsupportedMedia    = "/errors/unsupported-media-type"
	TypePrerequisiteMissing = "/errors/pipeline/prerequisite-missing"
	TypeBusy                = "/errors/pipeline/busy"
	TypeInsufficientData    = "/errors/pipeline/insufficient-data"
	TypeFitFailure          = "/errors/pipeline/fit-failure"
	TypeCoercionFailure     = "/errors/pipeline/coercion-failure"
)

// BusyRetryAfterSeconds is advertised in Retry-After when a key is busy
const BusyRetryAfterSeconds = 1

type kindMapping struct {
	status int
	typ    string
	title  string
}

var pipelineKinds = map[pipeline.ErrorKind]kindMapping{
	pipeline.KindPrerequisiteMissing: {http.StatusConflict, TypePrerequisiteMissing, "Prerequisite Stage Missing"},
	pipeline.KindInvalidParameter:    {http.StatusBadRequest, TypeValidation, "Invalid Parameter"},
	pipeline.KindInsufficientData:    {http.StatusUnprocessableEntity, TypeInsufficientData, "Insufficient Data"},
	pipeline.KindCoercionFailure:     {http.StatusUnprocessableEntity, TypeCoercionFailure, "Coercion Failure"},
	pipeline.KindBusy:                {http.StatusConflict, TypeBusy, "Key Busy"},
	pipeline.KindFitFailure:          {http.StatusUnprocessableEntity, TypeFitFailure, "Model Fit Failed"},
	pipeline.KindCancelled:           {http.StatusGatewayTimeout, TypeTimeout, "Stage Cancelled"},
	pipeline.KindNotFound:            {http.StatusNotFound, TypeNotFound, "Resource Not Found"},
	pipeline.KindInternal:            {http.StatusInternalServerError, TypeInternal, "Internal Server Error"},
}

// ErrorHandler renders every error as RFC 7807 problem details
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts err to problem details and writes the response
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	reqID := middleware.GetReqID(r.Context())

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", reqID)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError && problem.Status != http.StatusGatewayTimeout {
		level = slog.LevelError
		if h.includeStack {
			problem.WithExtension("stack", string(debug.Stack()))
		}
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	if problem.Type == TypeBusy {
		w.Header().Set("Retry-After", strconv.Itoa(BusyRetryAfterSeconds))
	}
	_ = render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 problem details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var pErr *pipeline.Error
	if errors.As(err, &pErr) {
		return pipelineProblem(pErr, r)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErrorToProblem(apiErr, r)
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return NewProblemDetails(http.StatusRequestEntityTooLarge, TypePayloadTooLarge,
			"Payload Too Large",
			fmt.Sprintf("The request body exceeds the %d byte limit", maxBytes.Limit),
			r.URL.Path)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path)
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path)
}

func pipelineProblem(e *pipeline.Error, r *http.Request) *ProblemDetails {
	m, ok := pipelineKinds[e.Kind]
	if !ok {
		m = pipelineKinds[pipeline.KindInternal]
	}
	detail := e.Reason
	if e.Kind == pipeline.KindInternal {
		detail = "An unexpected error occurred while running the stage"
	} else if e.Cause != nil {
		detail = fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}

	problem := NewProblemDetails(m.status, m.typ, m.title, detail, r.URL.Path).
		WithExtension("kind", string(e.Kind))
	if e.Domain != "" {
		problem.WithExtension("domain", string(e.Domain))
	}
	if e.Key != "" {
		problem.WithExtension("key", e.Key)
	}
	if e.Operation != "" {
		problem.WithExtension("operation", string(e.Operation))
	}
	if e.Kind == pipeline.KindBusy {
		problem.WithExtension("retry_after", BusyRetryAfterSeconds)
	}
	return problem
}

func apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.StatusCode {
	case http.StatusBadRequest:
		problemType = TypeValidation
	case http.StatusNotFound:
		problemType = TypeNotFound
	case http.StatusRequestEntityTooLarge:
		problemType = TypePayloadTooLarge
	case http.StatusUnsupportedMediaType:
		problemType = TypeUnsupportedMedia
	case http.StatusTooManyRequests:
		problemType = TypeRateLimit
	}

	problem := NewProblemDetails(apiErr.StatusCode, problemType,
		http.StatusText(apiErr.StatusCode), apiErr.Message, r.URL.Path).
		WithExtension("error_code", apiErr.ErrorCode)
	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic renders a recovered panic as a 500 problem
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())
	stack := string(debug.Stack())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", stack))

	problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error", "An unexpected error occurred", r.URL.Path).
		WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", stack)
	}
	_ = render.Render(w, r, problem)
}

// NotFound returns a standard 404 problem
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"The requested resource was not found", r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context()))
	_ = render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 problem
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(http.StatusMethodNotAllowed, TypeValidation, "Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method), r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context()))
	_ = render.Render(w, r, problem)
}
