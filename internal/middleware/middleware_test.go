package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	apierrors "cinepulse/internal/errors"
	"cinepulse/internal/infrastructure"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func TestRequestID(t *testing.T) {
	var seen, traceID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		traceID = infrastructure.GetTraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, traceID)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "client-supplied", seen)
	assert.Equal(t, "client-supplied", chimw.GetReqID(context.WithValue(context.Background(), chimw.RequestIDKey, seen)))
}

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2, apierrors.NewErrorHandler(quietLogger(), false), quietLogger())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1001").Code)

	limited := call("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "2", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1000").Code, "other clients keep their own budget")
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(10, 10, apierrors.NewErrorHandler(quietLogger(), false), nil)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.limiter("a")
	now = now.Add(clientIdleTTL + time.Second)
	rl.limiter("b")

	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "b")
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	tests := []struct {
		name      string
		method    string
		origin    string
		preflight bool
		status    int
		allowed   string
	}{
		{"allowed origin", http.MethodGet, "https://app.example", false, http.StatusOK, "https://app.example"},
		{"foreign origin", http.MethodGet, "https://evil.example", false, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://app.example", true, http.StatusNoContent, "https://app.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/catalog", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.allowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestOTelMiddlewareRecordsRoute(t *testing.T) {
	metrics, err := infrastructure.CreateBusinessMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(NewOTelMiddleware(nil, metrics).Handler)
	r.Get("/api/v1/{domain}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/{domain}", routePattern(r))
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// nil metrics are tolerated
	rec = httptest.NewRecorder()
	NewOTelMiddleware(nil, nil).Handler(http.NotFoundHandler()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type analyzeDTO struct {
	K        *int   `json:"k" validate:"omitempty,min=1,max=50"`
	Artifact string `json:"artifact" validate:"omitempty,identifier"`
}

func TestValidatorDecodeJSON(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		body    string
		wantErr bool
		fields  []string
	}{
		{"empty body", "", false, nil},
		{"valid", `{"k": 3, "artifact": "cluster_scatter"}`, false, nil},
		{"k too small", `{"k": 0}`, true, []string{"k"}},
		{"bad identifier", `{"artifact": "../etc"}`, true, []string{"artifact"}},
		{"malformed", `{"k":`, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dto analyzeDTO
			err := v.DecodeJSON(req, &dto)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var apiErr *apierrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			if tt.fields != nil {
				details, ok := apiErr.Details.([]apierrors.ValidationError)
				require.True(t, ok)
				require.Len(t, details, len(tt.fields))
				assert.Equal(t, tt.fields[0], details[0].Field)
			}
		})
	}
}

func TestContentTypeValidator(t *testing.T) {
	handler := ContentTypeValidator(apierrors.NewErrorHandler(quietLogger(), false), "application/json", "multipart/form-data")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a,b"))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", body["error_code"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
