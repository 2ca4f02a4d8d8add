package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "cinepulse/internal/errors"
	"cinepulse/internal/middleware"
	"cinepulse/internal/pipeline"
	"cinepulse/internal/render"
	"cinepulse/internal/services"
)

const catalogCSV = `title,rating,rating_count,year
A,9.1,900000,1994
B,9.0,850000,1995
C,6.2,1200,2018
D,6.0,1500,2019
E,7.8,40000,1962
F,7.7,42000,1960
`

type testServer struct {
	router http.Handler
	svc    *services.PipelineService
}

func newTestServer(t *testing.T, maxBytes int64) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := pipeline.NewController(pipeline.NewStore(), pipeline.DefaultConfig(),
		pipeline.WithLogger(logger),
		pipeline.WithRenderers(render.NewRegistry(render.Options{})))
	svc := services.NewPipelineService(ctrl, nil, logger)
	errorHandler := apierrors.NewErrorHandler(logger, false)

	r := chi.NewRouter()
	r.NotFound(errorHandler.NotFound)
	r.Mount("/api/v1", NewPipelineHandler(svc, middleware.NewValidator(), errorHandler, maxBytes, logger).Routes())

	health := NewHealthHandler(services.NewHealthService(ctrl, nil, logger), logger)
	r.Get("/healthz", health.HealthCheck)
	r.Get("/healthz/live", health.LivenessCheck)
	r.Get("/version", health.Version)
	return &testServer{router: r, svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, contentType string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, filename, content string) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCatalogEndToEnd(t *testing.T) {
	s := newTestServer(t, 0)

	ct, body := multipartBody(t, "top.csv", catalogCSV)
	rec := s.do(t, http.MethodPost, "/api/v1/catalog/default/load", ct, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "default", decode(t, rec)["key"])

	rec = s.do(t, http.MethodPost, "/api/v1/catalog/default/analyze", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "prerequisite_missing", decode(t, rec)["kind"])

	rec = s.do(t, http.MethodPost, "/api/v1/catalog/default/clean", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/catalog/default/analyze", "application/json", strings.NewReader(`{"k":2,"seed":7}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/default/result", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	clusters := decode(t, rec)["clusters"].(map[string]interface{})
	assert.EqualValues(t, 2, clusters["k"])

	rec = s.do(t, http.MethodPost, "/api/v1/catalog/default/render/"+render.TypeClusterTable, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	digest := decode(t, rec)["digest"].(string)
	require.NotEmpty(t, digest)

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/default/artifacts/"+render.TypeClusterTable, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"`+digest+`"`, rec.Header().Get("ETag"))
	assert.Equal(t, render.ContentTypeCSV, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "catalog_default_cluster_table.csv")
	assert.Contains(t, rec.Body.String(), "title,rating,rating_count,year,cluster")

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/default/artifacts/"+render.TypeClusterTable, "", nil,
		"If-None-Match", `W/"other", "`+digest+`"`)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/default/export/cleaned", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\ufeff"))
	assert.Equal(t, 7, strings.Count(rec.Body.String(), "\n"))

	rec = s.do(t, http.MethodGet, "/api/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"default"}, decode(t, rec)["keys"])

	rec = s.do(t, http.MethodGet, "/api/v1/catalog/default", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 6, decode(t, rec)["raw_rows"])
}

func TestItemJSONLoadAndTokenize(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(t, http.MethodPost, "/api/v1/item/movie/load", "application/json",
		strings.NewReader(`{"text":["great great movie","好看 好看"],"source":"api"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/item/movie/clean", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/item/movie/render/"+render.TypeWordFrequency, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/item/movie/tokenize", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res, err := s.svc.Result(pipeline.DomainItem, "movie")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Tokens.Counts["great"])
}

func TestPipelineErrors(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"unknown domain", http.MethodGet, "/api/v1/shows", "", "", http.StatusBadRequest},
		{"unknown record", http.MethodGet, "/api/v1/region/us", "", "", http.StatusNotFound},
		{"analyze on region", http.MethodPost, "/api/v1/region/us/analyze", "", "", http.StatusBadRequest},
		{"forecast on item", http.MethodPost, "/api/v1/item/a/forecast", "", "", http.StatusBadRequest},
		{"tokenize on catalog", http.MethodPost, "/api/v1/catalog/default/tokenize", "", "", http.StatusBadRequest},
		{"k out of range", http.MethodPost, "/api/v1/catalog/default/analyze", "application/json", `{"k":0}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/region/us/forecast", "application/json", `{"p":`, http.StatusBadRequest},
		{"forecast before load", http.MethodPost, "/api/v1/region/us/forecast", "", "", http.StatusConflict},
		{"unsupported media", http.MethodPost, "/api/v1/region/us/load", "text/xml", "<a/>", http.StatusUnsupportedMediaType},
		{"body without content type", http.MethodPost, "/api/v1/item/a/load", "", `{"text":["a"]}`, http.StatusUnsupportedMediaType},
		{"plain text body", http.MethodPost, "/api/v1/item/a/load", "text/plain", "great movie", http.StatusUnsupportedMediaType},
		{"empty load", http.MethodPost, "/api/v1/item/a/load", "", "", http.StatusBadRequest},
		{"empty json payload", http.MethodPost, "/api/v1/region/us/load", "application/json", `{}`, http.StatusBadRequest},
		{"unknown stage", http.MethodGet, "/api/v1/region/us/export/final", "", "", http.StatusBadRequest},
		{"missing artifact", http.MethodGet, "/api/v1/region/us/artifacts/forecast_line", "", "", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v2/region", "", "", http.StatusNotFound},
	}

	s := newTestServer(t, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.contentType, strings.NewReader(tt.body))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "json")
		})
	}
}

func TestLoadRejectsOversizedUpload(t *testing.T) {
	s := newTestServer(t, 64)

	ct, body := multipartBody(t, "top.csv", catalogCSV+strings.Repeat("G,5.0,10,2000\n", 20))
	rec := s.do(t, http.MethodPost, "/api/v1/catalog/default/load", ct, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/item/a/load", "application/json",
		strings.NewReader(`{"text":["`+strings.Repeat("x", 200)+`"]}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
}

func TestLoadRejectsUnparseableUpload(t *testing.T) {
	s := newTestServer(t, 0)

	ct, body := multipartBody(t, "top.csv", "title,rating\nA,9\n")
	rec := s.do(t, http.MethodPost, "/api/v1/catalog/default/load", ct, body)
	require.Equal(t, http.StatusCreated, rec.Code, "missing columns surface at clean time")

	rec = s.do(t, http.MethodPost, "/api/v1/catalog/default/clean", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	rec = s.do(t, http.MethodPost, "/api/v1/catalog/default/load", mw.FormDataContentType(), &buf)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "keys")

	rec = s.do(t, http.MethodGet, "/healthz/live", "", nil)
	assert.Equal(t, "alive", decode(t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/version", "", nil)
	assert.Equal(t, "v1", decode(t, rec)["api_version"])

	s.svc.Controller().Store().Close()
	rec = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEtagMatches(t *testing.T) {
	assert.False(t, etagMatches("", `"a"`))
	assert.True(t, etagMatches("*", `"a"`))
	assert.True(t, etagMatches(`"b", W/"a"`, `"a"`))
	assert.False(t, etagMatches(`"b"`, `"a"`))
	assert.Equal(t, "a_b_c", safeName("a/b c"))
}
