package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepulse/internal/pipeline"
	"cinepulse/internal/render"
	"cinepulse/pkg/contracts/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestService() *PipelineService {
	ctrl := pipeline.NewController(pipeline.NewStore(), pipeline.DefaultConfig(),
		pipeline.WithLogger(quietLogger()),
		pipeline.WithRenderers(render.NewRegistry(render.Options{})))
	return NewPipelineService(ctrl, nil, quietLogger())
}

const catalogCSV = `title,rating,rating_count,year
A,9.1,900000,1994
B,9.0,850000,1995
C,6.2,1200,2018
D,6.0,1500,2019
E,7.8,40000,1962
F,7.7,42000,1960
`

func regionCSV() string {
	var b strings.Builder
	b.WriteString("period,top10_gross,overall_gross,releases\n")
	for i := 0; i < 14; i++ {
		fmt.Fprintf(&b, "Week %d,\"$%d\",\"$%d\",%d\n", i+1, 1000+10*i+i%3, 3000+25*i-i%4, 10+i%5)
	}
	return b.String()
}

func TestUploadParsesByDomain(t *testing.T) {
	tests := []struct {
		name     string
		d        pipeline.Domain
		key      string
		filename string
		body     string
		wantKey  string
		wantLen  int
	}{
		{"catalog csv", pipeline.DomainCatalog, "", "top.csv", catalogCSV, "default", 6},
		{"region csv", pipeline.DomainRegion, "us", "weeks.csv", regionCSV(), "us", 14},
		{"item text", pipeline.DomainItem, "movie", "comments.txt", "great movie\n好看\n", "movie", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService()
			rec, err := svc.Upload(context.Background(), tt.d, tt.key, tt.filename, strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, rec.Key)
			assert.Equal(t, tt.wantLen, rec.Raw.Len())
			assert.Equal(t, []string{tt.wantKey}, svc.Keys(tt.d))
		})
	}
}

func TestUploadRejectsUnparseablePayload(t *testing.T) {
	svc := newTestService()
	_, err := svc.Upload(context.Background(), pipeline.DomainCatalog, "", "data.bin", bytes.NewReader([]byte{0x00, 0x01, 0x02}))
	require.Error(t, err)
	assert.Equal(t, pipeline.KindInvalidParameter, pipeline.KindOf(err))

	var perr *pipeline.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, pipeline.OpLoad, perr.Operation)
	assert.Empty(t, svc.Keys(pipeline.DomainCatalog))
}

func TestParameterMerging(t *testing.T) {
	svc := newTestService()
	defaults := svc.Controller().Config()

	k, seed := 4, int64(99)
	p := svc.ClusterParams(AnalyzeRequest{K: &k, Seed: &seed})
	assert.Equal(t, 4, p.K)
	assert.Equal(t, int64(99), p.Seed)
	assert.Equal(t, defaults.Cluster.Restarts, p.Restarts)
	assert.Equal(t, defaults.Cluster, svc.ClusterParams(AnalyzeRequest{}))

	horizon, d := 3, 0
	fp := svc.ForecastParams(ForecastRequest{Horizon: &horizon, D: &d})
	assert.Equal(t, 3, fp.Horizon)
	assert.Equal(t, 0, fp.Order.D)
	assert.Equal(t, defaults.Forecast.Order.P, fp.Order.P)
	assert.Equal(t, defaults.Forecast, svc.ForecastParams(ForecastRequest{}))
}

func TestCatalogFlow(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Upload(ctx, pipeline.DomainCatalog, "", "top.csv", strings.NewReader(catalogCSV))
	require.NoError(t, err)

	_, err = svc.Analyze(ctx, "", AnalyzeRequest{})
	assert.Equal(t, pipeline.KindPrerequisiteMissing, pipeline.KindOf(err))

	_, err = svc.Clean(ctx, pipeline.DomainCatalog, "")
	require.NoError(t, err)

	k := 3
	rec, err := svc.Analyze(ctx, "", AnalyzeRequest{K: &k})
	require.NoError(t, err)
	require.NotNil(t, rec.Result.Clusters)
	assert.Equal(t, 3, rec.Result.Clusters.K)

	res, err := svc.Result(pipeline.DomainCatalog, "")
	require.NoError(t, err)
	assert.Len(t, res.Clusters.Labels, 6)

	art, err := svc.Render(ctx, pipeline.DomainCatalog, "", render.TypeClusterTable)
	require.NoError(t, err)
	assert.Equal(t, render.ContentTypeCSV, art.ContentType)

	cached, err := svc.Artifact(pipeline.DomainCatalog, "default", render.TypeClusterTable)
	require.NoError(t, err)
	assert.Equal(t, art.Digest, cached.Digest)

	summary, err := svc.Summary(pipeline.DomainCatalog, "")
	require.NoError(t, err)
	assert.Equal(t, "default", summary.Key)

	frame, err := svc.Export(pipeline.DomainCatalog, "", pipeline.StageResult)
	require.NoError(t, err)
	assert.Len(t, frame.Rows, 6)

	assert.Contains(t, svc.ArtifactTypes(pipeline.DomainCatalog), render.TypeClusterScatter)
}

func TestRegionAndItemFlows(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.LoadJSON(ctx, pipeline.DomainItem, "movie", LoadRequest{Text: []string{"great great movie", "!!!"}})
	require.NoError(t, err)
	_, err = svc.Clean(ctx, pipeline.DomainItem, "movie")
	require.NoError(t, err)
	rec, err := svc.Tokenize(ctx, "movie")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Result.Tokens.Counts["great"])

	_, err = svc.Upload(ctx, pipeline.DomainRegion, "us", "weeks.csv", strings.NewReader(regionCSV()))
	require.NoError(t, err)
	_, err = svc.Clean(ctx, pipeline.DomainRegion, "us")
	require.NoError(t, err)
	horizon := 4
	rec, err = svc.Forecast(ctx, "us", ForecastRequest{Horizon: &horizon})
	require.NoError(t, err)
	assert.Len(t, rec.Result.Forecast.Series[domain.MetricTop10Gross], 4)

	_, err = svc.Result(pipeline.DomainRegion, "missing")
	assert.Equal(t, pipeline.KindNotFound, pipeline.KindOf(err))
}

func TestLoadRequestPayload(t *testing.T) {
	req := LoadRequest{Columns: []string{"a"}, Rows: [][]string{{"1"}}, Text: []string{"x"}, Source: "api"}

	table := req.Payload(pipeline.DomainCatalog)
	assert.Equal(t, domain.PayloadKindTable, table.Kind)
	assert.Equal(t, "api", table.Source)

	text := req.Payload(pipeline.DomainItem)
	assert.Equal(t, domain.PayloadKindText, text.Kind)
	assert.Equal(t, []string{"x"}, text.Text)
}

type fixedClients int

func (f fixedClients) ClientCount() int { return int(f) }

func TestHealthService(t *testing.T) {
	svc := newTestService()
	_, err := svc.LoadJSON(context.Background(), pipeline.DomainItem, "a", LoadRequest{Text: []string{"hi"}})
	require.NoError(t, err)

	hs := NewHealthService(svc.Controller(), fixedClients(1), quietLogger())
	status := hs.HealthCheck(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 1, status.Keys["item"])
	assert.Equal(t, 0, status.Keys["catalog"])
	assert.Equal(t, "1 client connected", status.Services["websocket"].Message)
	assert.Equal(t, "0 transitions in flight", status.Services["store"].Message)
	require.NotNil(t, status.Runtime)
	assert.Positive(t, status.Runtime.Goroutines)

	assert.Equal(t, "alive", hs.LivenessCheck(context.Background()).Status)

	svc.Controller().Store().Close()
	status = hs.HealthCheck(context.Background())
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "not_ready", status.Services["store"].Status)

	empty := NewHealthService(nil, nil, nil)
	assert.Equal(t, "degraded", empty.HealthCheck(context.Background()).Status)
}
