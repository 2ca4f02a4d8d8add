package render

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"cinepulse/internal/pipeline"
	"cinepulse/internal/textnorm"
	"cinepulse/pkg/contracts/domain"
)

func catalogRecord() pipeline.Record {
	rows := []domain.ClusteredRow{
		{CatalogRow: domain.CatalogRow{Title: "A", Rating: 9.1, RatingCount: 1000, Year: 1994}, Cluster: 1},
		{CatalogRow: domain.CatalogRow{Title: "B", Rating: 7.0, RatingCount: 50, Year: 2010}, Cluster: 0},
		{CatalogRow: domain.CatalogRow{Title: "C", Rating: 9.0, RatingCount: 900, Year: 1995}, Cluster: 1},
	}
	return pipeline.Record{
		Domain: pipeline.DomainCatalog,
		Key:    "default",
		Result: &pipeline.Result{Clusters: &domain.ClusterSummary{
			K:            2,
			FeatureNames: []string{"rating", "log1p_rating_count", "year"},
			Labels:       []int{1, 0, 1},
			Centroids:    [][]float64{{-1, -1, 1}, {0.5, 0.5, -0.5}},
			Mean:         []float64{8.4, 5, 2000},
			Scale:        []float64{1, 2, 10},
			Rows:         rows,
		}},
	}
}

func regionRecord() pipeline.Record {
	history := []domain.RegionPoint{
		{TimeIndex: 0, PeriodLabel: "Week 1", Top10Gross: 100, OverallGross: 150, ReleaseCount: 10},
		{TimeIndex: 1, PeriodLabel: "Week 2", Top10Gross: 110, OverallGross: 160, ReleaseCount: 11},
	}
	return pipeline.Record{
		Domain:  pipeline.DomainRegion,
		Key:     "us",
		Cleaned: &pipeline.Cleaned{Region: history},
		Result: &pipeline.Result{Forecast: &domain.ForecastSummary{
			Horizon:       2,
			LastTimeIndex: 1,
			Series: map[domain.Metric][]float64{
				domain.MetricTop10Gross:   {120, 130},
				domain.MetricOverallGross: {170, 180},
				domain.MetricReleaseCount: {12, 13},
			},
		}},
	}
}

func itemRecord() pipeline.Record {
	return pipeline.Record{
		Domain:  pipeline.DomainItem,
		Key:     "movie",
		Cleaned: &pipeline.Cleaned{Comments: []string{"great great movie", "好看 好看"}},
	}
}

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	require.True(t, bytes.HasPrefix(data, []byte("\ufeff")))
	records, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff")))).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRegistryCoversEveryDomain(t *testing.T) {
	reg := NewRegistry(Options{})
	assert.Equal(t, []string{TypeCentroidRadar, TypeClusterDistribution, TypeClusterScatter, TypeClusterTable}, reg.Types(pipeline.DomainCatalog))
	assert.Equal(t, []string{TypeForecastLine, TypeForecastTable}, reg.Types(pipeline.DomainRegion))
	assert.Equal(t, []string{TypeCommentsTable, TypeWordFrequency}, reg.Types(pipeline.DomainItem))

	tests := []struct {
		domain pipeline.Domain
		typ    string
		needs  pipeline.Stage
		ct     string
	}{
		{pipeline.DomainCatalog, TypeClusterScatter, pipeline.StageResult, ContentTypeXLSX},
		{pipeline.DomainCatalog, TypeClusterTable, pipeline.StageResult, ContentTypeCSV},
		{pipeline.DomainCatalog, TypeClusterDistribution, pipeline.StageResult, ContentTypeXLSX},
		{pipeline.DomainRegion, TypeForecastLine, pipeline.StageResult, ContentTypeXLSX},
		{pipeline.DomainItem, TypeWordFrequency, pipeline.StageCleaned, ContentTypeXLSX},
		{pipeline.DomainItem, TypeCommentsTable, pipeline.StageCleaned, ContentTypeCSV},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			rd, err := reg.Get(tt.domain, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.needs, rd.Needs())
			assert.Equal(t, tt.ct, rd.ContentType())
		})
	}
}

func TestClusterScatterGroupsRowsByCluster(t *testing.T) {
	data, err := NewClusterScatter().Render(context.Background(), catalogRecord())
	require.NoError(t, err)

	f := openWorkbook(t, data)
	assert.Equal(t, []string{"Rows", "Clusters"}, f.GetSheetList())

	rows, err := f.GetRows("Rows")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"B", "A", "C"}, []string{rows[1][0], rows[2][0], rows[3][0]})
	assert.Equal(t, "Cluster 1", rows[1][4])

	legend, err := f.GetRows("Clusters")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cluster 2", "2"}, legend[2])
}

func TestCentroidRadarWritesRawUnits(t *testing.T) {
	data, err := NewCentroidRadar().Render(context.Background(), catalogRecord())
	require.NoError(t, err)

	rows, err := openWorkbook(t, data).GetRows("Centroids")
	require.NoError(t, err)
	assert.Equal(t, []string{"Feature", "Cluster 1", "Cluster 2"}, rows[0])
	assert.Equal(t, "rating", rows[1][0])
	// year centroid of cluster 1 in raw units: 2000 + 1*10
	assert.Equal(t, []string{"year", "2010", "1995"}, rows[len(rows)-1])
}

func TestClusterDistributionPerFeature(t *testing.T) {
	data, err := NewClusterDistribution().Render(context.Background(), catalogRecord())
	require.NoError(t, err)

	rows, err := openWorkbook(t, data).GetRows("Distribution")
	require.NoError(t, err)
	require.Len(t, rows, 7, "header plus 3 features x 2 clusters")
	assert.Equal(t, []string{"Feature", "Cluster", "Size", "Min", "Q1", "Median", "Q3", "Max"}, rows[0])

	// single-row cluster collapses to one value
	assert.Equal(t, []string{"rating", "Cluster 1", "1", "7", "7", "7", "7", "7"}, rows[1])

	cluster2 := rows[2]
	assert.Equal(t, []string{"rating", "Cluster 2", "2"}, cluster2[:3])
	assert.Equal(t, "9", cluster2[3])
	assert.Equal(t, "9.1", cluster2[7])

	years := rows[6]
	assert.Equal(t, []string{"year", "Cluster 2", "2", "1994"}, years[:4])
	assert.Equal(t, "1995", years[7])
}

func TestClusterDistributionLeavesEmptyClusterBlank(t *testing.T) {
	rec := catalogRecord()
	rec.Result.Clusters.K = 3
	data, err := NewClusterDistribution().Render(context.Background(), rec)
	require.NoError(t, err)

	rows, err := openWorkbook(t, data).GetRows("Distribution")
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, []string{"rating", "Cluster 3", "0"}, rows[3])
}

func TestClusterTableKeepsInputOrder(t *testing.T) {
	data, err := NewClusterTable().Render(context.Background(), catalogRecord())
	require.NoError(t, err)

	records := readCSV(t, data)
	assert.Equal(t, []string{"title", "rating", "rating_count", "year", "cluster"}, records[0])
	assert.Equal(t, []string{"A", "9.1", "1000", "1994", "1"}, records[1])
	assert.Len(t, records, 4)
}

func TestForecastLineAndTable(t *testing.T) {
	ctx := context.Background()

	data, err := NewForecastLine().Render(ctx, regionRecord())
	require.NoError(t, err)
	rows, err := openWorkbook(t, data).GetRows("Forecast")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Week 1", rows[1][1])
	assert.Equal(t, "100", rows[1][2])
	assert.Equal(t, "+1", rows[3][1])
	assert.Equal(t, "", rows[3][2], "history column is blank for forecast rows")
	assert.Equal(t, "120", rows[3][3])

	data, err = NewForecastTable().Render(ctx, regionRecord())
	require.NoError(t, err)
	records := readCSV(t, data)
	assert.Equal(t, []string{"kind", "time_index", "period", "top10_gross", "overall_gross", "release_count"}, records[0])
	assert.Equal(t, []string{"history", "0", "Week 1", "100", "150", "10"}, records[1])
	assert.Equal(t, []string{"forecast", "3", "", "130", "180", "13"}, records[4])
}

func TestWordFrequencyFromCleanedComments(t *testing.T) {
	data, err := NewWordFrequency(1, textnorm.ScriptSegmenter{}).Render(context.Background(), itemRecord())
	require.NoError(t, err)

	rows, err := openWorkbook(t, data).GetRows("Tokens")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus top 1")
	assert.Equal(t, []string{"great", "2"}, rows[1])
}

func TestWordFrequencyPrefersTokenTable(t *testing.T) {
	rec := itemRecord()
	rec.Result = &pipeline.Result{Tokens: &domain.TokenTable{Counts: map[string]int{"sequel": 7}, TotalTokens: 7}}

	data, err := NewWordFrequency(10, nil).Render(context.Background(), rec)
	require.NoError(t, err)
	rows, err := openWorkbook(t, data).GetRows("Tokens")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Token", "Count"}, {"sequel", "7"}}, rows)
}

func TestCommentsTable(t *testing.T) {
	data, err := NewCommentsTable().Render(context.Background(), itemRecord())
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"index", "comment"},
		{"0", "great great movie"},
		{"1", "好看 好看"},
	}, readCSV(t, data))
}

func TestRenderersRejectMissingStages(t *testing.T) {
	ctx := context.Background()
	empty := pipeline.Record{Domain: pipeline.DomainCatalog, Key: "default"}

	_, err := NewClusterScatter().Render(ctx, empty)
	assert.Error(t, err)
	_, err = NewClusterDistribution().Render(ctx, empty)
	assert.Error(t, err)
	_, err = NewForecastTable().Render(ctx, empty)
	assert.Error(t, err)
	_, err = NewCommentsTable().Render(ctx, empty)
	assert.Error(t, err)
}

func TestRenderHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCentroidRadar().Render(ctx, catalogRecord())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestControllerRendersThroughRegistry(t *testing.T) {
	store := pipeline.NewStore()
	defer store.Close()
	c := pipeline.NewController(store, pipeline.DefaultConfig(),
		pipeline.WithRenderers(NewRegistry(Options{TopTokens: 5})))

	ctx := context.Background()
	_, err := c.Load(ctx, pipeline.DomainItem, "movie", domain.TextPayload([]string{"great great movie", "fine film"}))
	require.NoError(t, err)
	_, err = c.Clean(ctx, pipeline.DomainItem, "movie")
	require.NoError(t, err)

	art, err := c.Render(ctx, pipeline.DomainItem, "movie", TypeCommentsTable)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeCSV, art.ContentType)
	assert.Len(t, art.Digest, 64)

	_, err = c.Render(ctx, pipeline.DomainItem, "movie", TypeClusterScatter)
	assert.ErrorIs(t, err, pipeline.ErrInvalidParameter)
}
