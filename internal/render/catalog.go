package render

import (
	"context"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cinepulse/internal/clustering"
	"cinepulse/internal/exporter"
	"cinepulse/internal/pipeline"
	"cinepulse/pkg/contracts/domain"
)

func clusterSummary(rec pipeline.Record) (*domain.ClusterSummary, error) {
	if rec.Result == nil || rec.Result.Clusters == nil {
		return nil, fmt.Errorf("record %s/%s has no cluster result", rec.Domain, rec.Key)
	}
	return rec.Result.Clusters, nil
}

func clusterName(c int) string {
	return fmt.Sprintf("Cluster %d", c+1)
}

// ClusterScatter plots rating against rating count, one series per cluster
type ClusterScatter struct{ meta }

// NewClusterScatter creates the cluster_scatter renderer
func NewClusterScatter() ClusterScatter {
	return ClusterScatter{meta{TypeClusterScatter, pipeline.DomainCatalog, pipeline.StageResult, ContentTypeXLSX}}
}

// Render implements pipeline.Renderer
func (r ClusterScatter) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	summary, err := clusterSummary(rec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	const rowsSheet, legendSheet = "Rows", "Clusters"

	// Rows grouped by cluster so each series is one contiguous range
	rows := append([]domain.ClusteredRow(nil), summary.Rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Cluster < rows[j].Cluster })

	data := [][]interface{}{{"Title", "Rating", "Rating Count", "Year", "Cluster"}}
	for _, row := range rows {
		data = append(data, []interface{}{row.Title, row.Rating, row.RatingCount, row.Year, clusterName(row.Cluster)})
	}

	f, err := newWorkbook(rowsSheet)
	if err != nil {
		return nil, err
	}
	if err := writeRows(f, rowsSheet, data); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(legendSheet); err != nil {
		f.Close()
		return nil, err
	}
	sizes := summary.ClusterSizes()
	legend := [][]interface{}{{"Cluster", "Size"}}
	for c := 0; c < summary.K; c++ {
		legend = append(legend, []interface{}{clusterName(c), sizes[c]})
	}
	if err := writeRows(f, legendSheet, legend); err != nil {
		f.Close()
		return nil, err
	}

	var series []excelize.ChartSeries
	start := 2
	for c := 0; c < summary.K; c++ {
		if sizes[c] == 0 {
			continue
		}
		end := start + sizes[c] - 1
		series = append(series, excelize.ChartSeries{
			Name:       cellRef(legendSheet, 1, c+2),
			Categories: colRange(rowsSheet, 3, start, end),
			Values:     colRange(rowsSheet, 2, start, end),
			Marker:     excelize.ChartMarker{Symbol: "circle", Size: 6},
		})
		start = end + 1
	}

	if err := f.AddChart(rowsSheet, "G2", &excelize.Chart{
		Type:      excelize.Scatter,
		Series:    series,
		Title:     title(fmt.Sprintf("Rating vs rating count (k=%d)", summary.K)),
		Legend:    excelize.ChartLegend{Position: "bottom"},
		XAxis:     excelize.ChartAxis{Title: title("Rating count")},
		YAxis:     excelize.ChartAxis{Title: title("Rating")},
		Dimension: excelize.ChartDimension{Width: 720, Height: 420},
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add scatter chart: %w", err)
	}
	return finish(f)
}

// CentroidRadar draws one radar series per cluster centroid over the
// standardized features
type CentroidRadar struct{ meta }

// NewCentroidRadar creates the centroid_radar renderer
func NewCentroidRadar() CentroidRadar {
	return CentroidRadar{meta{TypeCentroidRadar, pipeline.DomainCatalog, pipeline.StageResult, ContentTypeXLSX}}
}

// Render implements pipeline.Renderer
func (r CentroidRadar) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	summary, err := clusterSummary(rec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	const sheet = "Centroids"
	nf := len(summary.FeatureNames)

	header := []interface{}{"Feature"}
	for c := 0; c < summary.K; c++ {
		header = append(header, clusterName(c))
	}

	// Standardized block feeds the chart, raw block is for reading
	data := [][]interface{}{header}
	for j, name := range summary.FeatureNames {
		row := []interface{}{name}
		for c := 0; c < summary.K; c++ {
			row = append(row, summary.Centroids[c][j])
		}
		data = append(data, row)
	}
	data = append(data, []interface{}{}, append([]interface{}{"Feature (raw units)"}, header[1:]...))
	for j, name := range summary.FeatureNames {
		row := []interface{}{name}
		for c := 0; c < summary.K; c++ {
			row = append(row, summary.Mean[j]+summary.Centroids[c][j]*summary.Scale[j])
		}
		data = append(data, row)
	}

	f, err := newWorkbook(sheet)
	if err != nil {
		return nil, err
	}
	if err := writeRows(f, sheet, data); err != nil {
		f.Close()
		return nil, err
	}

	series := make([]excelize.ChartSeries, 0, summary.K)
	for c := 0; c < summary.K; c++ {
		series = append(series, excelize.ChartSeries{
			Name:       cellRef(sheet, c+2, 1),
			Categories: colRange(sheet, 1, 2, nf+1),
			Values:     colRange(sheet, c+2, 2, nf+1),
		})
	}
	anchor, _ := excelize.CoordinatesToCellName(summary.K+3, 2)
	if err := f.AddChart(sheet, anchor, &excelize.Chart{
		Type:      excelize.Radar,
		Series:    series,
		Title:     title("Cluster centroids (standardized)"),
		Legend:    excelize.ChartLegend{Position: "right"},
		Dimension: excelize.ChartDimension{Width: 560, Height: 420},
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add radar chart: %w", err)
	}
	return finish(f)
}

// ClusterDistribution summarizes each feature per cluster in raw units with
// min, quartiles and max
type ClusterDistribution struct{ meta }

// NewClusterDistribution creates the cluster_distribution renderer
func NewClusterDistribution() ClusterDistribution {
	return ClusterDistribution{meta{TypeClusterDistribution, pipeline.DomainCatalog, pipeline.StageResult, ContentTypeXLSX}}
}

// Render implements pipeline.Renderer
func (r ClusterDistribution) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	summary, err := clusterSummary(rec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	const sheet = "Distribution"

	catalog := make([]domain.CatalogRow, len(summary.Rows))
	for i, row := range summary.Rows {
		catalog[i] = row.CatalogRow
	}
	raw := clustering.CatalogFeatures(catalog)

	data := [][]interface{}{{"Feature", "Cluster", "Size", "Min", "Q1", "Median", "Q3", "Max"}}
	for j, name := range summary.FeatureNames {
		for c := 0; c < summary.K; c++ {
			var values []float64
			for i, row := range summary.Rows {
				if row.Cluster == c && j < len(raw[i]) {
					values = append(values, raw[i][j])
				}
			}
			line := []interface{}{name, clusterName(c), len(values)}
			if len(values) > 0 {
				line = append(line, quartiles(values)...)
			}
			data = append(data, line)
		}
	}

	f, err := newWorkbook(sheet)
	if err != nil {
		return nil, err
	}
	if err := writeRows(f, sheet, data); err != nil {
		f.Close()
		return nil, err
	}
	return finish(f)
}

// quartiles returns min, Q1, median, Q3 and max of values; values is sorted in place
func quartiles(values []float64) []interface{} {
	sort.Float64s(values)
	return []interface{}{
		floats.Min(values),
		stat.Quantile(0.25, stat.LinInterp, values, nil),
		stat.Quantile(0.5, stat.LinInterp, values, nil),
		stat.Quantile(0.75, stat.LinInterp, values, nil),
		floats.Max(values),
	}
}

// ClusterTable lists every cleaned catalog row with its cluster label
type ClusterTable struct{ meta }

// NewClusterTable creates the cluster_table renderer
func NewClusterTable() ClusterTable {
	return ClusterTable{meta{TypeClusterTable, pipeline.DomainCatalog, pipeline.StageResult, ContentTypeCSV}}
}

// Render implements pipeline.Renderer
func (r ClusterTable) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	summary, err := clusterSummary(rec)
	if err != nil {
		return nil, err
	}
	frame := domain.NewFrame("title", "rating", "rating_count", "year", "cluster")
	for _, row := range summary.Rows {
		frame.Append(row.Title,
			exporter.FormatFloat(row.Rating, -1),
			exporter.FormatInt(row.RatingCount),
			exporter.FormatInt(int64(row.Year)),
			exporter.FormatInt(int64(row.Cluster)))
	}
	return frameCSV(frame)
}
