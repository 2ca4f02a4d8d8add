package render

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"cinepulse/internal/exporter"
	"cinepulse/internal/pipeline"
	"cinepulse/pkg/contracts/domain"
)

var metricTitles = map[domain.Metric]string{
	domain.MetricTop10Gross:   "Top 10 gross",
	domain.MetricOverallGross: "Overall gross",
	domain.MetricReleaseCount: "Releases",
}

func forecastInputs(rec pipeline.Record) ([]domain.RegionPoint, *domain.ForecastSummary, error) {
	if rec.Result == nil || rec.Result.Forecast == nil {
		return nil, nil, fmt.Errorf("record %s/%s has no forecast result", rec.Domain, rec.Key)
	}
	var history []domain.RegionPoint
	if rec.Cleaned != nil {
		history = rec.Cleaned.Region
	}
	return history, rec.Result.Forecast, nil
}

// ForecastLine charts history and forecast of every metric in one workbook
type ForecastLine struct{ meta }

// NewForecastLine creates the forecast_line renderer
func NewForecastLine() ForecastLine {
	return ForecastLine{meta{TypeForecastLine, pipeline.DomainRegion, pipeline.StageResult, ContentTypeXLSX}}
}

// Render implements pipeline.Renderer. Columns are time index, period, then a
// history and a forecast column per metric; the unused one stays blank so the
// two lines meet without overlapping.
func (r ForecastLine) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	history, fc, err := forecastInputs(rec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	const sheet = "Forecast"
	header := []interface{}{"Time Index", "Period"}
	for _, m := range domain.Metrics {
		header = append(header, metricTitles[m]+" (history)", metricTitles[m]+" (forecast)")
	}
	data := [][]interface{}{header}
	for _, p := range history {
		row := []interface{}{p.TimeIndex, p.PeriodLabel}
		for _, m := range domain.Metrics {
			row = append(row, p.Value(m), nil)
		}
		data = append(data, row)
	}
	for h := 0; h < fc.Horizon; h++ {
		row := []interface{}{fc.LastTimeIndex + h + 1, fmt.Sprintf("+%d", h+1)}
		for _, m := range domain.Metrics {
			var v interface{}
			if h < len(fc.Series[m]) {
				v = fc.Series[m][h]
			}
			row = append(row, nil, v)
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

	last := len(data)
	anchorCol := len(header) + 2
	for i, m := range domain.Metrics {
		histCol, fcCol := 3+2*i, 4+2*i
		anchor, _ := excelize.CoordinatesToCellName(anchorCol, 2+i*22)
		if err := f.AddChart(sheet, anchor, &excelize.Chart{
			Type: excelize.Line,
			Series: []excelize.ChartSeries{
				{Name: cellRef(sheet, histCol, 1), Categories: colRange(sheet, 1, 2, last), Values: colRange(sheet, histCol, 2, last)},
				{Name: cellRef(sheet, fcCol, 1), Categories: colRange(sheet, 1, 2, last), Values: colRange(sheet, fcCol, 2, last)},
			},
			Title:     title(metricTitles[m]),
			Legend:    excelize.ChartLegend{Position: "bottom"},
			XAxis:     excelize.ChartAxis{Title: title("Time index")},
			Dimension: excelize.ChartDimension{Width: 720, Height: 400},
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add %s chart: %w", m, err)
		}
	}
	return finish(f)
}

// ForecastTable lists history and forecast rows with a kind column
type ForecastTable struct{ meta }

// NewForecastTable creates the forecast_table renderer
func NewForecastTable() ForecastTable {
	return ForecastTable{meta{TypeForecastTable, pipeline.DomainRegion, pipeline.StageResult, ContentTypeCSV}}
}

// Render implements pipeline.Renderer
func (r ForecastTable) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	history, fc, err := forecastInputs(rec)
	if err != nil {
		return nil, err
	}

	columns := []string{"kind", "time_index", "period"}
	for _, m := range domain.Metrics {
		columns = append(columns, string(m))
	}
	frame := domain.NewFrame(columns...)
	for _, p := range history {
		row := []string{"history", exporter.FormatInt(int64(p.TimeIndex)), p.PeriodLabel}
		for _, m := range domain.Metrics {
			row = append(row, exporter.FormatFloat(p.Value(m), 2))
		}
		frame.Append(row...)
	}
	for h := 0; h < fc.Horizon; h++ {
		row := []string{"forecast", exporter.FormatInt(int64(fc.LastTimeIndex + h + 1)), ""}
		for _, m := range domain.Metrics {
			v := ""
			if h < len(fc.Series[m]) {
				v = exporter.FormatFloat(fc.Series[m][h], 2)
			}
			row = append(row, v)
		}
		frame.Append(row...)
	}
	return frameCSV(frame)
}
