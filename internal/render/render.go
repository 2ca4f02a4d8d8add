package render

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"cinepulse/internal/exporter"
	"cinepulse/internal/pipeline"
	"cinepulse/internal/textnorm"
	"cinepulse/pkg/contracts/domain"
)

// Content types of rendered artifacts
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv; charset=utf-8"
)

// Artifact type names
const (
	TypeClusterScatter      = "cluster_scatter"
	TypeCentroidRadar       = "centroid_radar"
	TypeClusterDistribution = "cluster_distribution"
	TypeClusterTable        = "cluster_table"
	TypeForecastLine        = "forecast_line"
	TypeForecastTable       = "forecast_table"
	TypeWordFrequency       = "word_frequency"
	TypeCommentsTable       = "comments_table"
)

// DefaultTopTokens bounds the word frequency chart
const DefaultTopTokens = 30

// Options configures the renderer set
type Options struct {
	TopTokens int
	Segmenter textnorm.Segmenter
}

// NewRegistry returns a registry holding every artifact renderer
func NewRegistry(opts Options) *pipeline.Registry {
	if opts.TopTokens <= 0 {
		opts.TopTokens = DefaultTopTokens
	}
	if opts.Segmenter == nil {
		opts.Segmenter = textnorm.ScriptSegmenter{}
	}
	return pipeline.NewRegistry(
		NewClusterScatter(),
		NewCentroidRadar(),
		NewClusterDistribution(),
		NewClusterTable(),
		NewForecastLine(),
		NewForecastTable(),
		NewWordFrequency(opts.TopTokens, opts.Segmenter),
		NewCommentsTable(),
	)
}

// newWorkbook creates a workbook whose first sheet is named sheet
func newWorkbook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	return f, nil
}

// writeRows writes rows starting at A1. Nil values leave the cell empty so
// charts show a gap instead of zero.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		for j, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

// finish serializes and closes the workbook
func finish(f *excelize.File) ([]byte, error) {
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// colRange builds an absolute reference like Sheet!$B$2:$B$9
func colRange(sheet string, col, fromRow, toRow int) string {
	name, _ := excelize.ColumnNumberToName(col)
	return fmt.Sprintf("%s!$%s$%d:$%s$%d", sheet, name, fromRow, name, toRow)
}

// cellRef builds an absolute reference like Sheet!$B$1
func cellRef(sheet string, col, row int) string {
	name, _ := excelize.ColumnNumberToName(col)
	return fmt.Sprintf("%s!$%s$%d", sheet, name, row)
}

func title(text string) []excelize.RichTextRun {
	return []excelize.RichTextRun{{Text: text}}
}

// frameCSV renders a frame as BOM-prefixed CSV
func frameCSV(f *domain.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := exporter.WriteFrame(&buf, f, exporter.WriteOptions{BOMPrefix: true}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// meta carries the static part of a renderer
type meta struct {
	typ         string
	domain      pipeline.Domain
	needs       pipeline.Stage
	contentType string
}

func (m meta) Type() string            { return m.typ }
func (m meta) Domain() pipeline.Domain { return m.domain }
func (m meta) Needs() pipeline.Stage   { return m.needs }
func (m meta) ContentType() string     { return m.contentType }
