package render

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"cinepulse/internal/exporter"
	"cinepulse/internal/pipeline"
	"cinepulse/internal/textnorm"
	"cinepulse/pkg/contracts/domain"
)

// WordFrequency charts the most frequent tokens. It prefers the committed
// token table and otherwise tallies the cleaned comments itself.
type WordFrequency struct {
	meta
	topN      int
	segmenter textnorm.Segmenter
}

// NewWordFrequency creates the word_frequency renderer
func NewWordFrequency(topN int, seg textnorm.Segmenter) WordFrequency {
	if topN <= 0 {
		topN = DefaultTopTokens
	}
	return WordFrequency{
		meta:      meta{TypeWordFrequency, pipeline.DomainItem, pipeline.StageCleaned, ContentTypeXLSX},
		topN:      topN,
		segmenter: seg,
	}
}

func (r WordFrequency) table(rec pipeline.Record) (domain.TokenTable, error) {
	if rec.Result != nil && rec.Result.Tokens != nil {
		return *rec.Result.Tokens, nil
	}
	if rec.Cleaned == nil {
		return domain.TokenTable{}, fmt.Errorf("record %s/%s has no cleaned comments", rec.Domain, rec.Key)
	}
	return textnorm.Tally(rec.Cleaned.Comments, r.segmenter), nil
}

// Render implements pipeline.Renderer
func (r WordFrequency) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	table, err := r.table(rec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	const sheet = "Tokens"
	top := table.Top(r.topN)
	data := [][]interface{}{{"Token", "Count"}}
	for _, tc := range top {
		data = append(data, []interface{}{tc.Token, tc.Count})
	}

	f, err := newWorkbook(sheet)
	if err != nil {
		return nil, err
	}
	if err := writeRows(f, sheet, data); err != nil {
		f.Close()
		return nil, err
	}

	if len(top) > 0 {
		last := len(top) + 1
		if err := f.AddChart(sheet, "D2", &excelize.Chart{
			Type: excelize.Col,
			Series: []excelize.ChartSeries{{
				Name:       cellRef(sheet, 2, 1),
				Categories: colRange(sheet, 1, 2, last),
				Values:     colRange(sheet, 2, 2, last),
			}},
			Title:     title(fmt.Sprintf("Top %d tokens of %d", len(top), table.TotalTokens)),
			Legend:    excelize.ChartLegend{Position: "none"},
			Dimension: excelize.ChartDimension{Width: 800, Height: 420},
		}); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add bar chart: %w", err)
		}
	}
	return finish(f)
}

// CommentsTable lists the cleaned comments in input order
type CommentsTable struct{ meta }

// NewCommentsTable creates the comments_table renderer
func NewCommentsTable() CommentsTable {
	return CommentsTable{meta{TypeCommentsTable, pipeline.DomainItem, pipeline.StageCleaned, ContentTypeCSV}}
}

// Render implements pipeline.Renderer
func (r CommentsTable) Render(ctx context.Context, rec pipeline.Record) ([]byte, error) {
	if rec.Cleaned == nil {
		return nil, fmt.Errorf("record %s/%s has no cleaned comments", rec.Domain, rec.Key)
	}
	frame := domain.NewFrame("index", "comment")
	for i, c := range rec.Cleaned.Comments {
		frame.Append(exporter.FormatInt(int64(i)), c)
	}
	return frameCSV(frame)
}
