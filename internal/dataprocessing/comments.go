package dataprocessing

import (
	"strings"

	"cinepulse/internal/textnorm"
	"cinepulse/pkg/contracts/domain"
)

// CommentsResult is the cleaned comment corpus for one title
type CommentsResult struct {
	Comments []string            `json:"comments"`
	Outcomes []domain.RowOutcome `json:"-"`
	Report   domain.CleanReport  `json:"report"`
}

// CleanComments strips punctuation and stop words from each comment and drops
// the ones left empty. Original order is kept.
func CleanComments(lines []string, n *textnorm.Normalizer) (*CommentsResult, error) {
	if len(lines) == 0 {
		return nil, ErrNoData
	}
	if n == nil {
		n = textnorm.New()
	}
	cleaned, outcomes := n.CleanAll(lines)
	return &CommentsResult{
		Comments: cleaned,
		Outcomes: outcomes,
		Report:   domain.NewCleanReport(outcomes),
	}, nil
}

// CommentsFromFrame extracts the comment column of a table as text lines
func CommentsFromFrame(f *domain.Frame) ([]string, error) {
	if f.Empty() {
		return nil, ErrNoData
	}
	cols, err := resolveColumns(f, columnSpec{"comment", CommentColumns})
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(f.Rows))
	for i := range f.Rows {
		if c := f.Cell(i, cols["comment"]); strings.TrimSpace(c) != "" {
			lines = append(lines, c)
		}
	}
	if len(lines) == 0 {
		return nil, ErrNoData
	}
	return lines, nil
}
