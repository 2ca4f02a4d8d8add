package dataprocessing

import (
	"fmt"
	"strings"

	"cinepulse/pkg/contracts/domain"
)

// Header aliases accepted per field. Matching is done on domain.NormalizeHeader.
var (
	TitleColumns        = []string{"title", "电影名字", "电影名称", "片名", "name", "movie"}
	RatingColumns       = []string{"rating", "评分", "score"}
	RatingCountColumns  = []string{"rating_count", "评分人数", "评价人数", "votes", "num_votes"}
	YearColumns         = []string{"year", "年份", "上映年份", "release_year"}
	PeriodColumns       = []string{"period_label", "period", "date", "month", "week", "日期", "时间"}
	Top10GrossColumns   = []string{"top10_gross", "top_10_gross", "top10", "前十票房"}
	OverallGrossColumns = []string{"overall_gross", "total_gross", "gross", "总票房"}
	ReleaseCountColumns = []string{"release_count", "releases", "发行数量", "上映数量"}
	CommentColumns      = []string{"comment", "comments", "content", "评论", "短评"}
)

type columnSpec struct {
	field   string
	aliases []string
}

// resolveColumns maps every field to a column index, reporting all missing
// fields at once.
func resolveColumns(f *domain.Frame, specs ...columnSpec) (map[string]int, error) {
	idx := make(map[string]int, len(specs))
	var missing []string
	for _, s := range specs {
		j := f.ColumnIndex(s.aliases...)
		if j < 0 {
			missing = append(missing, s.field)
			continue
		}
		idx[s.field] = j
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (have %s)", ErrMissingColumn,
			strings.Join(missing, ", "), strings.Join(f.Columns, ", "))
	}
	return idx, nil
}
