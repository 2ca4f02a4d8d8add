package pipeline

import (
	"strconv"

	"cinepulse/pkg/contracts/domain"
)

// Export flattens one committed stage of a record into a row-oriented frame
func (c *Controller) Export(d Domain, key string, stage Stage) (*domain.Frame, error) {
	rec, err := c.Record(d, key)
	if err != nil {
		return nil, err
	}
	if stage == StageArtifact || !rec.Has(stage) {
		return nil, NewPrerequisiteError(d, rec.Key, "", stage)
	}

	switch stage {
	case StageRaw:
		return exportRaw(rec.Raw), nil
	case StageCleaned:
		return exportCleaned(rec.Cleaned), nil
	default:
		return exportResult(rec.Result), nil
	}
}

func exportRaw(p *domain.Payload) *domain.Frame {
	if p.Kind == domain.PayloadKindTable {
		return p.Table.Clone()
	}
	f := domain.NewFrame("comment")
	for _, line := range p.Text {
		f.Append(line)
	}
	return f
}

func exportCleaned(c *Cleaned) *domain.Frame {
	switch {
	case c.Catalog != nil:
		f := domain.NewFrame("title", "rating", "rating_count", "year")
		for _, r := range c.Catalog {
			f.Append(r.Title, formatFloat(r.Rating), strconv.FormatInt(r.RatingCount, 10), strconv.Itoa(r.Year))
		}
		return f
	case c.Region != nil:
		f := domain.NewFrame("time_index", "period_label", "top10_gross", "overall_gross", "release_count")
		for _, p := range c.Region {
			f.Append(strconv.Itoa(p.TimeIndex), p.PeriodLabel,
				formatFloat(p.Top10Gross), formatFloat(p.OverallGross), formatFloat(p.ReleaseCount))
		}
		return f
	default:
		f := domain.NewFrame("cleaned_comment")
		for _, line := range c.Comments {
			f.Append(line)
		}
		return f
	}
}

func exportResult(r *Result) *domain.Frame {
	switch {
	case r.Clusters != nil:
		f := domain.NewFrame("title", "rating", "rating_count", "year", "cluster")
		for _, row := range r.Clusters.Rows {
			f.Append(row.Title, formatFloat(row.Rating), strconv.FormatInt(row.RatingCount, 10),
				strconv.Itoa(row.Year), strconv.Itoa(row.Cluster))
		}
		return f
	case r.Forecast != nil:
		cols := []string{"step", "time_index"}
		for _, m := range domain.Metrics {
			cols = append(cols, string(m))
		}
		f := domain.NewFrame(cols...)
		for h := 0; h < r.Forecast.Horizon; h++ {
			row := []string{strconv.Itoa(h + 1), strconv.Itoa(r.Forecast.LastTimeIndex + h + 1)}
			for _, m := range domain.Metrics {
				row = append(row, formatFloat(r.Forecast.Series[m][h]))
			}
			f.Append(row...)
		}
		return f
	default:
		f := domain.NewFrame("token", "count")
		if r.Tokens != nil {
			for _, tc := range r.Tokens.Ordered() {
				f.Append(tc.Token, strconv.Itoa(tc.Count))
			}
		}
		return f
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
