package dataprocessing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"cinepulse/pkg/contracts/domain"
)

// Region drop reasons
const (
	ReasonBlankRow = "blank_row"
)

// RegionResult is the cleaned, chronologically indexed box-office series
type RegionResult struct {
	Points   []domain.RegionPoint `json:"points"`
	Outcomes []domain.RowOutcome  `json:"-"`
	Report   domain.CleanReport   `json:"report"`
}

type regionRow struct {
	input  int
	label  string
	values map[domain.Metric]float64
	key    periodKey
}

// CleanRegion keeps {period_label, top10_gross, overall_gross, release_count},
// parses the figures, orders rows chronologically when every label is a
// calendar phrase, assigns a dense time index from 1 and fills the remaining
// gaps by linear interpolation along that index.
func CleanRegion(f *domain.Frame) (*RegionResult, error) {
	if f.Empty() {
		return nil, ErrNoData
	}
	cols, err := resolveColumns(f,
		columnSpec{"period_label", PeriodColumns},
		columnSpec{string(domain.MetricTop10Gross), Top10GrossColumns},
		columnSpec{string(domain.MetricOverallGross), OverallGrossColumns},
		columnSpec{string(domain.MetricReleaseCount), ReleaseCountColumns},
	)
	if err != nil {
		return nil, err
	}

	outcomes := make([]domain.RowOutcome, len(f.Rows))
	rows := make([]regionRow, 0, len(f.Rows))
	for i := range f.Rows {
		if blankRegionRow(f, i, cols) {
			outcomes[i] = domain.RowOutcome{Row: i, Reason: ReasonBlankRow}
			continue
		}
		outcomes[i] = domain.RowOutcome{Row: i, Kept: true}
		rows = append(rows, regionRow{
			input: i,
			label: strings.TrimSpace(f.Cell(i, cols["period_label"])),
			values: map[domain.Metric]float64{
				domain.MetricTop10Gross:   moneyOrNaN(f.Cell(i, cols[string(domain.MetricTop10Gross)])),
				domain.MetricOverallGross: moneyOrNaN(f.Cell(i, cols[string(domain.MetricOverallGross)])),
				domain.MetricReleaseCount: numberOrNaN(f.Cell(i, cols[string(domain.MetricReleaseCount)])),
			},
		})
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}

	reordered, err := orderChronologically(rows)
	if err != nil {
		return nil, err
	}

	points := make([]domain.RegionPoint, len(rows))
	for i, r := range rows {
		points[i] = domain.RegionPoint{TimeIndex: i + 1, PeriodLabel: r.label}
	}

	filled := 0
	interp := NewLinearInterpolator()
	for _, metric := range domain.Metrics {
		series := make([]float64, len(rows))
		for i, r := range rows {
			series[i] = r.values[metric]
		}
		values, stats := interp.Fill(series)
		if stats.Observed == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoNumericValues, metric)
		}
		filled += stats.Filled()
		for i, v := range values {
			points[i].SetValue(metric, v)
		}
	}

	report := domain.NewCleanReport(outcomes)
	report.FilledValues = filled
	report.Reordered = reordered
	return &RegionResult{Points: points, Outcomes: outcomes, Report: report}, nil
}

// orderChronologically sorts rows in place by calendar key when every label
// parses as a calendar phrase; otherwise input order is kept.
func orderChronologically(rows []regionRow) (bool, error) {
	allCalendar := true
	for i := range rows {
		key, ok, err := parsePeriod(rows[i].label)
		if err != nil {
			return false, err
		}
		if !ok {
			allCalendar = false
			continue
		}
		rows[i].key = key
	}
	if !allCalendar {
		return false, nil
	}

	sorted := sort.SliceIsSorted(rows, func(a, b int) bool { return rows[a].key.less(rows[b].key) })
	sort.SliceStable(rows, func(a, b int) bool { return rows[a].key.less(rows[b].key) })
	return !sorted, nil
}

func blankRegionRow(f *domain.Frame, i int, cols map[string]int) bool {
	for _, j := range cols {
		if strings.TrimSpace(f.Cell(i, j)) != "" {
			return false
		}
	}
	return true
}

func moneyOrNaN(s string) float64 {
	if v, ok := parseMoney(s); ok {
		return v
	}
	return math.NaN()
}

func numberOrNaN(s string) float64 {
	if v, ok := parseNumber(s); ok {
		return v
	}
	return math.NaN()
}
