package domain

// Metric names a box-office series forecast per region
type Metric string

const (
	MetricTop10Gross   Metric = "top10_gross"
	MetricOverallGross Metric = "overall_gross"
	MetricReleaseCount Metric = "release_count"
)

// Metrics lists the forecast metrics in export order
var Metrics = []Metric{MetricTop10Gross, MetricOverallGross, MetricReleaseCount}

// RegionPoint is one cleaned, chronologically indexed observation
type RegionPoint struct {
	TimeIndex    int     `json:"time_index"`
	PeriodLabel  string  `json:"period_label"`
	Top10Gross   float64 `json:"top10_gross"`
	OverallGross float64 `json:"overall_gross"`
	ReleaseCount float64 `json:"release_count"`
}

// Value returns the point's value for a metric
func (p RegionPoint) Value(m Metric) float64 {
	switch m {
	case MetricTop10Gross:
		return p.Top10Gross
	case MetricOverallGross:
		return p.OverallGross
	case MetricReleaseCount:
		return p.ReleaseCount
	}
	return 0
}

// SetValue assigns the point's value for a metric
func (p *RegionPoint) SetValue(m Metric, v float64) {
	switch m {
	case MetricTop10Gross:
		p.Top10Gross = v
	case MetricOverallGross:
		p.OverallGross = v
	case MetricReleaseCount:
		p.ReleaseCount = v
	}
}

// Series extracts one metric as a slice ordered by time index
func Series(points []RegionPoint, m Metric) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value(m)
	}
	return out
}

// ModelFit describes the fitted ARIMA model for one metric
type ModelFit struct {
	P             int       `json:"p"`
	D             int       `json:"d"`
	Q             int       `json:"q"`
	AR            []float64 `json:"ar"`
	MA            []float64 `json:"ma"`
	Sigma2        float64   `json:"sigma2"`
	LogLikelihood float64   `json:"log_likelihood"`
	Observations  int       `json:"observations"`
	Iterations    int       `json:"iterations"`
}

// ForecastSummary is the Region forecast result. Series[m][h] is the
// forecast h+1 steps past LastTimeIndex.
type ForecastSummary struct {
	Horizon       int                  `json:"horizon"`
	LastTimeIndex int                  `json:"last_time_index"`
	Series        map[Metric][]float64 `json:"series"`
	Fits          map[Metric]ModelFit  `json:"fits"`
}
