package dataprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepulse/internal/textnorm"
	"cinepulse/pkg/contracts/domain"
)

func TestParseHelpers(t *testing.T) {
	money := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,234.50", 1234.50, true},
		{"¥ 88,000", 88000, true},
		{"US$12", 12, true},
		{"€3.5", 3.5, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range money {
		got, ok := parseMoney(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}

	counts := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"2,345,678人评价", 2345678, true},
		{"1200 votes", 1200, true},
		{"1500.0", 1500, true},
		{"0", 0, false},
		{"-5", 0, false},
		{"12.5", 0, false},
		{"many", 0, false},
	}
	for _, tt := range counts {
		got, ok := parseCount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCleanCatalog(t *testing.T) {
	f := domain.NewFrame("电影名字", "评分", "评分人数", "年份", "导演")
	f.Append("肖申克的救赎", "9.7", "2,900,000人评价", "1994", "Frank Darabont")
	f.Append("Too Good", "11", "100", "2000", "")
	f.Append("Ancient", "8.0", "100", "1899", "")
	f.Append("Broken", "not a number", "100", "2001", "")
	f.Append("No Votes", "7.0", "0", "2001", "")
	f.Append("Future", "7.0", "10", "2030", "")
	f.Append("Half Year", "7.0", "10", "2001.5", "")
	f.Append("霸王别姬", "9.6", "2100000", "1993.0", "陈凯歌")

	res, err := CleanCatalog(f)
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, domain.CatalogRow{Title: "肖申克的救赎", Rating: 9.7, RatingCount: 2900000, Year: 1994}, res.Rows[0])
	assert.Equal(t, domain.CatalogRow{Title: "霸王别姬", Rating: 9.6, RatingCount: 2100000, Year: 1993}, res.Rows[1])

	assert.Equal(t, 8, res.Report.InputRows)
	assert.Equal(t, 2, res.Report.KeptRows)
	assert.Equal(t, 6, res.Report.DroppedRows)
	assert.Equal(t, map[string]int{
		ReasonRatingOutOfRange:   1,
		ReasonYearOutOfRange:     2,
		ReasonInvalidRating:      1,
		ReasonInvalidRatingCount: 1,
		ReasonInvalidYear:        1,
	}, res.Report.DropReasons)

	require.Len(t, res.Outcomes, 8)
	assert.Equal(t, ReasonRatingOutOfRange, res.Outcomes[1].Reason)
	assert.True(t, res.Outcomes[7].Kept)
}

func TestCleanCatalogBounds(t *testing.T) {
	f := domain.NewFrame("title", "rating", "rating_count", "year")
	f.Append("lowest", "0", "1", "1900")
	f.Append("highest", "10", "1", "2025")

	res, err := CleanCatalog(f)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2, "bounds are inclusive")
}

func TestCleanCatalogMissingColumn(t *testing.T) {
	f := domain.NewFrame("title", "rating", "year")
	f.Append("x", "5", "2000")

	_, err := CleanCatalog(f)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "rating_count")
}

func TestCleanRegionInterpolatesAndIndexes(t *testing.T) {
	f := domain.NewFrame("Period", "Top_10_Gross", "Overall_Gross", "Releases")
	f.Append("Week A", "$10", "$100", "5")
	f.Append("Week B", "", "$200", "")
	f.Append("Week C", "$20", "n/a", "7")
	f.Append("", "", "", "")
	f.Append("Week D", "$1,234.50", "$400", "9")

	res, err := CleanRegion(f)
	require.NoError(t, err)
	require.Len(t, res.Points, 4)

	for i, p := range res.Points {
		assert.Equal(t, i+1, p.TimeIndex, "time index is dense from 1")
	}
	assert.Equal(t, "Week B", res.Points[1].PeriodLabel)
	assert.InDelta(t, 15, res.Points[1].Top10Gross, 1e-9)
	assert.InDelta(t, 300, res.Points[2].OverallGross, 1e-9)
	assert.InDelta(t, 6, res.Points[1].ReleaseCount, 1e-9)
	assert.InDelta(t, 1234.50, res.Points[3].Top10Gross, 1e-9)

	assert.Equal(t, 3, res.Report.FilledValues)
	assert.False(t, res.Report.Reordered, "non-calendar labels keep input order")
	assert.Equal(t, 1, res.Report.DroppedRows)
	assert.Equal(t, 1, res.Report.DropReasons[ReasonBlankRow])
}

func TestCleanRegionChronologicalOrder(t *testing.T) {
	f := domain.NewFrame("date", "top10_gross", "overall_gross", "release_count")
	f.Append("Mar 3", "3", "30", "3")
	f.Append("Jan 5", "1", "10", "1")
	f.Append("Dec 24-30", "12", "120", "12")
	f.Append("February", "2", "20", "2")

	res, err := CleanRegion(f)
	require.NoError(t, err)

	labels := make([]string, len(res.Points))
	for i, p := range res.Points {
		labels[i] = p.PeriodLabel
	}
	assert.Equal(t, []string{"Jan 5", "February", "Mar 3", "Dec 24-30"}, labels)
	assert.True(t, res.Report.Reordered)
	assert.Equal(t, 1, res.Points[0].TimeIndex)
	assert.InDelta(t, 12, res.Points[3].Top10Gross, 1e-9)
}

func TestCleanRegionEndpointsTakeNearestValue(t *testing.T) {
	f := domain.NewFrame("period", "top10_gross", "overall_gross", "releases")
	f.Append("p1", "", "1", "1")
	f.Append("p2", "50", "2", "1")
	f.Append("p3", "", "3", "")

	res, err := CleanRegion(f)
	require.NoError(t, err)

	assert.InDelta(t, 50, res.Points[0].Top10Gross, 1e-9)
	assert.InDelta(t, 50, res.Points[2].Top10Gross, 1e-9)
	assert.InDelta(t, 1, res.Points[2].ReleaseCount, 1e-9)
}

func TestCleanRegionErrors(t *testing.T) {
	t.Run("impossible day", func(t *testing.T) {
		f := domain.NewFrame("period", "top10_gross", "overall_gross", "releases")
		f.Append("Feb 30", "1", "1", "1")
		f.Append("Mar 1", "1", "1", "1")

		_, err := CleanRegion(f)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("metric without numbers", func(t *testing.T) {
		f := domain.NewFrame("period", "top10_gross", "overall_gross", "releases")
		f.Append("a", "x", "1", "1")
		f.Append("b", "", "1", "1")

		_, err := CleanRegion(f)
		assert.ErrorIs(t, err, ErrNoNumericValues)
		assert.Contains(t, err.Error(), string(domain.MetricTop10Gross))
	})

	t.Run("missing column", func(t *testing.T) {
		f := domain.NewFrame("period", "top10_gross")
		f.Append("a", "1")

		_, err := CleanRegion(f)
		assert.ErrorIs(t, err, ErrMissingColumn)
	})
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		label   string
		want    periodKey
		ok      bool
		wantErr bool
	}{
		{"Jan 5", periodKey{0, 1, 5}, true, false},
		{"january", periodKey{0, 1, 0}, true, false},
		{"Sept. 3rd", periodKey{0, 9, 3}, true, false},
		{"Mar 3, 2019", periodKey{2019, 3, 3}, true, false},
		{"March 2019", periodKey{2019, 3, 0}, true, false},
		{"Feb 29", periodKey{0, 2, 29}, true, false},
		{"2019-07-14", periodKey{2019, 7, 14}, true, false},
		{"1月5日", periodKey{0, 1, 5}, true, false},
		{"2019年3月", periodKey{2019, 3, 0}, true, false},
		{"Week 12", periodKey{}, false, false},
		{"Q1", periodKey{}, false, false},
		{"", periodKey{}, false, false},
		{"Feb 30", periodKey{}, false, true},
		{"Apr 31", periodKey{}, false, true},
		{"Dec 24-32", periodKey{}, false, true},
		{"Jan 5 and more", periodKey{}, false, true},
		{"13月", periodKey{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			key, ok, err := parsePeriod(tt.label)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestLinearInterpolator(t *testing.T) {
	nan := math.NaN()
	values, stats := NewLinearInterpolator().Fill([]float64{nan, 10, nan, nan, 40, nan})

	assert.Equal(t, []float64{10, 10, 20, 30, 40, 40}, values)
	assert.Equal(t, 2, stats.Observed)
	assert.Equal(t, 2, stats.Interpolated)
	assert.Equal(t, 2, stats.EdgeFilled)
	assert.Equal(t, 4, stats.Filled())

	values, stats = NewLinearInterpolator().Fill([]float64{nan, nan})
	assert.Equal(t, 0, stats.Observed)
	assert.True(t, math.IsNaN(values[0]))
}

func TestCleanComments(t *testing.T) {
	res, err := CleanComments([]string{"真的好看！", "...", "我也", "Nice, very nice."}, textnorm.New())
	require.NoError(t, err)

	assert.Equal(t, []string{"真好看", "Nice very nice"}, res.Comments)
	assert.Equal(t, 4, res.Report.InputRows)
	assert.Equal(t, 2, res.Report.DroppedRows)
	assert.Equal(t, 2, res.Report.DropReasons[textnorm.ReasonEmptyAfterClean])

	_, err = CleanComments(nil, nil)
	assert.ErrorIs(t, err, ErrNoData)
}
