package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame(t *testing.T) {
	f := NewFrame("\ufeffTitle", "Rating Count", "release-year")
	f.Append("A", "10")
	f.Append("B", "20", "1999")

	assert.Equal(t, 1, f.ColumnIndex("rating_count"))
	assert.Equal(t, 2, f.ColumnIndex("year", "Release Year"))
	assert.Equal(t, 0, f.ColumnIndex("title"))
	assert.Equal(t, -1, f.ColumnIndex("gross"))

	assert.Equal(t, "", f.Cell(0, 2), "short rows read as empty")
	assert.Equal(t, "1999", f.Cell(1, 2))
	assert.Equal(t, "", f.Cell(5, 0))

	clone := f.Clone()
	clone.Rows[0][0] = "Z"
	assert.Equal(t, "A", f.Rows[0][0])
	assert.Nil(t, (*Frame)(nil).Clone())
	assert.True(t, (*Frame)(nil).Empty())
}

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr error
		wantLen int
	}{
		{"table", TablePayload(&Frame{Columns: []string{"a"}, Rows: [][]string{{"1"}}}), nil, 1},
		{"empty table", TablePayload(NewFrame("a")), ErrEmptyPayload, 0},
		{"nil table", TablePayload(nil), ErrEmptyPayload, 0},
		{"text", TextPayload([]string{"x", "y"}), nil, 2},
		{"empty text", TextPayload(nil), ErrEmptyPayload, 0},
		{"unknown kind", Payload{Kind: "blob"}, ErrUnknownPayload, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.payload.Validate(), tt.wantErr)
			assert.Equal(t, tt.wantLen, tt.payload.Len())
		})
	}
}

func TestPayloadCloneIsDeep(t *testing.T) {
	p := TextPayload([]string{"a"})
	p.Source = "upload.txt"
	c := p.Clone()
	c.Text[0] = "b"
	assert.Equal(t, "a", p.Text[0])
	assert.Equal(t, "upload.txt", c.Source)
}

func TestTokenTableOrdering(t *testing.T) {
	tt := &TokenTable{Counts: map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, TotalTokens: 10}
	assert.Equal(t, []TokenCount{{"c", 5}, {"a", 2}, {"b", 2}, {"d", 1}}, tt.Ordered())
	assert.Equal(t, []TokenCount{{"c", 5}, {"a", 2}}, tt.Top(2))
	assert.Len(t, tt.Top(0), 4)
}

func TestClusterSizesAndSeries(t *testing.T) {
	s := &ClusterSummary{K: 3, Labels: []int{0, 2, 2, 0, 2, 7}}
	assert.Equal(t, []int{2, 0, 3}, s.ClusterSizes())

	points := []RegionPoint{{TimeIndex: 0}, {TimeIndex: 1}}
	for i := range points {
		points[i].SetValue(MetricOverallGross, float64(10*(i+1)))
	}
	assert.Equal(t, []float64{10, 20}, Series(points, MetricOverallGross))
	assert.Zero(t, points[0].Value(Metric("unknown")))
}

func TestNewCleanReport(t *testing.T) {
	r := NewCleanReport([]RowOutcome{
		{Row: 0, Kept: true},
		{Row: 1, Reason: "invalid_year"},
		{Row: 2, Reason: "invalid_year"},
		{Row: 3, Kept: true},
	})
	assert.Equal(t, 4, r.InputRows)
	assert.Equal(t, 2, r.KeptRows)
	assert.Equal(t, 2, r.DroppedRows)
	assert.Equal(t, map[string]int{"invalid_year": 2}, r.DropReasons)
}
