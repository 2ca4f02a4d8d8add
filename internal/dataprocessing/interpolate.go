package dataprocessing

import "math"

// LinearInterpolator fills missing values (NaN) in an evenly indexed series
type LinearInterpolator struct{}

// NewLinearInterpolator creates a new interpolator
func NewLinearInterpolator() *LinearInterpolator {
	return &LinearInterpolator{}
}

// FillStatistics reports what an interpolation pass did
type FillStatistics struct {
	TotalValues  int
	Observed     int
	Interpolated int
	EdgeFilled   int
}

// Filled returns the number of values that were missing and got a value
func (s FillStatistics) Filled() int {
	return s.Interpolated + s.EdgeFilled
}

// Fill returns a copy of values with interior gaps linearly interpolated
// between their nearest observed neighbours and leading or trailing gaps set
// to the nearest observed value. A series with nothing observed is returned
// unchanged.
func (l *LinearInterpolator) Fill(values []float64) ([]float64, FillStatistics) {
	out := append([]float64(nil), values...)
	stats := FillStatistics{TotalValues: len(values)}

	prev := -1
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		stats.Observed++
		if prev >= 0 && i-prev > 1 {
			step := (v - out[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out[j] = out[prev] + step*float64(j-prev)
				stats.Interpolated++
			}
		}
		if prev < 0 {
			for j := 0; j < i; j++ {
				out[j] = v
				stats.EdgeFilled++
			}
		}
		prev = i
	}
	if prev >= 0 {
		for j := prev + 1; j < len(out); j++ {
			out[j] = out[prev]
			stats.EdgeFilled++
		}
	}
	return out, stats
}
