package forecast

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepulse/pkg/contracts/domain"
)

func TestDifferenceAndIntegrate(t *testing.T) {
	x := []float64{1, 4, 9, 16, 25}

	assert.Equal(t, []float64{3, 5, 7, 9}, Difference(x, 1))
	assert.Equal(t, []float64{2, 2, 2}, Difference(x, 2))
	assert.Equal(t, x, Difference(x, 0))
	assert.Nil(t, Difference([]float64{1}, 1))

	// second differences of squares stay 2, so the continuation is 36, 49
	assert.Equal(t, []float64{36, 49}, Integrate(x, 2, []float64{2, 2}))
	assert.Equal(t, []float64{26, 27}, Integrate(x, 1, []float64{1, 1}))
}

func TestSolveNormal(t *testing.T) {
	// y = 2a - b exactly
	x := [][]float64{{1, 0}, {0, 1}, {1, 1}, {2, 1}}
	y := []float64{2, -1, 1, 3}

	beta, err := solveNormal(x, y)
	require.NoError(t, err)
	require.Len(t, beta, 2)
	assert.InDelta(t, 2.0, beta[0], 1e-6)
	assert.InDelta(t, -1.0, beta[1], 1e-6)

	beta, err = solveNormal(nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, beta)

	_, err = solveNormal([][]float64{{math.Inf(1)}, {1}}, []float64{1, 1})
	assert.Error(t, err)
}

// overflowing returns a finite series whose squared differences overflow
func overflowing(n int, scale float64, pattern ...float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = scale * pattern[i%len(pattern)]
	}
	return out
}

func TestFitAROnePointRecursion(t *testing.T) {
	// w_t = 0.5 w_{t-1} exactly
	series := []float64{64, 32, 16, 8, 4, 2, 1, 0.5}

	m, err := Fit(context.Background(), series, Order{P: 1})
	require.NoError(t, err)
	require.Len(t, m.AR, 1)
	assert.InDelta(t, 0.5, m.AR[0], 1e-6)

	fc, err := m.Forecast(3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.125, 0.0625}, fc, 1e-6)
}

func TestFitLinearTrendWithDifferencing(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = float64(10 + 3*i)
	}

	m, err := Fit(context.Background(), series, DefaultOrder)
	require.NoError(t, err)

	fc, err := m.Forecast(DefaultHorizon)
	require.NoError(t, err)
	require.Len(t, fc, DefaultHorizon)
	for h, v := range fc {
		assert.InDelta(t, float64(10+3*(20+h)), v, 1e-3, "step %d", h+1)
	}
	assert.Equal(t, 20, m.Observations())
}

func TestFitMovingAverage(t *testing.T) {
	// deterministic MA(1)-like series around zero
	noise := []float64{0.3, -1.2, 0.8, 0.1, -0.5, 1.4, -0.9, 0.2, 0.6, -1.1,
		0.4, -0.3, 1.0, -0.7, 0.5, -0.2, 0.9, -1.3, 0.7, 0.0,
		-0.4, 1.1, -0.8, 0.3, -0.6, 1.2, -1.0, 0.1, 0.8, -0.5}
	series := make([]float64, len(noise))
	for i := range noise {
		series[i] = noise[i]
		if i > 0 {
			series[i] += 0.4 * noise[i-1]
		}
	}

	m, err := Fit(context.Background(), series, Order{P: 0, D: 0, Q: 1})
	require.NoError(t, err)
	require.Len(t, m.MA, 1)
	assert.Greater(t, m.Iterations, 0)
	assert.False(t, math.IsNaN(m.MA[0]))
	assert.Less(t, math.Abs(m.MA[0]), 1.0)

	fc, err := m.Forecast(DefaultHorizon)
	require.NoError(t, err)
	assert.Len(t, fc, DefaultHorizon)
	// an MA(1) forecast is flat at zero after the first step
	assert.InDelta(t, 0, fc[1], 1e-12)
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name    string
		series  []float64
		order   Order
		wantErr error
	}{
		{"too short for default order", []float64{1, 2, 3, 4, 5, 6}, DefaultOrder, ErrInsufficientData},
		{"negative order", []float64{1, 2, 3}, Order{P: -1}, ErrInvalidOrder},
		{"non finite value", []float64{1, math.NaN(), 3}, Order{P: 1}, ErrInvalidSeries},
		{"least squares overflows", overflowing(30, 1e160, 1, 2, 3), DefaultOrder, ErrFitFailure},
		{"moving average never converges", overflowing(30, 1e200, 1, -1), Order{P: 1, D: 1, Q: 1}, ErrFitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Fit(context.Background(), tt.series, tt.order)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, m)
		})
	}

	m, err := Fit(context.Background(), []float64{1, 2, 3, 4, 5, 6, 7}, DefaultOrder)
	require.NoError(t, err, "p+d+1 observations is enough")
	_, err = m.Forecast(0)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}

func regionPoints(n int) []domain.RegionPoint {
	points := make([]domain.RegionPoint, n)
	for i := range points {
		points[i] = domain.RegionPoint{
			TimeIndex:    i + 1,
			Top10Gross:   1000 + 50*float64(i) + float64(i%3)*7,
			OverallGross: 5000 + 120*float64(i) - float64(i%4)*11,
			ReleaseCount: 20 + float64(i%5),
		}
	}
	return points
}

func TestEngineForecastsEveryMetric(t *testing.T) {
	engine := NewEngine(nil)

	summary, err := engine.Forecast(context.Background(), regionPoints(24), DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, DefaultHorizon, summary.Horizon)
	assert.Equal(t, 24, summary.LastTimeIndex)
	for _, metric := range domain.Metrics {
		require.Contains(t, summary.Series, metric)
		assert.Len(t, summary.Series[metric], DefaultHorizon)
		fit := summary.Fits[metric]
		assert.Equal(t, 5, fit.P)
		assert.Equal(t, 1, fit.D)
		assert.Len(t, fit.AR, 5)
		assert.Equal(t, 24, fit.Observations)
	}
}

func TestEngineIsDeterministic(t *testing.T) {
	engine := NewEngine(nil)
	points := regionPoints(18)

	a, err := engine.Forecast(context.Background(), points, DefaultParams())
	require.NoError(t, err)
	b, err := engine.Forecast(context.Background(), points, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, a.Series, b.Series)
}

func TestEngineErrors(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.Forecast(context.Background(), regionPoints(6), DefaultParams())
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = engine.Forecast(context.Background(), regionPoints(20), Params{Order: DefaultOrder})
	assert.ErrorIs(t, err, ErrInvalidHorizon)

	points := regionPoints(30)
	for i, v := range overflowing(30, 1e160, 1, 2, 3) {
		points[i].OverallGross = v
	}
	_, err = engine.Forecast(context.Background(), points, DefaultParams())
	assert.ErrorIs(t, err, ErrFitFailure)
	assert.ErrorContains(t, err, string(domain.MetricOverallGross))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Forecast(ctx, regionPoints(20), DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}
