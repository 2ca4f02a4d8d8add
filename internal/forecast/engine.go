package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"cinepulse/pkg/contracts/domain"
)

// DefaultHorizon is the number of periods forecast past the last observation
const DefaultHorizon = 10

// Params configures a region forecast
type Params struct {
	Order   Order `json:"order" yaml:"order"`
	Horizon int   `json:"horizon" yaml:"horizon"`
}

// DefaultParams returns ARIMA(5,1,0) with a 10-step horizon
func DefaultParams() Params {
	return Params{Order: DefaultOrder, Horizon: DefaultHorizon}
}

// Engine fits one model per box-office metric and forecasts each
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a forecast engine
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With(slog.String("component", "forecast"))}
}

// Forecast fits the three metric series concurrently. Any metric failing
// fails the whole forecast; nothing is retried with a different order.
func (e *Engine) Forecast(ctx context.Context, points []domain.RegionPoint, p Params) (*domain.ForecastSummary, error) {
	if err := p.Order.Validate(); err != nil {
		return nil, err
	}
	if p.Horizon < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, p.Horizon)
	}
	if len(points) < p.Order.MinObservations() {
		return nil, fmt.Errorf("%w: have %d periods, need %d",
			ErrInsufficientData, len(points), p.Order.MinObservations())
	}

	summary := &domain.ForecastSummary{
		Horizon:       p.Horizon,
		LastTimeIndex: points[len(points)-1].TimeIndex,
		Series:        make(map[domain.Metric][]float64, len(domain.Metrics)),
		Fits:          make(map[domain.Metric]domain.ModelFit, len(domain.Metrics)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, metric := range domain.Metrics {
		g.Go(func() error {
			model, err := Fit(gctx, domain.Series(points, metric), p.Order)
			if err != nil {
				return fmt.Errorf("%s: %w", metric, err)
			}
			values, err := model.Forecast(p.Horizon)
			if err != nil {
				return fmt.Errorf("%s: %w", metric, err)
			}

			mu.Lock()
			defer mu.Unlock()
			summary.Series[metric] = values
			summary.Fits[metric] = domain.ModelFit{
				P:             p.Order.P,
				D:             p.Order.D,
				Q:             p.Order.Q,
				AR:            model.AR,
				MA:            model.MA,
				Sigma2:        model.Sigma2,
				LogLikelihood: model.LogLikelihood,
				Observations:  model.Observations(),
				Iterations:    model.Iterations,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// caller cancellation wins over a fit that finished concurrently
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "forecast complete",
		slog.Int("periods", len(points)),
		slog.Int("horizon", p.Horizon),
		slog.Int("p", p.Order.P),
		slog.Int("d", p.Order.D),
		slog.Int("q", p.Order.Q))
	return summary, nil
}
