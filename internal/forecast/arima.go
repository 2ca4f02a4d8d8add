package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Forecast errors
var (
	ErrInsufficientData = errors.New("insufficient observations for model order")
	ErrFitFailure       = errors.New("model fit did not converge")
	ErrInvalidOrder     = errors.New("invalid model order")
	ErrInvalidHorizon   = errors.New("forecast horizon must be at least 1")
	ErrInvalidSeries    = errors.New("series contains non-finite values")
)

const (
	cssMaxIterations   = 5000
	cssAbsTol          = 1e-12
	cssRelTol          = 1e-10
	cssStallIterations = 100
)

// Order is the (p, d, q) order of an ARIMA model
type Order struct {
	P int `json:"p" yaml:"p"`
	D int `json:"d" yaml:"d"`
	Q int `json:"q" yaml:"q"`
}

// DefaultOrder is ARIMA(5,1,0)
var DefaultOrder = Order{P: 5, D: 1, Q: 0}

// Validate checks the order is usable
func (o Order) Validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 {
		return fmt.Errorf("%w: (%d,%d,%d)", ErrInvalidOrder, o.P, o.D, o.Q)
	}
	return nil
}

// MinObservations returns the shortest series the order can be fitted to
func (o Order) MinObservations() int {
	return o.P + o.D + 1
}

// Model is an ARIMA model fitted to a single series without a constant term
type Model struct {
	Order         Order
	AR            []float64
	MA            []float64
	Sigma2        float64
	LogLikelihood float64
	Iterations    int

	history   []float64
	diffed    []float64
	residuals []float64
}

// Fit differences the series d times and estimates the ARMA(p, q)
// coefficients by conditional maximum likelihood. A pure autoregression is
// solved exactly by least squares; moving-average terms are estimated by
// minimizing the conditional sum of squares.
func Fit(ctx context.Context, series []float64, order Order) (*Model, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if len(series) < order.MinObservations() {
		return nil, fmt.Errorf("%w: have %d, need %d for order (%d,%d,%d)",
			ErrInsufficientData, len(series), order.MinObservations(), order.P, order.D, order.Q)
	}
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: observation %d", ErrInvalidSeries, i)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &Model{
		Order:   order,
		history: append([]float64(nil), series...),
		diffed:  Difference(series, order.D),
	}

	var err error
	if order.Q == 0 {
		m.AR, err = fitAR(m.diffed, order.P)
		if err != nil {
			err = fmt.Errorf("%w: order (%d,%d,%d): %v", ErrFitFailure, order.P, order.D, order.Q, err)
		}
	} else {
		err = m.fitCSS(ctx)
	}
	if err != nil {
		return nil, err
	}

	m.residuals = residuals(m.diffed, m.AR, m.MA)
	m.Sigma2, m.LogLikelihood = gaussianLikelihood(m.residuals[order.P:])
	if !finite(m.AR...) || !finite(m.MA...) || !finite(m.Sigma2, m.LogLikelihood) {
		return nil, fmt.Errorf("%w: order (%d,%d,%d) produced non-finite estimates",
			ErrFitFailure, order.P, order.D, order.Q)
	}
	return m, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Observations returns the number of points the model was fitted on
func (m *Model) Observations() int {
	return len(m.history)
}

// Forecast extends the series h steps past the last observation
func (m *Model) Forecast(h int) ([]float64, error) {
	if h < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, h)
	}
	w := append([]float64(nil), m.diffed...)
	e := append([]float64(nil), m.residuals...)
	out := make([]float64, h)
	for step := 0; step < h; step++ {
		t := len(w)
		v := 0.0
		for i, phi := range m.AR {
			if t-1-i >= 0 {
				v += phi * w[t-1-i]
			}
		}
		for j, theta := range m.MA {
			if t-1-j >= 0 {
				v += theta * e[t-1-j]
			}
		}
		w = append(w, v)
		e = append(e, 0)
		out[step] = v
	}
	return Integrate(m.history, m.Order.D, out), nil
}

// fitAR solves the conditional least squares autoregression of order p
func fitAR(w []float64, p int) ([]float64, error) {
	if p == 0 {
		return nil, nil
	}
	var x [][]float64
	var y []float64
	for t := p; t < len(w); t++ {
		row := make([]float64, p)
		for i := 0; i < p; i++ {
			row[i] = w[t-1-i]
		}
		x = append(x, row)
		y = append(y, w[t])
	}
	if len(x) == 0 {
		return make([]float64, p), nil
	}
	return solveNormal(x, y)
}

func (m *Model) fitCSS(ctx context.Context) error {
	p, q := m.Order.P, m.Order.Q
	start := hannanRissanen(m.diffed, p, q)

	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			ss := 0.0
			for _, e := range residuals(m.diffed, params[:p], params[p:])[p:] {
				ss += e * e
			}
			if math.IsNaN(ss) || math.IsInf(ss, 0) {
				return math.Inf(1)
			}
			return ss
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations: cssMaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   cssAbsTol,
			Relative:   cssRelTol,
			Iterations: cssStallIterations,
		},
	}

	res, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if res != nil {
		m.Iterations = res.Stats.MajorIterations
	}
	if err != nil || res == nil || !converged(res.Status) || math.IsInf(res.F, 1) {
		return fmt.Errorf("%w: order (%d,%d,%d) after %d iterations",
			ErrFitFailure, p, m.Order.D, q, m.Iterations)
	}
	m.AR = append([]float64(nil), res.X[:p]...)
	m.MA = append([]float64(nil), res.X[p:]...)
	return nil
}

// converged reports whether the optimizer stopped at a minimum rather than
// at a limit or on failure
func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge,
		optimize.StepConvergence, optimize.FunctionThreshold:
		return true
	}
	return false
}

// hannanRissanen returns starting ARMA coefficients from a long
// autoregression's residuals. It falls back to zeros on short series.
func hannanRissanen(w []float64, p, q int) []float64 {
	start := make([]float64, p+q)
	long := p + q + 2
	if len(w)-long < p+q+1 || len(w)-long < long {
		return start
	}

	longAR, err := fitAR(w, long)
	if err != nil {
		return start
	}
	e := residuals(w, longAR, nil)

	var x [][]float64
	var y []float64
	for t := long + q; t < len(w); t++ {
		row := make([]float64, 0, p+q)
		for i := 0; i < p; i++ {
			row = append(row, w[t-1-i])
		}
		for j := 0; j < q; j++ {
			row = append(row, e[t-1-j])
		}
		x = append(x, row)
		y = append(y, w[t])
	}
	if len(x) <= p+q {
		return start
	}

	beta, err := solveNormal(x, y)
	if err != nil || !finite(beta...) {
		return start
	}
	for i, v := range beta {
		// keep the starting point inside the stationary/invertible region
		start[i] = math.Max(-0.95, math.Min(0.95, v))
	}
	return start
}

// residuals computes conditional one-step errors. The first p values
// and all pre-sample errors are zero.
func residuals(w, ar, ma []float64) []float64 {
	p := len(ar)
	e := make([]float64, len(w))
	for t := p; t < len(w); t++ {
		v := w[t]
		for i, phi := range ar {
			v -= phi * w[t-1-i]
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				v -= theta * e[t-1-j]
			}
		}
		e[t] = v
	}
	return e
}

// gaussianLikelihood returns the innovation variance and the concentrated
// Gaussian log-likelihood of the residuals.
func gaussianLikelihood(e []float64) (float64, float64) {
	if len(e) == 0 {
		return 0, 0
	}
	ss := 0.0
	for _, v := range e {
		ss += v * v
	}
	n := float64(len(e))
	sigma2 := ss / n
	floor := math.Max(sigma2, 1e-12)
	return sigma2, -n / 2 * (math.Log(2*math.Pi*floor) + 1)
}
