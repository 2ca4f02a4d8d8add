package clustering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"cinepulse/pkg/contracts/domain"
)

// Default clustering parameters
const (
	DefaultK             = 4
	DefaultSeed          = 42
	DefaultRestarts      = 10
	DefaultMaxIterations = 300
)

// Clustering errors
var (
	ErrNoData          = errors.New("no rows to cluster")
	ErrInvalidK        = errors.New("cluster count must be at least 1")
	ErrTooManyClusters = errors.New("cluster count exceeds distinct rows")
)

// Params configures a clustering run
type Params struct {
	K             int   `json:"k" yaml:"k"`
	Seed          int64 `json:"seed" yaml:"seed"`
	Restarts      int   `json:"restarts" yaml:"restarts"`
	MaxIterations int   `json:"max_iterations" yaml:"max_iterations"`
}

// DefaultParams returns the default clustering parameters
func DefaultParams() Params {
	return Params{
		K:             DefaultK,
		Seed:          DefaultSeed,
		Restarts:      DefaultRestarts,
		MaxIterations: DefaultMaxIterations,
	}
}

func (p Params) withDefaults() Params {
	if p.Restarts <= 0 {
		p.Restarts = DefaultRestarts
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	return p
}

// Engine partitions cleaned catalog rows into k clusters
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a clustering engine
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With(slog.String("component", "clustering"))}
}

// Cluster standardizes the catalog features and runs seeded k-means.
// Identical rows and params always produce identical labels and centroids.
func (e *Engine) Cluster(ctx context.Context, rows []domain.CatalogRow, p Params) (*domain.ClusterSummary, error) {
	p = p.withDefaults()
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	if p.K < 1 {
		return nil, fmt.Errorf("%w: k=%d", ErrInvalidK, p.K)
	}

	raw := CatalogFeatures(rows)
	if distinct := countDistinct(raw); p.K > distinct {
		return nil, fmt.Errorf("%w: k=%d, distinct rows=%d", ErrTooManyClusters, p.K, distinct)
	}

	scaler, err := FitScaler(raw)
	if err != nil {
		return nil, err
	}
	points := scaler.Transform(raw)

	rng := rand.New(rand.NewSource(p.Seed))
	var best *model
	for run := 0; run < p.Restarts; run++ {
		m, err := lloyd(ctx, points, p.K, rng, p.MaxIterations)
		if err != nil {
			return nil, err
		}
		if best == nil || m.inertia < best.inertia {
			best = m
		}
	}

	e.logger.DebugContext(ctx, "clustering complete",
		slog.Int("rows", len(rows)),
		slog.Int("k", p.K),
		slog.Float64("inertia", best.inertia),
		slog.Int("iterations", best.iterations))

	summary := &domain.ClusterSummary{
		K:            p.K,
		Seed:         p.Seed,
		FeatureNames: append([]string(nil), FeatureNames...),
		Labels:       best.labels,
		Centroids:    best.centers,
		Mean:         scaler.Mean,
		Scale:        scaler.Scale,
		Inertia:      best.inertia,
		Iterations:   best.iterations,
		Rows:         make([]domain.ClusteredRow, len(rows)),
	}
	for i, r := range rows {
		summary.Rows[i] = domain.ClusteredRow{CatalogRow: r, Cluster: best.labels[i]}
	}
	return summary, nil
}

type model struct {
	centers    [][]float64
	labels     []int
	inertia    float64
	iterations int
}

// lloyd runs one k-means++ seeded Lloyd iteration sequence until the
// assignment stops changing or maxIter is reached.
func lloyd(ctx context.Context, points [][]float64, k int, rng *rand.Rand, maxIter int) (*model, error) {
	centers := seedPlusPlus(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	iter := 0
	for iter < maxIter {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iter++
		if changed := assign(points, centers, labels); !changed {
			break
		}
		centers = recompute(points, labels, centers)
	}

	// Final labels are the nearest final centroid
	assign(points, centers, labels)
	return &model{
		centers:    centers,
		labels:     labels,
		inertia:    inertia(points, centers, labels),
		iterations: iter,
	}, nil
}

// seedPlusPlus picks k initial centers with D^2 weighting
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.Intn(len(points))]))

	dist := make([]float64, len(points))
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}

	for len(centers) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}
		next := 0
		if total > 0 {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				if d == 0 {
					continue
				}
				acc += d
				next = i
				if acc >= target {
					break
				}
			}
		}
		c := clone(points[next])
		centers = append(centers, c)
		for i, p := range points {
			if d := sqDist(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// assign sets each label to its nearest center; ties go to the lowest index
func assign(points, centers [][]float64, labels []int) bool {
	changed := false
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(p, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

// recompute moves centers to their members' mean. An empty cluster takes
// over the point farthest from its own center.
func recompute(points [][]float64, labels []int, prev [][]float64) [][]float64 {
	k, dim := len(prev), len(prev[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		floats.Add(sums[c], p)
	}

	centers := make([][]float64, k)
	for c := range centers {
		if counts[c] == 0 {
			continue
		}
		centers[c] = floats.ScaleTo(make([]float64, dim), 1/float64(counts[c]), sums[c])
	}

	for c := range centers {
		if centers[c] != nil {
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			owner := labels[i]
			if counts[owner] <= 1 || centers[owner] == nil {
				continue
			}
			if d := sqDist(p, centers[owner]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			centers[c] = clone(prev[c])
			continue
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c] = 1
		centers[c] = clone(points[far])
	}
	return centers
}

func inertia(points, centers [][]float64, labels []int) float64 {
	total := 0.0
	for i, p := range points {
		total += sqDist(p, centers[labels[i]])
	}
	return total
}

func countDistinct(x [][]float64) int {
	seen := make(map[[3]float64]struct{}, len(x))
	for _, row := range x {
		var key [3]float64
		copy(key[:], row)
		seen[key] = struct{}{}
	}
	return len(seen)
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
