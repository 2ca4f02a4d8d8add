package clustering

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"cinepulse/pkg/contracts/domain"
)

// FeatureNames names the columns produced by CatalogFeatures
var FeatureNames = []string{"rating", "log1p_rating_count", "year"}

// CatalogFeatures builds the (rating, log(1+rating_count), year) vector per row
func CatalogFeatures(rows []domain.CatalogRow) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = []float64{r.Rating, math.Log1p(float64(r.RatingCount)), float64(r.Year)}
	}
	return out
}

// StandardScaler standardizes features to zero mean and unit variance using
// the population statistics of the set it was fitted on.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler computes per-feature mean and population standard deviation.
// Features with zero variance get a scale of 1 so they map to 0.
func FitScaler(x [][]float64) (*StandardScaler, error) {
	if len(x) == 0 {
		return nil, ErrNoData
	}
	dim := len(x[0])
	s := &StandardScaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}

	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), dim)
		}
	}

	col := make([]float64, len(x))
	for j := 0; j < dim; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s, nil
}

// Transform returns standardized copies of the rows
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		z := make([]float64, len(row))
		for j, v := range row {
			z[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = z
	}
	return out
}

// Inverse maps a standardized vector back to raw feature units
func (s *StandardScaler) Inverse(z []float64) []float64 {
	out := make([]float64, len(z))
	for j, v := range z {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out
}
