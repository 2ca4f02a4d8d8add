package forecast

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// errSingular reports a normal-equation system that could not be factorized
var errSingular = errors.New("normal equations are not positive definite")

// solveNormal solves (XᵀX + λI)β = Xᵀy for the rows of x by Cholesky
// factorization. The small ridge keeps the system positive definite when
// lag columns are collinear.
func solveNormal(x [][]float64, y []float64) ([]float64, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, nil
	}
	rows, n := len(x), len(x[0])

	X := mat.NewDense(rows, n, nil)
	for r, row := range x {
		X.SetRow(r, row)
	}
	Y := mat.NewVecDense(rows, append([]float64(nil), y...))

	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())
	ridge := 1e-8 * (1 + mat.Trace(&xtx)/float64(n))
	for i := 0; i < n; i++ {
		xtx.SetSym(i, i, xtx.At(i, i)+ridge)
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), Y)

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, errSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		// an ill-conditioned system still yields the least squares solution
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solve normal equations: %w", err)
		}
	}
	return mat.Col(nil, 0, &beta), nil
}
