// Package attribution regresses active returns on factor returns and splits
// active variance into per-factor contributions (FMCAR).
package attribution

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskdecomp/internal/domain"
)

// MaxCondition is the largest design-matrix condition number accepted before
// the factors are treated as collinear
const MaxCondition = 1e12

// Regression is an OLS fit of active returns on K factors plus an intercept
type Regression struct {
	Intercept     float64   `json:"intercept" yaml:"intercept" msgpack:"intercept"`
	Sensitivities []float64 `json:"sensitivities" yaml:"sensitivities" msgpack:"sensitivities"`
	Residuals     []float64 `json:"-" yaml:"-" msgpack:"-"`
	RSquared      float64   `json:"r_squared" yaml:"r_squared" msgpack:"r_squared"`
	Observations  int       `json:"observations" yaml:"observations" msgpack:"observations"`
	Condition     float64   `json:"condition" yaml:"condition" msgpack:"condition"`
}

// checkAligned verifies every factor covers exactly the dates of active
func checkAligned(active domain.ReturnSeries, factors []domain.ReturnSeries) error {
	if len(factors) == 0 {
		return fmt.Errorf("%w: no factors", domain.ErrDegenerateInput)
	}
	for j, f := range factors {
		if err := active.AlignedWith(f); err != nil {
			return fmt.Errorf("factor %d: %w", j, err)
		}
	}
	return nil
}

// Regress fits active = a + sum_j b_j * factor_j + e by least squares.
// Series must be aligned; a rank-deficient design is rejected instead of
// returning an arbitrary solution.
func Regress(active domain.ReturnSeries, factors []domain.ReturnSeries) (*Regression, error) {
	if err := checkAligned(active, factors); err != nil {
		return nil, err
	}

	n, k := active.Len(), len(factors)
	if n <= k+1 {
		return nil, fmt.Errorf("%w: %d observations for %d factors plus intercept", domain.ErrDegenerateInput, n, k)
	}

	x := mat.NewDense(n, k+1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		for j, f := range factors {
			x.Set(i, j+1, f.Values[i])
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), active.Values...))

	var qr mat.QR
	qr.Factorize(x)
	cond := qr.Cond()
	if math.IsInf(cond, 0) || math.IsNaN(cond) || cond > MaxCondition {
		return nil, fmt.Errorf("%w: factor design matrix is rank deficient (condition %.3g)", domain.ErrDegenerateInput, cond)
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		var c mat.Condition
		if errors.As(err, &c) {
			return nil, fmt.Errorf("%w: %v", domain.ErrDegenerateInput, err)
		}
		return nil, fmt.Errorf("failed to solve regression: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	residuals := make([]float64, n)
	for i := range residuals {
		residuals[i] = active.Values[i] - fitted.AtVec(i)
	}

	sensitivities := make([]float64, k)
	for j := range sensitivities {
		sensitivities[j] = beta.AtVec(j + 1)
	}

	return &Regression{
		Intercept:     beta.AtVec(0),
		Sensitivities: sensitivities,
		Residuals:     residuals,
		RSquared:      rSquared(active.Values, residuals),
		Observations:  n,
		Condition:     cond,
	}, nil
}

func rSquared(y, residuals []float64) float64 {
	mean := stat.Mean(y, nil)
	var ssTot, ssRes float64
	for i := range y {
		ssTot += (y[i] - mean) * (y[i] - mean)
		ssRes += residuals[i] * residuals[i]
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
