package attribution

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskdecomp/internal/domain"
)

// MinActiveVariance is the smallest active-return variance FMCAR will divide by
const MinActiveVariance = 1e-16

// Attribution splits active variance into factor contributions.
// FMCAR[j] = b_j * sum_i b_i * Cov(F_j, F_i) / Var(active). Covariances and
// variances all use the n-1 sample estimator, so for an OLS fit with
// intercept FactorShare + Idiosyncratic equals 1 up to rounding.
type Attribution struct {
	Sensitivities  []float64   `json:"sensitivities" yaml:"sensitivities" msgpack:"sensitivities"`
	Covariance     [][]float64 `json:"covariance" yaml:"covariance" msgpack:"covariance"`
	ActiveVariance float64     `json:"active_variance" yaml:"active_variance" msgpack:"active_variance"`
	FMCAR          []float64   `json:"fmcar" yaml:"fmcar" msgpack:"fmcar"`
	FactorShare    float64     `json:"factor_share" yaml:"factor_share" msgpack:"factor_share"`
	Idiosyncratic  float64     `json:"idiosyncratic" yaml:"idiosyncratic" msgpack:"idiosyncratic"`
}

// FMCAR computes each factor's marginal contribution to active risk squared
// from a regression over the same active and factor series.
func FMCAR(reg *Regression, active domain.ReturnSeries, factors []domain.ReturnSeries) (*Attribution, error) {
	if err := checkAligned(active, factors); err != nil {
		return nil, err
	}
	k := len(factors)
	if reg == nil || len(reg.Sensitivities) != k {
		return nil, fmt.Errorf("%w: regression does not match %d factors", domain.ErrAlignmentMismatch, k)
	}
	n := active.Len()
	if len(reg.Residuals) != n {
		return nil, fmt.Errorf("%w: regression has %d residuals for %d observations", domain.ErrAlignmentMismatch, len(reg.Residuals), n)
	}

	varActive := stat.Variance(active.Values, nil)
	if !(varActive > MinActiveVariance) {
		return nil, fmt.Errorf("%w: active return variance %.3g is zero, FMCAR undefined", domain.ErrDegenerateInput, varActive)
	}

	data := mat.NewDense(n, k, nil)
	for j, f := range factors {
		data.SetCol(j, f.Values)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	b := mat.NewVecDense(k, append([]float64(nil), reg.Sensitivities...))
	var covB mat.VecDense
	covB.MulVec(&cov, b)

	contributions := make([]float64, k)
	total := 0.0
	for j := 0; j < k; j++ {
		contributions[j] = b.AtVec(j) * covB.AtVec(j) / varActive
		total += contributions[j]
	}

	covRows := make([][]float64, k)
	for i := 0; i < k; i++ {
		covRows[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			covRows[i][j] = cov.At(i, j)
		}
	}


	return &Attribution{
		Sensitivities:  append([]float64(nil), reg.Sensitivities...),
		Covariance:     covRows,
		ActiveVariance: varActive,
		FMCAR:          contributions,
		FactorShare:    total,
		Idiosyncratic:  stat.Variance(reg.Residuals, nil) / varActive,
	}, nil
}

// Analyze runs the regression and FMCAR in order
func Analyze(active domain.ReturnSeries, factors []domain.ReturnSeries) (*Regression, *Attribution, error) {
	reg, err := Regress(active, factors)
	if err != nil {
		return nil, nil, err
	}
	attr, err := FMCAR(reg, active, factors)
	if err != nil {
		return nil, nil, err
	}
	return reg, attr, nil
}
