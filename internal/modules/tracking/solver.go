// Package tracking solves for the fully invested portfolio of K+1 assets
// whose factor exposures match a target sensitivity vector.
package tracking

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/riskdecomp/internal/domain"
)

// MaxCondition is the largest condition number of the tracking system that
// is still treated as having a unique solution
const MaxCondition = 1e12

// ErrNoUniqueSolution is returned when the candidates' exposures (plus the
// budget row) are linearly dependent.
var ErrNoUniqueSolution = fmt.Errorf("%w: tracking system has no unique solution", domain.ErrDegenerateInput)

// Candidate is an asset available to the tracking portfolio together with
// its factor sensitivities, one per factor in target order.
type Candidate struct {
	ID            string    `json:"id" yaml:"id" msgpack:"id"`
	Sensitivities []float64 `json:"sensitivities" yaml:"sensitivities" msgpack:"sensitivities"`
}

// Weight is one candidate's allocation
type Weight struct {
	ID     string  `json:"id" yaml:"id" msgpack:"id"`
	Weight float64 `json:"weight" yaml:"weight" msgpack:"weight"`
}

// Portfolio is the solved tracking portfolio. Weights follow candidate order.
type Portfolio struct {
	Target    []float64 `json:"target" yaml:"target" msgpack:"target"`
	Weights   []Weight  `json:"weights" yaml:"weights" msgpack:"weights"`
	Exposures []float64 `json:"exposures" yaml:"exposures" msgpack:"exposures"`
	Budget    float64   `json:"budget" yaml:"budget" msgpack:"budget"`
	Condition float64   `json:"condition" yaml:"condition" msgpack:"condition"`
}

// WeightOf returns the weight allocated to id
func (p *Portfolio) WeightOf(id string) (float64, bool) {
	for _, w := range p.Weights {
		if w.ID == id {
			return w.Weight, true
		}
	}
	return 0, false
}

// MaxExposureError is the largest absolute gap between achieved and target exposures
func (p *Portfolio) MaxExposureError() float64 {
	worst := 0.0
	for i, e := range p.Exposures {
		if d := math.Abs(e - p.Target[i]); d > worst {
			worst = d
		}
	}
	return worst
}

// Solve finds weights w over K+1 candidates such that
//
//	sum_c w_c * s_c[j] = target[j]   for every factor j
//	sum_c w_c          = 1
//
// Negative weights (short positions) are allowed.
func Solve(target []float64, assets []Candidate) (*Portfolio, error) {
	k := len(target)
	if k == 0 {
		return nil, fmt.Errorf("%w: empty target sensitivity vector", domain.ErrDegenerateInput)
	}
	if len(assets) != k+1 {
		return nil, fmt.Errorf("%w: %d factors need %d candidate assets, got %d",
			domain.ErrAlignmentMismatch, k, k+1, len(assets))
	}
	for j, v := range target {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: target sensitivity %d is not finite", domain.ErrDegenerateInput, j)
		}
	}

	n := k + 1
	a := mat.NewDense(n, n, nil)
	for c, asset := range assets {
		if len(asset.Sensitivities) != k {
			return nil, fmt.Errorf("%w: candidate %s has %d sensitivities, want %d",
				domain.ErrAlignmentMismatch, asset.ID, len(asset.Sensitivities), k)
		}
		for j, s := range asset.Sensitivities {
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return nil, fmt.Errorf("%w: candidate %s sensitivity %d is not finite", domain.ErrDegenerateInput, asset.ID, j)
			}
			a.Set(j, c, s)
		}
		a.Set(k, c, 1)
	}

	rhs := mat.NewVecDense(n, nil)
	for j, v := range target {
		rhs.SetVec(j, v)
	}
	rhs.SetVec(k, 1)

	var lu mat.LU
	lu.Factorize(a)
	cond := lu.Cond()
	if math.IsInf(cond, 0) || math.IsNaN(cond) || cond > MaxCondition {
		return nil, fmt.Errorf("%w (condition %.3g)", ErrNoUniqueSolution, cond)
	}

	var w mat.VecDense
	if err := lu.SolveVecTo(&w, false, rhs); err != nil {
		var c mat.Condition
		if errors.As(err, &c) {
			return nil, fmt.Errorf("%w (condition %.3g)", ErrNoUniqueSolution, float64(c))
		}
		return nil, fmt.Errorf("failed to solve tracking system: %w", err)
	}

	weights := make([]Weight, n)
	budget := 0.0
	for c, asset := range assets {
		weights[c] = Weight{ID: asset.ID, Weight: w.AtVec(c)}
		budget += w.AtVec(c)
	}

	exposures := make([]float64, k)
	for j := range exposures {
		for c, asset := range assets {
			exposures[j] += w.AtVec(c) * asset.Sensitivities[j]
		}
	}

	return &Portfolio{
		Target:    append([]float64(nil), target...),
		Weights:   weights,
		Exposures: exposures,
		Budget:    budget,
		Condition: cond,
	}, nil
}
