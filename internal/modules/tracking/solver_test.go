package tracking

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskdecomp/internal/domain"
)

func TestSolve_ThreeAssetsTwoFactors(t *testing.T) {
	assets := []Candidate{
		{ID: "X", Sensitivities: []float64{0.7, 1.1}},
		{ID: "Y", Sensitivities: []float64{0.1, 0.5}},
		{ID: "Z", Sensitivities: []float64{1.5, 1.3}},
	}

	p, err := Solve([]float64{1, 1.1}, assets)
	require.NoError(t, err)
	require.Len(t, p.Weights, 3)

	assert.Equal(t, "X", p.Weights[0].ID)
	assert.InDelta(t, 1.0/3.0, p.Weights[0].Weight, 1e-9)
	assert.InDelta(t, 1.0/6.0, p.Weights[1].Weight, 1e-9)
	assert.InDelta(t, 1.0/2.0, p.Weights[2].Weight, 1e-9)

	assert.InDelta(t, 1.0, p.Budget, 1e-12)
	assert.InDelta(t, 1.0, p.Exposures[0], 1e-12)
	assert.InDelta(t, 1.1, p.Exposures[1], 1e-12)
	assert.Less(t, p.MaxExposureError(), 1e-12)
	assert.Less(t, p.Condition, MaxCondition)

	w, ok := p.WeightOf("Z")
	assert.True(t, ok)
	assert.InDelta(t, 0.5, w, 1e-9)
	_, ok = p.WeightOf("missing")
	assert.False(t, ok)
}

func TestSolve_SingleFactor(t *testing.T) {
	p, err := Solve([]float64{1}, []Candidate{
		{ID: "LOW", Sensitivities: []float64{0.5}},
		{ID: "HIGH", Sensitivities: []float64{1.5}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Weights[0].Weight, 1e-12)
	assert.InDelta(t, 0.5, p.Weights[1].Weight, 1e-12)
}

func TestSolve_ShortPositionsAllowed(t *testing.T) {
	p, err := Solve([]float64{2}, []Candidate{
		{ID: "A", Sensitivities: []float64{0.5}},
		{ID: "B", Sensitivities: []float64{1.5}},
	})
	require.NoError(t, err)
	assert.InDelta(t, -0.5, p.Weights[0].Weight, 1e-12)
	assert.InDelta(t, 1.5, p.Weights[1].Weight, 1e-12)
	assert.InDelta(t, 1.0, p.Budget, 1e-12)
}

func TestSolve_Singular(t *testing.T) {
	testCases := []struct {
		name   string
		assets []Candidate
	}{
		{
			name: "collinear exposures",
			assets: []Candidate{
				{ID: "A", Sensitivities: []float64{1, 2}},
				{ID: "B", Sensitivities: []float64{2, 4}},
				{ID: "C", Sensitivities: []float64{3, 6}},
			},
		},
		{
			name: "duplicate candidate",
			assets: []Candidate{
				{ID: "A", Sensitivities: []float64{0.7, 1.1}},
				{ID: "B", Sensitivities: []float64{0.7, 1.1}},
				{ID: "C", Sensitivities: []float64{1.5, 1.3}},
			},
		},
		{
			name: "nearly collinear",
			assets: []Candidate{
				{ID: "A", Sensitivities: []float64{1, 2}},
				{ID: "B", Sensitivities: []float64{2, 4}},
				{ID: "C", Sensitivities: []float64{3, 6 + 1e-13}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Solve([]float64{1, 1.1}, tc.assets)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoUniqueSolution))
			assert.True(t, errors.Is(err, domain.ErrDegenerateInput))
		})
	}
}

func TestSolve_Shapes(t *testing.T) {
	good := []Candidate{
		{ID: "X", Sensitivities: []float64{0.7, 1.1}},
		{ID: "Y", Sensitivities: []float64{0.1, 0.5}},
		{ID: "Z", Sensitivities: []float64{1.5, 1.3}},
	}

	_, err := Solve([]float64{1, 1.1}, good[:2])
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))

	short := append([]Candidate(nil), good...)
	short[1] = Candidate{ID: "Y", Sensitivities: []float64{0.1}}
	_, err = Solve([]float64{1, 1.1}, short)
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))
	assert.Contains(t, err.Error(), "candidate Y")

	_, err = Solve(nil, nil)
	assert.True(t, errors.Is(err, domain.ErrDegenerateInput))

	_, err = Solve([]float64{math.NaN(), 1}, good)
	assert.True(t, errors.Is(err, domain.ErrDegenerateInput))

	bad := append([]Candidate(nil), good...)
	bad[2] = Candidate{ID: "Z", Sensitivities: []float64{math.Inf(1), 1.3}}
	_, err = Solve([]float64{1, 1.1}, bad)
	assert.True(t, errors.Is(err, domain.ErrDegenerateInput))
}

func TestSolve_DoesNotAliasInputs(t *testing.T) {
	target := []float64{1, 1.1}
	p, err := Solve(target, []Candidate{
		{ID: "X", Sensitivities: []float64{0.7, 1.1}},
		{ID: "Y", Sensitivities: []float64{0.1, 0.5}},
		{ID: "Z", Sensitivities: []float64{1.5, 1.3}},
	})
	require.NoError(t, err)
	target[0] = 99
	assert.Equal(t, 1.0, p.Target[0])
}
