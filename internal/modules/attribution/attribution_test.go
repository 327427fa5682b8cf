package attribution

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskdecomp/internal/domain"
)

func dates(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func randomSeries(rng *rand.Rand, ds []time.Time, scale float64) domain.ReturnSeries {
	v := make([]float64, len(ds))
	for i := range v {
		v[i] = scale * rng.NormFloat64()
	}
	return domain.ReturnSeries{Dates: ds, Values: v}
}

func combine(ds []time.Time, alpha float64, betas []float64, factors []domain.ReturnSeries, noise domain.ReturnSeries) domain.ReturnSeries {
	v := make([]float64, len(ds))
	for i := range v {
		v[i] = alpha
		for j, f := range factors {
			v[i] += betas[j] * f.Values[i]
		}
		if noise.Len() > 0 {
			v[i] += noise.Values[i]
		}
	}
	return domain.ReturnSeries{Dates: ds, Values: v}
}

func TestRegress_RecoversExactCoefficients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ds := dates(60)
	f1 := randomSeries(rng, ds, 0.01)
	f2 := randomSeries(rng, ds, 0.02)
	active := combine(ds, 0.001, []float64{0.5, -0.3}, []domain.ReturnSeries{f1, f2}, domain.ReturnSeries{})

	reg, err := Regress(active, []domain.ReturnSeries{f1, f2})
	require.NoError(t, err)

	assert.InDelta(t, 0.001, reg.Intercept, 1e-10)
	require.Len(t, reg.Sensitivities, 2)
	assert.InDelta(t, 0.5, reg.Sensitivities[0], 1e-9)
	assert.InDelta(t, -0.3, reg.Sensitivities[1], 1e-9)
	assert.InDelta(t, 1.0, reg.RSquared, 1e-9)
	assert.Equal(t, 60, reg.Observations)
	assert.Less(t, reg.Condition, MaxCondition)
}

func TestFMCAR_SingleFactorEqualsBetaSquaredVarianceRatio(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ds := dates(250)
	f := randomSeries(rng, ds, 0.01)
	noise := randomSeries(rng, ds, 0.005)
	active := combine(ds, 0, []float64{0.8}, []domain.ReturnSeries{f}, noise)

	reg, attr, err := Analyze(active, []domain.ReturnSeries{f})
	require.NoError(t, err)

	b := reg.Sensitivities[0]
	expected := b * b * stat.Variance(f.Values, nil) / stat.Variance(active.Values, nil)
	require.Len(t, attr.FMCAR, 1)
	assert.InDelta(t, expected, attr.FMCAR[0], 1e-12)
	assert.InDelta(t, stat.Variance(f.Values, nil), attr.Covariance[0][0], 1e-15)
}

func TestFMCAR_SharesSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ds := dates(200)
	f1 := randomSeries(rng, ds, 0.01)
	f2 := randomSeries(rng, ds, 0.008)
	f3 := randomSeries(rng, ds, 0.015)
	noise := randomSeries(rng, ds, 0.004)
	factors := []domain.ReturnSeries{f1, f2, f3}
	active := combine(ds, 0.0002, []float64{0.4, -0.7, 0.2}, factors, noise)

	_, attr, err := Analyze(active, factors)
	require.NoError(t, err)

	sum := 0.0
	for _, v := range attr.FMCAR {
		sum += v
	}
	assert.InDelta(t, attr.FactorShare, sum, 1e-12)
	assert.InDelta(t, 1.0, attr.FactorShare+attr.Idiosyncratic, 1e-9)
	assert.Greater(t, attr.Idiosyncratic, 0.0)
	assert.Less(t, attr.Idiosyncratic, 1.0)

	// covariance matrix is symmetric
	for i := range attr.Covariance {
		for j := range attr.Covariance {
			assert.InDelta(t, attr.Covariance[i][j], attr.Covariance[j][i], 1e-18)
		}
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	ds := dates(100)
	f1 := randomSeries(rng, ds, 0.01)
	f2 := randomSeries(rng, ds, 0.01)
	noise := randomSeries(rng, ds, 0.003)
	factors := []domain.ReturnSeries{f1, f2}
	active := combine(ds, 0, []float64{1.1, 0.2}, factors, noise)

	reg1, attr1, err := Analyze(active, factors)
	require.NoError(t, err)
	reg2, attr2, err := Analyze(active, factors)
	require.NoError(t, err)

	assert.Equal(t, reg1.Sensitivities, reg2.Sensitivities)
	assert.Equal(t, attr1.FMCAR, attr2.FMCAR)
}

func TestFMCAR_ZeroActiveVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ds := dates(30)
	f := randomSeries(rng, ds, 0.01)
	flat := domain.ReturnSeries{Dates: ds, Values: make([]float64, len(ds))}

	_, _, err := Analyze(flat, []domain.ReturnSeries{f})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDegenerateInput))
	assert.Contains(t, err.Error(), "FMCAR undefined")
}

func TestRegress_AlignmentMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	active := randomSeries(rng, dates(30), 0.01)
	short := randomSeries(rng, dates(29), 0.01)

	_, err := Regress(active, []domain.ReturnSeries{short})
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))

	shifted := randomSeries(rng, dates(31)[1:], 0.01)
	_, err = Regress(active, []domain.ReturnSeries{shifted})
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))

	_, err = FMCAR(&Regression{Sensitivities: []float64{1}}, active, []domain.ReturnSeries{short})
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))
}

func TestRegress_CollinearFactors(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ds := dates(50)
	f1 := randomSeries(rng, ds, 0.01)
	f2 := domain.ReturnSeries{Dates: ds, Values: make([]float64, len(ds))}
	for i, v := range f1.Values {
		f2.Values[i] = 2 * v
	}
	active := randomSeries(rng, ds, 0.01)

	_, err := Regress(active, []domain.ReturnSeries{f1, f2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDegenerateInput))
}

func TestRegress_TooFewObservations(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	ds := dates(3)
	factors := []domain.ReturnSeries{randomSeries(rng, ds, 0.01), randomSeries(rng, ds, 0.01)}

	_, err := Regress(randomSeries(rng, ds, 0.01), factors)
	assert.True(t, errors.Is(err, domain.ErrDegenerateInput))

	_, err = Regress(randomSeries(rng, ds, 0.01), nil)
	assert.True(t, errors.Is(err, domain.ErrDegenerateInput))
}

func TestFMCAR_MismatchedRegression(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	ds := dates(20)
	active := randomSeries(rng, ds, 0.01)
	f := randomSeries(rng, ds, 0.01)

	_, err := FMCAR(&Regression{Sensitivities: []float64{1, 2}}, active, []domain.ReturnSeries{f})
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))

	_, err = FMCAR(nil, active, []domain.ReturnSeries{f})
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))

	// residuals are needed for the idiosyncratic share
	_, err = FMCAR(&Regression{Sensitivities: []float64{1}}, active, []domain.ReturnSeries{f})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))
	assert.Contains(t, err.Error(), "0 residuals for 20 observations")

	reg, err := Regress(active, []domain.ReturnSeries{f})
	require.NoError(t, err)
	reg.Residuals = reg.Residuals[1:]
	_, err = FMCAR(reg, active, []domain.ReturnSeries{f})
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))
}
