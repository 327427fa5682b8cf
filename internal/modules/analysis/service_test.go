package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/riskdecomp/internal/domain"
	"github.com/aristath/riskdecomp/internal/modules/factors"
	"github.com/aristath/riskdecomp/internal/modules/marketdata"
	"github.com/aristath/riskdecomp/internal/modules/tracking"
	testhelpers "github.com/aristath/riskdecomp/internal/testing"
)

func newFixtureService(t *testing.T) (*Service, *marketdata.Memory, *testhelpers.MarketFixture) {
	t.Helper()
	fx := testhelpers.NewMarketFixture(testhelpers.DefaultMarketConfig())
	mem := marketdata.NewMemory()
	fx.LoadInto(mem)
	return NewService(mem, factors.DefaultBucketPercent, zerolog.Nop()), mem, fx
}

func fixtureRequest(fx *testhelpers.MarketFixture) Request {
	return Request{
		AsOf:        fx.AsOf,
		Start:       fx.Start,
		End:         fx.End,
		AssetID:     testhelpers.TargetID,
		BenchmarkID: testhelpers.BenchmarkID,
	}
}

func TestService_Run(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	report, err := svc.Run(context.Background(), fixtureRequest(fx))
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, len(fx.Dates)-1, report.Observations)
	assert.Equal(t, fx.Dates[0], report.WindowStart)
	assert.Equal(t, fx.Dates[len(fx.Dates)-1], report.WindowEnd)
	assert.Equal(t, 100, report.Universe)
	assert.Empty(t, report.Excluded)
	assert.Nil(t, report.Tracking)

	// defaults applied
	require.Len(t, report.Request.Factors, 2)
	assert.Equal(t, "size", report.Request.Factors[0].Name)

	require.Len(t, report.Factors, 2)
	assert.Len(t, report.Factors[0].Top, 30)
	// A000 has a zero book-to-price yield and cannot be ranked on value
	assert.Len(t, report.Factors[1].Top, 29)
	require.Len(t, report.Factors[1].Excluded, 1)
	assert.Equal(t, "A000", report.Factors[1].Excluded[0].AssetID)
	assert.Greater(t, report.Factors[0].Volatility, 0.0)

	// ACME loads positively on size and negatively on value
	sens := report.Regression.Sensitivities
	require.Len(t, sens, 2)
	assert.InDelta(t, 0.57, sens[0], 0.2)
	assert.InDelta(t, -0.36, sens[1], 0.2)
	assert.Greater(t, report.Regression.RSquared, 0.6)

	attr := report.Attribution
	assert.InDelta(t, 1.0, attr.FactorShare+attr.Idiosyncratic, 1e-9)
	require.Len(t, report.Contributions, 2)
	assert.Equal(t, "value", report.Contributions[1].Factor)
	assert.Equal(t, attr.FMCAR[1], report.Contributions[1].FMCAR)
	assert.Equal(t, sens[0], report.Contributions[0].Sensitivity)
}

func TestService_Run_Stateless(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	first, err := svc.Run(context.Background(), fixtureRequest(fx))
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), fixtureRequest(fx))
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Regression.Sensitivities, second.Regression.Sensitivities)
	assert.Equal(t, first.Attribution.FMCAR, second.Attribution.FMCAR)
}

func TestService_Run_TrackingFromPrices(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	req := fixtureRequest(fx)
	req.Tracking = &TrackingRequest{CandidateIDs: []string{"A010", "A025", "A090"}}

	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, report.Tracking)

	tr := report.Tracking
	require.Len(t, tr.Candidates, 3)
	for _, c := range tr.Candidates {
		assert.Len(t, c.Sensitivities, 2)
	}
	p := tr.Portfolio
	require.Len(t, p.Weights, 3)
	assert.Equal(t, report.Regression.Sensitivities, p.Target)
	assert.InDelta(t, 1.0, p.Budget, 1e-9)
	assert.Less(t, p.MaxExposureError(), 1e-9)

	// small caps load negatively on size, large caps positively
	assert.Less(t, tr.Candidates[0].Sensitivities[0], 0.0)
	assert.Greater(t, tr.Candidates[2].Sensitivities[0], 0.0)
}

func TestService_Run_TrackingExplicitTarget(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	req := fixtureRequest(fx)
	req.Tracking = &TrackingRequest{
		Target: []float64{1, 1.1},
		Candidates: []tracking.Candidate{
			{ID: "X", Sensitivities: []float64{0.7, 1.1}},
			{ID: "Y", Sensitivities: []float64{0.1, 0.5}},
			{ID: "Z", Sensitivities: []float64{1.5, 1.3}},
		},
	}

	report, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	w, ok := report.Tracking.Portfolio.WeightOf("Y")
	require.True(t, ok)
	assert.InDelta(t, 1.0/6.0, w, 1e-9)
}

func TestService_Run_TrackingWrongCandidateCount(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	req := fixtureRequest(fx)
	req.Tracking = &TrackingRequest{CandidateIDs: []string{"A010", "A090"}}

	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlignmentMismatch))
}

func TestService_Run_TrackingUnknownCandidate(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	req := fixtureRequest(fx)
	req.Tracking = &TrackingRequest{CandidateIDs: []string{"A010", "A025", "NOPE"}}

	_, err := svc.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
	assert.Contains(t, err.Error(), "NOPE")
}

func TestService_Run_DataErrors(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	t.Run("unknown benchmark", func(t *testing.T) {
		req := fixtureRequest(fx)
		req.BenchmarkID = "MISSING"
		_, err := svc.Run(context.Background(), req)
		assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
	})

	t.Run("no fundamentals snapshot", func(t *testing.T) {
		req := fixtureRequest(fx)
		req.AsOf = fx.AsOf.AddDate(0, 0, -7)
		_, err := svc.Run(context.Background(), req)
		assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
	})

	t.Run("asset with gap", func(t *testing.T) {
		_, mem, fx := newFixtureService(t)
		gappy := append([]domain.PricePoint{}, fx.Prices[testhelpers.TargetID][:20]...)
		gappy = append(gappy, fx.Prices[testhelpers.TargetID][21:]...)
		mem.SetPrices(testhelpers.TargetID, gappy)

		svc := NewService(mem, 0, zerolog.Nop())
		_, err := svc.Run(context.Background(), fixtureRequest(fx))
		assert.True(t, errors.Is(err, domain.ErrDataUnavailable))
	})

	t.Run("invalid request", func(t *testing.T) {
		req := fixtureRequest(fx)
		req.AssetID = ""
		_, err := svc.Run(context.Background(), req)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	})
}

func TestService_Track_WithoutMarketData(t *testing.T) {
	svc := NewService(marketdata.NewMemory(), 0, zerolog.Nop())

	result, err := svc.Track(context.Background(), Request{
		Tracking: &TrackingRequest{
			Target: []float64{1, 1.1},
			Candidates: []tracking.Candidate{
				{ID: "X", Sensitivities: []float64{0.7, 1.1}},
				{ID: "Y", Sensitivities: []float64{0.1, 0.5}},
				{ID: "Z", Sensitivities: []float64{1.5, 1.3}},
			},
		},
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, result.Portfolio.Weights[0].Weight, 1e-9)
	assert.InDelta(t, 1.0/2.0, result.Portfolio.Weights[2].Weight, 1e-9)

	_, err = svc.Track(context.Background(), Request{})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = svc.Track(context.Background(), Request{
		Tracking: &TrackingRequest{
			Target: []float64{1, 2},
			Candidates: []tracking.Candidate{
				{ID: "A", Sensitivities: []float64{1, 2}},
				{ID: "B", Sensitivities: []float64{2, 4}},
				{ID: "C", Sensitivities: []float64{3, 6}},
			},
		},
	})
	assert.True(t, errors.Is(err, tracking.ErrNoUniqueSolution))
}

func TestService_Track_EstimatesFromPrices(t *testing.T) {
	svc, _, fx := newFixtureService(t)

	req := fixtureRequest(fx)
	req.Tracking = &TrackingRequest{CandidateIDs: []string{"A010", "A025", "A090"}}

	result, err := svc.Track(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, result.Portfolio.Weights, 3)
}
