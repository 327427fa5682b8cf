// Package analysis runs a full risk decomposition: factor construction,
// regression of active returns, FMCAR and an optional tracking portfolio.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/riskdecomp/internal/domain"
	"github.com/aristath/riskdecomp/internal/modules/attribution"
	"github.com/aristath/riskdecomp/internal/modules/factors"
	"github.com/aristath/riskdecomp/internal/modules/returns"
	"github.com/aristath/riskdecomp/internal/modules/tracking"
)

// FactorSummary describes one constructed factor
type FactorSummary struct {
	Name       string             `json:"name" yaml:"name" msgpack:"name"`
	Field      string             `json:"field" yaml:"field" msgpack:"field"`
	Invert     bool               `json:"invert,omitempty" yaml:"invert,omitempty" msgpack:"invert,omitempty"`
	Top        []string           `json:"top" yaml:"top" msgpack:"top"`
	Bottom     []string           `json:"bottom" yaml:"bottom" msgpack:"bottom"`
	Middle     int                `json:"middle" yaml:"middle" msgpack:"middle"`
	Excluded   []domain.Exclusion `json:"excluded,omitempty" yaml:"excluded,omitempty" msgpack:"excluded,omitempty"`
	Mean       float64            `json:"mean" yaml:"mean" msgpack:"mean"`
	Volatility float64            `json:"volatility" yaml:"volatility" msgpack:"volatility"`
}

// Contribution is one factor's row of the attribution
type Contribution struct {
	Factor      string  `json:"factor" yaml:"factor" msgpack:"factor"`
	Sensitivity float64 `json:"sensitivity" yaml:"sensitivity" msgpack:"sensitivity"`
	FMCAR       float64 `json:"fmcar" yaml:"fmcar" msgpack:"fmcar"`
}

// TrackingResult is the solved tracking portfolio and the inputs it used
type TrackingResult struct {
	Candidates []tracking.Candidate `json:"candidates" yaml:"candidates" msgpack:"candidates"`
	Portfolio  *tracking.Portfolio  `json:"portfolio" yaml:"portfolio" msgpack:"portfolio"`
}

// Report is the outcome of one analysis run
type Report struct {
	RunID         string                   `json:"run_id" yaml:"run_id" msgpack:"run_id"`
	GeneratedAt   time.Time                `json:"generated_at" yaml:"generated_at" msgpack:"generated_at"`
	Request       Request                  `json:"request" yaml:"request" msgpack:"request"`
	Observations  int                      `json:"observations" yaml:"observations" msgpack:"observations"`
	WindowStart   time.Time                `json:"window_start" yaml:"window_start" msgpack:"window_start"`
	WindowEnd     time.Time                `json:"window_end" yaml:"window_end" msgpack:"window_end"`
	Universe      int                      `json:"universe" yaml:"universe" msgpack:"universe"`
	Excluded      []domain.Exclusion       `json:"excluded,omitempty" yaml:"excluded,omitempty" msgpack:"excluded,omitempty"`
	Factors       []FactorSummary          `json:"factors" yaml:"factors" msgpack:"factors"`
	Regression    *attribution.Regression  `json:"regression" yaml:"regression" msgpack:"regression"`
	Attribution   *attribution.Attribution `json:"attribution" yaml:"attribution" msgpack:"attribution"`
	Contributions []Contribution           `json:"contributions" yaml:"contributions" msgpack:"contributions"`
	Tracking      *TrackingResult          `json:"tracking,omitempty" yaml:"tracking,omitempty" msgpack:"tracking,omitempty"`
}

// Service runs analyses against a market data provider. It holds no state
// between runs.
type Service struct {
	data    domain.MarketDataProvider
	builder *factors.Builder
	log     zerolog.Logger
}

// NewService creates an analysis service. bucketPercent is passed to the
// factor builder.
func NewService(data domain.MarketDataProvider, bucketPercent int, log zerolog.Logger) *Service {
	return &Service{
		data:    data,
		builder: factors.NewBuilder(data, bucketPercent, log),
		log:     log.With().Str("component", "analysis").Logger(),
	}
}

// Run executes the full decomposition for req
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Str("asset", req.AssetID).Logger()
	log.Info().
		Str("benchmark", req.BenchmarkID).
		Str("start", req.Start.Format(domain.DateLayout)).
		Str("end", req.End.Format(domain.DateLayout)).
		Int("factors", len(req.Factors)).
		Msg("Starting analysis")

	fields := req.fields()
	fundamentals, err := s.data.GetFundamentals(ctx, req.AsOf, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to get fundamentals as of %s: %w", req.AsOf.Format(domain.DateLayout), err)
	}
	universe, excluded := factors.CompleteCases(fundamentals, fields)

	calendar, active, benchmark, err := s.activeReturns(ctx, req)
	if err != nil {
		return nil, err
	}

	built := make([]*factors.Factor, 0, len(req.Factors))
	series := make([]domain.ReturnSeries, 0, len(req.Factors))
	for _, spec := range req.Factors {
		f, err := s.builder.Build(ctx, spec, universe, calendar)
		if err != nil {
			return nil, err
		}
		built = append(built, f)
		series = append(series, f.Returns)
	}

	reg, attr, err := attribution.Analyze(active, series)
	if err != nil {
		return nil, fmt.Errorf("attribution for %s: %w", req.AssetID, err)
	}

	report := &Report{
		RunID:        runID,
		GeneratedAt:  time.Now().UTC(),
		Request:      req,
		Observations: active.Len(),
		WindowStart:  calendar[0],
		WindowEnd:    calendar[len(calendar)-1],
		Universe:     len(universe),
		Excluded:     excluded,
		Regression:   reg,
		Attribution:  attr,
	}
	for i, f := range built {
		report.Factors = append(report.Factors, summarize(f))
		report.Contributions = append(report.Contributions, Contribution{
			Factor:      f.Spec.Name,
			Sensitivity: reg.Sensitivities[i],
			FMCAR:       attr.FMCAR[i],
		})
	}

	if req.Tracking != nil {
		target := req.Tracking.Target
		if len(target) == 0 {
			target = reg.Sensitivities
		}
		candidates, err := s.candidates(ctx, req.Tracking, calendar, benchmark, series)
		if err != nil {
			return nil, err
		}
		portfolio, err := tracking.Solve(target, candidates)
		if err != nil {
			return nil, fmt.Errorf("tracking portfolio: %w", err)
		}
		report.Tracking = &TrackingResult{Candidates: candidates, Portfolio: portfolio}
	}

	log.Info().
		Int("observations", report.Observations).
		Float64("r_squared", reg.RSquared).
		Float64("factor_share", attr.FactorShare).
		Float64("idiosyncratic", attr.Idiosyncratic).
		Bool("tracking", report.Tracking != nil).
		Msg("Analysis complete")

	return report, nil
}

// Track solves only the tracking portfolio. Requests with an explicit target
// and explicit candidates need no market data; anything else runs the full
// analysis to estimate the missing sensitivities.
func (s *Service) Track(ctx context.Context, req Request) (*TrackingResult, error) {
	t := req.Tracking
	if t == nil {
		return nil, fmt.Errorf("%w: no tracking section", ErrInvalidRequest)
	}
	if len(t.Target) > 0 && len(t.Candidates) > 0 && len(t.CandidateIDs) == 0 {
		portfolio, err := tracking.Solve(t.Target, t.Candidates)
		if err != nil {
			return nil, fmt.Errorf("tracking portfolio: %w", err)
		}
		s.log.Info().Int("candidates", len(t.Candidates)).Msg("Solved tracking portfolio")
		return &TrackingResult{Candidates: t.Candidates, Portfolio: portfolio}, nil
	}

	report, err := s.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return report.Tracking, nil
}

// activeReturns derives the calendar from the benchmark's prices and returns
// the asset's active returns against it
func (s *Service) activeReturns(ctx context.Context, req Request) ([]time.Time, domain.ReturnSeries, domain.ReturnSeries, error) {
	ids := []string{req.AssetID, req.BenchmarkID}
	prices, err := s.data.GetPrices(ctx, ids, req.Start, req.End)
	if err != nil {
		return nil, domain.ReturnSeries{}, domain.ReturnSeries{}, fmt.Errorf("failed to get prices: %w", err)
	}
	for _, id := range ids {
		if ps, ok := prices[id]; !ok || ps.Len() == 0 {
			return nil, domain.ReturnSeries{}, domain.ReturnSeries{}, fmt.Errorf("%w: no prices for %s between %s and %s",
				domain.ErrDataUnavailable, id, req.Start.Format(domain.DateLayout), req.End.Format(domain.DateLayout))
		}
	}

	calendar := returns.Calendar(prices[req.BenchmarkID])
	benchmark, err := returns.PercentChange(prices[req.BenchmarkID], calendar)
	if err != nil {
		return nil, domain.ReturnSeries{}, domain.ReturnSeries{}, fmt.Errorf("benchmark %s: %w", req.BenchmarkID, err)
	}
	asset, err := returns.PercentChange(prices[req.AssetID], calendar)
	if err != nil {
		return nil, domain.ReturnSeries{}, domain.ReturnSeries{}, fmt.Errorf("asset %s: %w", req.AssetID, err)
	}
	active, err := returns.Active(asset, benchmark)
	if err != nil {
		return nil, domain.ReturnSeries{}, domain.ReturnSeries{}, err
	}
	return calendar, active, benchmark, nil
}

// candidates resolves tracking candidates. Explicit candidates are used as
// given; candidate IDs get sensitivities from regressing their active returns
// on the factors, the same model the asset is measured with.
func (s *Service) candidates(ctx context.Context, t *TrackingRequest, calendar []time.Time, benchmark domain.ReturnSeries, factorSeries []domain.ReturnSeries) ([]tracking.Candidate, error) {
	if len(t.Candidates) > 0 {
		return t.Candidates, nil
	}

	start, end := calendar[0], calendar[len(calendar)-1]
	prices, err := s.data.GetPrices(ctx, t.CandidateIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate prices: %w", err)
	}

	out := make([]tracking.Candidate, 0, len(t.CandidateIDs))
	for _, id := range t.CandidateIDs {
		ps, ok := prices[id]
		if !ok || ps.Len() == 0 {
			return nil, fmt.Errorf("tracking candidate %s: %w: no prices in window", id, domain.ErrDataUnavailable)
		}
		r, err := returns.PercentChange(ps, calendar)
		if err != nil {
			return nil, fmt.Errorf("tracking candidate %s: %w", id, err)
		}
		active, err := returns.Active(r, benchmark)
		if err != nil {
			return nil, fmt.Errorf("tracking candidate %s: %w", id, err)
		}
		reg, err := attribution.Regress(active, factorSeries)
		if err != nil {
			return nil, fmt.Errorf("tracking candidate %s: %w", id, err)
		}
		s.log.Debug().Str("candidate", id).Floats64("sensitivities", reg.Sensitivities).Msg("Estimated candidate sensitivities")
		out = append(out, tracking.Candidate{ID: id, Sensitivities: reg.Sensitivities})
	}
	return out, nil
}

func summarize(f *factors.Factor) FactorSummary {
	mean, std := stat.MeanStdDev(f.Returns.Values, nil)
	return FactorSummary{
		Name:       f.Spec.Name,
		Field:      string(f.Spec.Field),
		Invert:     f.Spec.Invert,
		Top:        f.Top,
		Bottom:     f.Bottom,
		Middle:     f.Middle,
		Excluded:   f.Excluded,
		Mean:       mean,
		Volatility: std,
	}
}
