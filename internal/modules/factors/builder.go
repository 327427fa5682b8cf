// Package factors constructs long-short factor return series from
// cross-sectional fundamental rankings.
package factors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskdecomp/internal/domain"
	"github.com/aristath/riskdecomp/internal/modules/returns"
)

// DefaultBucketPercent is the share of the universe held in each tail bucket
const DefaultBucketPercent = 30

// Spec describes how a factor is ranked
type Spec struct {
	Name  string                  `json:"name" yaml:"name"`
	Field domain.FundamentalField `json:"field" yaml:"field"`
	// Invert flips the legs to bottom minus top (small-minus-big style)
	Invert bool `json:"invert,omitempty" yaml:"invert,omitempty"`
}

// Built-in factor specs
var (
	Size  = Spec{Name: "size", Field: domain.FieldMarketCap}
	Value = Spec{Name: "value", Field: domain.FieldBookToPrice}
)

// Factor is a constructed long-short return series plus the bookkeeping
// needed to audit how it was built.
type Factor struct {
	Spec     Spec                `json:"spec"`
	Returns  domain.ReturnSeries `json:"returns"`
	Top      []string            `json:"top"`
	Bottom   []string            `json:"bottom"`
	Middle   int                 `json:"middle"`
	Excluded []domain.Exclusion  `json:"excluded,omitempty"`
}

// Builder builds factors from a pricing provider
type Builder struct {
	prices        domain.PricingProvider
	bucketPercent int
	log           zerolog.Logger
}

// NewBuilder creates a factor builder. A non-positive bucketPercent selects
// DefaultBucketPercent.
func NewBuilder(prices domain.PricingProvider, bucketPercent int, log zerolog.Logger) *Builder {
	if bucketPercent <= 0 {
		bucketPercent = DefaultBucketPercent
	}
	return &Builder{
		prices:        prices,
		bucketPercent: bucketPercent,
		log:           log.With().Str("component", "factor_builder").Logger(),
	}
}

// Build ranks the universe by spec.Field and returns top-bucket mean returns
// minus bottom-bucket mean returns on the calendar. The result has
// len(calendar)-1 observations.
func (b *Builder) Build(ctx context.Context, spec Spec, universe domain.Fundamentals, calendar []time.Time) (*Factor, error) {
	if len(calendar) < 2 {
		return nil, fmt.Errorf("factor %s: %w: calendar has %d dates", spec.Name, domain.ErrDegenerateInput, len(calendar))
	}

	valid, excluded := ValidateUniverse(universe, spec.Field)
	ranked := RankAscending(valid, spec.Field)

	bottom, middle, top, err := Buckets(ranked, b.bucketPercent)
	if err != nil {
		return nil, fmt.Errorf("factor %s: %w", spec.Name, err)
	}

	topMean, topKept, topDropped, err := b.bucketMean(ctx, top.IDs(), calendar)
	if err != nil {
		return nil, fmt.Errorf("factor %s top bucket: %w", spec.Name, err)
	}
	bottomMean, bottomKept, bottomDropped, err := b.bucketMean(ctx, bottom.IDs(), calendar)
	if err != nil {
		return nil, fmt.Errorf("factor %s bottom bucket: %w", spec.Name, err)
	}

	long, short := topMean, bottomMean
	if spec.Invert {
		long, short = bottomMean, topMean
	}
	series, err := long.Sub(short)
	if err != nil {
		return nil, fmt.Errorf("factor %s: %w", spec.Name, err)
	}

	excluded = append(excluded, topDropped...)
	excluded = append(excluded, bottomDropped...)

	b.log.Info().
		Str("factor", spec.Name).
		Str("field", string(spec.Field)).
		Int("universe", len(universe)).
		Int("ranked", len(ranked)).
		Int("top", len(topKept)).
		Int("bottom", len(bottomKept)).
		Int("middle", len(middle)).
		Int("excluded", len(excluded)).
		Int("observations", series.Len()).
		Msg("Built factor")

	return &Factor{
		Spec:     spec,
		Returns:  series,
		Top:      topKept,
		Bottom:   bottomKept,
		Middle:   len(middle),
		Excluded: excluded,
	}, nil
}

// bucketMean averages the returns of the bucket members that have a full
// price history on the calendar. Members without one are dropped and
// reported; a bucket left empty is degenerate.
func (b *Builder) bucketMean(ctx context.Context, ids []string, calendar []time.Time) (domain.ReturnSeries, []string, []domain.Exclusion, error) {
	start, end := calendar[0], calendar[len(calendar)-1]

	prices, err := b.prices.GetPrices(ctx, ids, start, end)
	if err != nil {
		return domain.ReturnSeries{}, nil, nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	var (
		series   []domain.ReturnSeries
		kept     []string
		excluded []domain.Exclusion
	)
	for _, id := range ids {
		ps, ok := prices[id]
		if !ok || ps.Len() == 0 {
			excluded = append(excluded, domain.Exclusion{AssetID: id, Reason: "no prices in window"})
			continue
		}
		r, err := returns.PercentChange(ps, calendar)
		if err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				excluded = append(excluded, domain.Exclusion{AssetID: id, Reason: err.Error()})
				continue
			}
			return domain.ReturnSeries{}, nil, nil, err
		}
		series = append(series, r)
		kept = append(kept, id)
	}

	for _, ex := range excluded {
		b.log.Debug().Str("asset", ex.AssetID).Str("reason", ex.Reason).Msg("Dropped asset from bucket")
	}

	if len(series) == 0 {
		return domain.ReturnSeries{}, nil, excluded, fmt.Errorf("%w: all %d assets dropped from bucket",
			domain.ErrDegenerateInput, len(ids))
	}

	mean, err := returns.CrossSectionalMean(series)
	if err != nil {
		return domain.ReturnSeries{}, nil, nil, err
	}
	return mean, kept, excluded, nil
}
