package domain

import (
	"context"
	"time"
)

// FundamentalsProvider returns point-in-time fundamentals.
// Implementations are injected so analysis code runs against fixtures and
// the history database alike.
type FundamentalsProvider interface {
	// GetFundamentals returns the table as of the given date.
	// Returns ErrDataUnavailable when no snapshot exists on or before asOf.
	GetFundamentals(ctx context.Context, asOf time.Time, fields []FundamentalField) (Fundamentals, error)
}

// PricingProvider returns daily price histories
type PricingProvider interface {
	// GetPrices returns one ascending series per requested asset over [start, end].
	// Unknown identifiers or empty ranges yield ErrDataUnavailable.
	GetPrices(ctx context.Context, assetIDs []string, start, end time.Time) (map[string]PriceSeries, error)
}

// MarketDataProvider is the combined data source used by an analysis run
type MarketDataProvider interface {
	FundamentalsProvider
	PricingProvider
}
