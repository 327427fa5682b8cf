// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the date format used for daily observations
const DateLayout = "2006-01-02"

// FundamentalField identifies a cross-sectional fundamental attribute
type FundamentalField string

const (
	// FieldMarketCap is market capitalization (positive real)
	FieldMarketCap FundamentalField = "market_cap"
	// FieldBookToPrice is book-to-price yield (must be > 0 to be ranked)
	FieldBookToPrice FundamentalField = "book_to_price"
)

// ParseFundamentalField converts a field name into a FundamentalField
func ParseFundamentalField(name string) (FundamentalField, error) {
	switch FundamentalField(name) {
	case FieldMarketCap, FieldBookToPrice:
		return FundamentalField(name), nil
	}
	return "", fmt.Errorf("unknown fundamental field %q", name)
}

// AssetRecord is one row of a point-in-time fundamentals table
type AssetRecord struct {
	ID               string  `json:"id" yaml:"id" msgpack:"id"`
	MarketCap        float64 `json:"market_cap" yaml:"market_cap" msgpack:"market_cap"`
	BookToPriceYield float64 `json:"book_to_price" yaml:"book_to_price" msgpack:"book_to_price"`
}

// Value returns the attribute named by field
func (r AssetRecord) Value(field FundamentalField) float64 {
	switch field {
	case FieldMarketCap:
		return r.MarketCap
	case FieldBookToPrice:
		return r.BookToPriceYield
	}
	return math.NaN()
}

// Fundamentals is an ordered fundamentals table keyed by asset ID
type Fundamentals []AssetRecord

// IDs returns the asset identifiers in table order
func (f Fundamentals) IDs() []string {
	ids := make([]string, len(f))
	for i, r := range f {
		ids[i] = r.ID
	}
	return ids
}

// PricePoint is a single daily price observation
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceSeries is an ascending daily price history for one asset
type PriceSeries struct {
	AssetID string       `json:"asset_id"`
	Points  []PricePoint `json:"points"`
}

// Len returns the number of observations
func (s PriceSeries) Len() int {
	return len(s.Points)
}

// Exclusion records an asset dropped by a validation pass and why
type Exclusion struct {
	AssetID string `json:"asset_id" yaml:"asset_id" msgpack:"asset_id"`
	Reason  string `json:"reason" yaml:"reason" msgpack:"reason"`
}

// ReturnSeries is a date-aligned return series.
// Dates and Values always have the same length.
type ReturnSeries struct {
	Dates  []time.Time `json:"dates" yaml:"dates" msgpack:"dates"`
	Values []float64   `json:"values" yaml:"values" msgpack:"values"`
}

// NewReturnSeries builds a series, rejecting mismatched lengths
func NewReturnSeries(dates []time.Time, values []float64) (ReturnSeries, error) {
	if len(dates) != len(values) {
		return ReturnSeries{}, fmt.Errorf("%w: %d dates for %d values", ErrAlignmentMismatch, len(dates), len(values))
	}
	return ReturnSeries{Dates: dates, Values: values}, nil
}

// Len returns the number of observations
func (s ReturnSeries) Len() int {
	return len(s.Values)
}

// AlignedWith reports nil when both series cover exactly the same dates
func (s ReturnSeries) AlignedWith(other ReturnSeries) error {
	if s.Len() != other.Len() || len(s.Dates) != len(other.Dates) {
		return fmt.Errorf("%w: series lengths %d and %d", ErrAlignmentMismatch, s.Len(), other.Len())
	}
	for i := range s.Dates {
		if !s.Dates[i].Equal(other.Dates[i]) {
			return fmt.Errorf("%w: date %s does not match %s at index %d",
				ErrAlignmentMismatch, s.Dates[i].Format(DateLayout), other.Dates[i].Format(DateLayout), i)
		}
	}
	return nil
}

// Sub returns s - other on identical dates
func (s ReturnSeries) Sub(other ReturnSeries) (ReturnSeries, error) {
	if err := s.AlignedWith(other); err != nil {
		return ReturnSeries{}, err
	}
	values := make([]float64, s.Len())
	for i := range values {
		values[i] = s.Values[i] - other.Values[i]
	}
	dates := make([]time.Time, len(s.Dates))
	copy(dates, s.Dates)
	return ReturnSeries{Dates: dates, Values: values}, nil
}
