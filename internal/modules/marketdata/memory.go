package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/riskdecomp/internal/domain"
)

var _ domain.MarketDataProvider = (*Memory)(nil)

// Memory is an in-memory market data provider used for fixtures and tests
type Memory struct {
	mu           sync.RWMutex
	fundamentals map[int64]domain.Fundamentals // keyed by snapshot date (unix)
	prices       map[string][]domain.PricePoint
}

// NewMemory creates an empty in-memory provider
func NewMemory() *Memory {
	return &Memory{
		fundamentals: make(map[int64]domain.Fundamentals),
		prices:       make(map[string][]domain.PricePoint),
	}
}

// SetFundamentals stores a fundamentals snapshot taken on asOf
func (m *Memory) SetFundamentals(asOf time.Time, records domain.Fundamentals) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(domain.Fundamentals, len(records))
	copy(cp, records)
	m.fundamentals[truncateDay(asOf).Unix()] = cp
}

// SetPrices replaces the price history of an asset
func (m *Memory) SetPrices(assetID string, points []domain.PricePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.PricePoint, len(points))
	copy(cp, points)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
	m.prices[assetID] = cp
}

// GetFundamentals returns the latest snapshot on or before asOf
func (m *Memory) GetFundamentals(ctx context.Context, asOf time.Time, fields []domain.FundamentalField) (domain.Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := truncateDay(asOf).Unix()
	best := int64(-1 << 62)
	found := false
	for ts := range m.fundamentals {
		if ts <= cutoff && ts > best {
			best = ts
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no fundamentals on or before %s", domain.ErrDataUnavailable, asOf.Format(domain.DateLayout))
	}

	snapshot := m.fundamentals[best]
	out := make(domain.Fundamentals, len(snapshot))
	copy(out, snapshot)
	return out, nil
}

// GetPrices returns the series of every requested asset that has data in
// [start, end]. Assets without data are left out of the map; the call only
// fails when none of the requested assets has data.
func (m *Memory) GetPrices(ctx context.Context, assetIDs []string, start, end time.Time) (map[string]domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to := truncateDay(start), truncateDay(end)
	out := make(map[string]domain.PriceSeries, len(assetIDs))
	for _, id := range assetIDs {
		var pts []domain.PricePoint
		for _, p := range m.prices[id] {
			d := truncateDay(p.Date)
			if d.Before(from) || d.After(to) {
				continue
			}
			pts = append(pts, p)
		}
		if len(pts) > 0 {
			out[id] = domain.PriceSeries{AssetID: id, Points: pts}
		}
	}

	if len(out) == 0 {
		return nil, noPricesError(assetIDs, start, end)
	}
	return out, nil
}

func noPricesError(assetIDs []string, start, end time.Time) error {
	return fmt.Errorf("%w: no prices for %v between %s and %s", domain.ErrDataUnavailable,
		assetIDs, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
}

func truncateDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
