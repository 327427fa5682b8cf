package testing

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/riskdecomp/internal/domain"
)

// Fixture asset identifiers
const (
	BenchmarkID = "BENCH"
	TargetID    = "ACME"
)

// MarketFixture is a deterministic synthetic market: a ranked universe whose
// returns load on hidden size and value drivers, a benchmark and a target
// asset with known loadings.
type MarketFixture struct {
	AsOf         time.Time
	Start        time.Time
	End          time.Time
	Fundamentals domain.Fundamentals
	Prices       map[string][]domain.PricePoint
	// Dates is the trading calendar (weekdays only)
	Dates []time.Time
	// SizeDriver and ValueDriver are the hidden daily factor shocks (len(Dates)-1)
	SizeDriver  []float64
	ValueDriver []float64
}

// MarketConfig controls the synthetic market
type MarketConfig struct {
	Assets int
	Days   int
	Seed   int64
	// TargetSize and TargetValue are ACME's loadings on the hidden drivers
	TargetSize  float64
	TargetValue float64
}

// DefaultMarketConfig is a 100-asset, 120-day market
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{Assets: 100, Days: 120, Seed: 42, TargetSize: 0.8, TargetValue: -0.5}
}

// NewMarketFixture builds a synthetic market. Identical configs produce
// identical markets.
func NewMarketFixture(cfg MarketConfig) *MarketFixture {
	rng := rand.New(rand.NewSource(cfg.Seed))

	start := time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 0, cfg.Days)
	for d := start; len(dates) < cfg.Days; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		dates = append(dates, d)
	}

	n := cfg.Days - 1
	market := make([]float64, n)
	size := make([]float64, n)
	value := make([]float64, n)
	for t := 0; t < n; t++ {
		market[t] = 0.0003 + 0.01*rng.NormFloat64()
		size[t] = 0.006 * rng.NormFloat64()
		value[t] = 0.005 * rng.NormFloat64()
	}

	fx := &MarketFixture{
		AsOf:        dates[0],
		Start:       dates[0],
		End:         dates[len(dates)-1],
		Prices:      make(map[string][]domain.PricePoint, cfg.Assets+2),
		Dates:       dates,
		SizeDriver:  size,
		ValueDriver: value,
	}

	for i := 0; i < cfg.Assets; i++ {
		id := fmt.Sprintf("A%03d", i)
		// rank position in [-0.5, 0.5] drives exposure on each axis
		sizeRank := float64(i)/float64(cfg.Assets-1) - 0.5
		valueRank := float64((i*37)%cfg.Assets)/float64(cfg.Assets-1) - 0.5

		fx.Fundamentals = append(fx.Fundamentals, domain.AssetRecord{
			ID:               id,
			MarketCap:        1e9 * math.Exp(4*sizeRank),
			BookToPriceYield: 0.5 + valueRank,
		})

		rets := make([]float64, n)
		for t := 0; t < n; t++ {
			rets[t] = market[t] + 2*sizeRank*size[t] + 2*valueRank*value[t] + 0.004*rng.NormFloat64()
		}
		fx.Prices[id] = compound(dates, 50+rng.Float64()*100, rets)
	}

	bench := make([]float64, n)
	target := make([]float64, n)
	for t := 0; t < n; t++ {
		bench[t] = market[t] + 0.001*rng.NormFloat64()
		target[t] = bench[t] + cfg.TargetSize*size[t] + cfg.TargetValue*value[t] + 0.002*rng.NormFloat64()
	}
	fx.Prices[BenchmarkID] = compound(dates, 1000, bench)
	fx.Prices[TargetID] = compound(dates, 25, target)

	return fx
}

// Loader is anything that accepts fixture data, such as marketdata.Memory
type Loader interface {
	SetFundamentals(asOf time.Time, records domain.Fundamentals)
	SetPrices(assetID string, points []domain.PricePoint)
}

// LoadInto copies the fixture into dst
func (fx *MarketFixture) LoadInto(dst Loader) {
	dst.SetFundamentals(fx.AsOf, fx.Fundamentals)
	for id, pts := range fx.Prices {
		dst.SetPrices(id, pts)
	}
}

func compound(dates []time.Time, start float64, rets []float64) []domain.PricePoint {
	pts := make([]domain.PricePoint, len(dates))
	px := start
	pts[0] = domain.PricePoint{Date: dates[0], Price: px}
	for t, r := range rets {
		px *= 1 + r
		pts[t+1] = domain.PricePoint{Date: dates[t+1], Price: px}
	}
	return pts
}

// WriteCSV lays the fixture out as fundamentals.csv plus prices/<ID>.csv
// under dir, the layout the CSV importer reads
func (fx *MarketFixture) WriteCSV(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "prices"), 0755); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("asset_id,as_of,market_cap,book_to_price\n")
	for _, r := range fx.Fundamentals {
		fmt.Fprintf(&b, "%s,%s,%s,%s\n", r.ID, fx.AsOf.Format(domain.DateLayout),
			strconv.FormatFloat(r.MarketCap, 'g', -1, 64), strconv.FormatFloat(r.BookToPriceYield, 'g', -1, 64))
	}
	if err := os.WriteFile(filepath.Join(dir, "fundamentals.csv"), []byte(b.String()), 0644); err != nil {
		return err
	}

	for id, pts := range fx.Prices {
		b.Reset()
		b.WriteString("date,close\n")
		for _, p := range pts {
			fmt.Fprintf(&b, "%s,%s\n", p.Date.Format(domain.DateLayout), strconv.FormatFloat(p.Price, 'g', -1, 64))
		}
		if err := os.WriteFile(filepath.Join(dir, "prices", id+".csv"), []byte(b.String()), 0644); err != nil {
			return err
		}
	}
	return nil
}
