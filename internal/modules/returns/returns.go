// Package returns derives return series from daily prices.
package returns

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/riskdecomp/internal/domain"
)

// Calendar returns the date axis of a price series
func Calendar(series domain.PriceSeries) []time.Time {
	dates := make([]time.Time, len(series.Points))
	for i, p := range series.Points {
		dates[i] = p.Date
	}
	return dates
}

// alignToCalendar maps a price series onto the calendar.
// Missing dates are returned as NaN; dates outside the calendar are ignored.
func alignToCalendar(series domain.PriceSeries, calendar []time.Time) []float64 {
	byDate := make(map[int64]float64, len(series.Points))
	for _, p := range series.Points {
		byDate[dayKey(p.Date)] = p.Price
	}

	out := make([]float64, len(calendar))
	for i, d := range calendar {
		if px, ok := byDate[dayKey(d)]; ok {
			out[i] = px
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

func dayKey(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// PercentChange computes simple daily returns of series on the calendar.
// The first observation has no prior price and is dropped, so a calendar of
// N dates yields N-1 returns. A missing or non-positive price on any calendar
// date is reported as ErrDataUnavailable.
func PercentChange(series domain.PriceSeries, calendar []time.Time) (domain.ReturnSeries, error) {
	if len(calendar) < 2 {
		return domain.ReturnSeries{}, fmt.Errorf("%w: calendar for %s has %d dates, need at least 2",
			domain.ErrDegenerateInput, series.AssetID, len(calendar))
	}

	prices := alignToCalendar(series, calendar)
	for i, px := range prices {
		if math.IsNaN(px) {
			return domain.ReturnSeries{}, fmt.Errorf("%w: %s has no price on %s",
				domain.ErrDataUnavailable, series.AssetID, calendar[i].Format(domain.DateLayout))
		}
		if px <= 0 || math.IsInf(px, 0) {
			return domain.ReturnSeries{}, fmt.Errorf("%w: %s has invalid price %v on %s",
				domain.ErrDataUnavailable, series.AssetID, px, calendar[i].Format(domain.DateLayout))
		}
	}

	values := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		values[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
	}

	dates := make([]time.Time, len(calendar)-1)
	copy(dates, calendar[1:])

	return domain.NewReturnSeries(dates, values)
}

// Active returns asset minus benchmark on identical dates
func Active(asset, benchmark domain.ReturnSeries) (domain.ReturnSeries, error) {
	active, err := asset.Sub(benchmark)
	if err != nil {
		return domain.ReturnSeries{}, fmt.Errorf("active return: %w", err)
	}
	return active, nil
}

// CrossSectionalMean averages several aligned series date by date
func CrossSectionalMean(series []domain.ReturnSeries) (domain.ReturnSeries, error) {
	if len(series) == 0 {
		return domain.ReturnSeries{}, fmt.Errorf("%w: no series to average", domain.ErrDegenerateInput)
	}

	first := series[0]
	sum := make([]float64, first.Len())
	for i, s := range series {
		if err := first.AlignedWith(s); err != nil {
			return domain.ReturnSeries{}, fmt.Errorf("series %d: %w", i, err)
		}
		floats.Add(sum, s.Values)
	}
	floats.Scale(1/float64(len(series)), sum)

	dates := make([]time.Time, len(first.Dates))
	copy(dates, first.Dates)
	return domain.NewReturnSeries(dates, sum)
}
