package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskdecomp/internal/domain"
)

// Store is the write side of a history database
type Store interface {
	WriteBatch(batch *Batch) error
}

// ImportSummary reports what an import loaded and what it skipped
type ImportSummary struct {
	Snapshots    int
	Fundamentals int
	Assets       int
	Prices       int
	Skipped      []string
}

// CSVImporter loads fixture CSV files into a Store.
//
// Layout:
//
//	<dir>/fundamentals.csv   asset_id,as_of,market_cap,book_to_price
//	<dir>/prices/<ID>.csv    date,close
type CSVImporter struct {
	store Store
	log   zerolog.Logger
}

// NewCSVImporter creates an importer writing into store
func NewCSVImporter(store Store, log zerolog.Logger) *CSVImporter {
	return &CSVImporter{
		store: store,
		log:   log.With().Str("component", "csv_importer").Logger(),
	}
}

// ImportDir imports fundamentals.csv and every file under prices/. All files
// are parsed before anything is written, and the write is a single batch, so
// a failed import leaves the store unchanged.
func (c *CSVImporter) ImportDir(dir string) (*ImportSummary, error) {
	summary := &ImportSummary{}
	batch := &Batch{Prices: make(map[string][]domain.PricePoint)}

	fundPath := filepath.Join(dir, "fundamentals.csv")
	f, err := os.Open(fundPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fundPath, err)
	}
	defer f.Close()

	batch.Fundamentals, err = ParseFundamentals(f, summary)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fundPath, err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "prices", "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list price files: %w", err)
	}
	sort.Strings(files)

	for _, path := range files {
		id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		pf, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		points, err := ParsePrices(id, pf, summary)
		pf.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		batch.Prices[id] = points
	}

	if err := c.store.WriteBatch(batch); err != nil {
		return nil, fmt.Errorf("failed to store import from %s: %w", dir, err)
	}

	summary.Snapshots = len(batch.Fundamentals)
	for _, recs := range batch.Fundamentals {
		summary.Fundamentals += len(recs)
	}
	summary.Assets = len(batch.Prices)
	for _, points := range batch.Prices {
		summary.Prices += len(points)
	}

	c.log.Info().
		Int("snapshots", summary.Snapshots).
		Int("fundamentals", summary.Fundamentals).
		Int("assets", summary.Assets).
		Int("prices", summary.Prices).
		Int("skipped", len(summary.Skipped)).
		Msg("Import finished")

	return summary, nil
}

// ParseFundamentals reads a fundamentals table grouped by snapshot date.
// Empty cells become NaN so later validation reports them as incomplete rows.
// Unparseable rows are recorded in summary.Skipped.
func ParseFundamentals(r io.Reader, summary *ImportSummary) (map[time.Time]domain.Fundamentals, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file has no data rows")
	}

	col := parseHeader(records[0])
	for _, name := range []string{"asset_id", "as_of"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	snapshots := make(map[time.Time]domain.Fundamentals)
	for i, row := range records[1:] {
		line := i + 2
		asOf, err := parseDate(cell(row, col, "as_of"))
		if err != nil {
			summary.Skipped = append(summary.Skipped, fmt.Sprintf("fundamentals line %d: %v", line, err))
			continue
		}
		rec := domain.AssetRecord{
			ID:               strings.TrimSpace(cell(row, col, "asset_id")),
			MarketCap:        parseOptionalFloat(cell(row, col, "market_cap")),
			BookToPriceYield: parseOptionalFloat(cell(row, col, "book_to_price")),
		}
		if rec.ID == "" {
			summary.Skipped = append(summary.Skipped, fmt.Sprintf("fundamentals line %d: empty asset_id", line))
			continue
		}
		snapshots[asOf] = append(snapshots[asOf], rec)
	}
	return snapshots, nil
}

// ParsePrices reads one asset's daily closes, sorted by date
func ParsePrices(assetID string, r io.Reader, summary *ImportSummary) ([]domain.PricePoint, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file has no data rows")
	}

	col := parseHeader(records[0])
	for _, name := range []string{"date", "close"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	points := make([]domain.PricePoint, 0, len(records)-1)
	for i, row := range records[1:] {
		line := i + 2
		d, err := parseDate(cell(row, col, "date"))
		if err != nil {
			summary.Skipped = append(summary.Skipped, fmt.Sprintf("%s line %d: %v", assetID, line, err))
			continue
		}
		px, err := strconv.ParseFloat(strings.TrimSpace(cell(row, col, "close")), 64)
		if err != nil {
			summary.Skipped = append(summary.Skipped, fmt.Sprintf("%s line %d: bad close %q", assetID, line, cell(row, col, "close")))
			continue
		}
		points = append(points, domain.PricePoint{Date: d, Price: px})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func parseHeader(header []string) map[string]int {
	colIndex := make(map[string]int)
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "asset_id", "id", "symbol", "ticker":
			colIndex["asset_id"] = i
		case "as_of", "asof", "snapshot":
			colIndex["as_of"] = i
		case "market_cap", "marketcap", "market_capitalization":
			colIndex["market_cap"] = i
		case "book_to_price", "book_to_price_yield", "btp":
			colIndex["book_to_price"] = i
		case "date", "timestamp":
			colIndex["date"] = i
		case "close", "adj_close", "price":
			colIndex["close"] = i
		}
	}
	return colIndex
}

func cell(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseOptionalFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{domain.DateLayout, "2006/01/02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %q", s)
}
