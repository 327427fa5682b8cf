// Package marketdata provides the fundamentals and pricing sources consumed
// by an analysis run.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskdecomp/internal/database"
	"github.com/aristath/riskdecomp/internal/domain"
)

var _ domain.MarketDataProvider = (*HistoryDB)(nil)

// HistoryDB serves fundamentals and daily prices from the history database
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// GetFundamentals returns the latest snapshot taken on or before asOf.
// NULL columns come back as NaN so validation can report them.
func (h *HistoryDB) GetFundamentals(ctx context.Context, asOf time.Time, fields []domain.FundamentalField) (domain.Fundamentals, error) {
	var snapshot sql.NullInt64
	err := h.db.QueryRowContext(ctx,
		"SELECT MAX(as_of) FROM fundamentals WHERE as_of <= ?", truncateDay(asOf).Unix(),
	).Scan(&snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to find fundamentals snapshot: %w", err)
	}
	if !snapshot.Valid {
		return nil, fmt.Errorf("%w: no fundamentals on or before %s", domain.ErrDataUnavailable, asOf.Format(domain.DateLayout))
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT asset_id, market_cap, book_to_price
		FROM fundamentals
		WHERE as_of = ?
		ORDER BY asset_id
	`, snapshot.Int64)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamentals: %w", err)
	}
	defer rows.Close()

	var out domain.Fundamentals
	for rows.Next() {
		var (
			r         domain.AssetRecord
			marketCap sql.NullFloat64
			bookPrice sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &marketCap, &bookPrice); err != nil {
			return nil, fmt.Errorf("failed to scan fundamentals: %w", err)
		}
		r.MarketCap = nullToNaN(marketCap)
		r.BookToPriceYield = nullToNaN(bookPrice)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fundamentals: %w", err)
	}

	h.log.Debug().
		Str("as_of", asOf.Format(domain.DateLayout)).
		Str("snapshot", time.Unix(snapshot.Int64, 0).UTC().Format(domain.DateLayout)).
		Int("assets", len(out)).
		Int("fields", len(fields)).
		Msg("Loaded fundamentals")

	return out, nil
}

// GetPrices returns daily closes for the requested assets in [start, end].
// Assets without data are left out of the map; the call only fails when
// none of the requested assets has data.
func (h *HistoryDB) GetPrices(ctx context.Context, assetIDs []string, start, end time.Time) (map[string]domain.PriceSeries, error) {
	if len(assetIDs) == 0 {
		return nil, fmt.Errorf("%w: no assets requested", domain.ErrDataUnavailable)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(assetIDs)), ",")
	query := `
		SELECT asset_id, date, close
		FROM daily_prices
		WHERE asset_id IN (` + placeholders + `) AND date >= ? AND date <= ?
		ORDER BY asset_id, date ASC
	`
	args := make([]interface{}, 0, len(assetIDs)+2)
	for _, id := range assetIDs {
		args = append(args, id)
	}
	args = append(args, truncateDay(start).Unix(), truncateDay(end).Unix())

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.PriceSeries, len(assetIDs))
	for rows.Next() {
		var (
			id       string
			dateUnix int64
			closePx  float64
		)
		if err := rows.Scan(&id, &dateUnix, &closePx); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		s := out[id]
		s.AssetID = id
		s.Points = append(s.Points, domain.PricePoint{Date: time.Unix(dateUnix, 0).UTC(), Price: closePx})
		out[id] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	if len(out) == 0 {
		return nil, noPricesError(assetIDs, start, end)
	}
	return out, nil
}

// Batch holds fundamentals snapshots and price histories written together
type Batch struct {
	Fundamentals map[time.Time]domain.Fundamentals
	Prices       map[string][]domain.PricePoint
}

// Empty reports whether the batch has nothing to write
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Fundamentals) == 0 && len(b.Prices) == 0)
}

// WriteBatch upserts every snapshot and price history in one transaction.
// Nothing is stored when any row fails.
func (h *HistoryDB) WriteBatch(batch *Batch) error {
	if batch.Empty() {
		return fmt.Errorf("%w: nothing to write", domain.ErrDataUnavailable)
	}

	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		for asOf, records := range batch.Fundamentals {
			if err := upsertFundamentals(tx, asOf, records); err != nil {
				return err
			}
		}
		for assetID, points := range batch.Prices {
			if err := upsertPrices(tx, assetID, points); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.log.Info().
		Int("snapshots", len(batch.Fundamentals)).
		Int("assets", len(batch.Prices)).
		Msg("Stored market data batch")
	return nil
}

func upsertFundamentals(tx *sql.Tx, asOf time.Time, records domain.Fundamentals) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO fundamentals (asset_id, as_of, market_cap, book_to_price)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ts := truncateDay(asOf).Unix()
	for _, r := range records {
		if _, err := stmt.Exec(r.ID, ts, nanToNull(r.MarketCap), nanToNull(r.BookToPriceYield)); err != nil {
			return fmt.Errorf("failed to insert fundamentals for %s: %w", r.ID, err)
		}
	}
	return nil
}

func upsertPrices(tx *sql.Tx, assetID string, points []domain.PricePoint) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_prices (asset_id, date, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(assetID, truncateDay(p.Date).Unix(), p.Price); err != nil {
			return fmt.Errorf("failed to insert price for %s on %s: %w", assetID, p.Date.Format(domain.DateLayout), err)
		}
	}
	return nil
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nanToNull(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
