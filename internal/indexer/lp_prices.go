package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coldbell/lp-pricer/internal/pricing"
)

var ErrNonFinitePrice = errors.New("non-finite price")

// PriceTick is one stored valuation. Prices are kept as decimals so the
// database and the API render the same digits.
type PriceTick struct {
	Pool         string          `json:"pool"`
	Layout       string          `json:"layout"`
	LPPrice      decimal.Decimal `json:"lp_price"`
	TVL          decimal.Decimal `json:"tvl"`
	BaseUSD      decimal.Decimal `json:"base_usd"`
	QuoteUSD     decimal.Decimal `json:"quote_usd"`
	BaseReserve  uint64          `json:"base_reserve"`
	QuoteReserve uint64          `json:"quote_reserve"`
	LPSupply     uint64          `json:"lp_supply"`
	LPDecimals   uint8           `json:"lp_decimals"`
	ComputedAt   int64           `json:"computed_at"`
}

type CandleRecord struct {
	TS      int64           `json:"ts"`
	Open    decimal.Decimal `json:"open"`
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Close   decimal.Decimal `json:"close"`
	Samples int64           `json:"samples"`
}

// TickFromValuation converts a valuation for storage. NaN and infinite
// prices, which a zero LP supply produces, are rejected.
func TickFromValuation(v pricing.Valuation) (PriceTick, error) {
	values := map[string]float64{
		"lp_price":  v.LPPrice,
		"tvl":       v.TVL(),
		"base_usd":  v.BaseUSD,
		"quote_usd": v.QuoteUSD,
	}
	for field, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return PriceTick{}, fmt.Errorf("%w: %s %s=%v", ErrNonFinitePrice, v.Pool, field, value)
		}
	}
	computedAt := v.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now()
	}
	return PriceTick{
		Pool:         v.Pool,
		Layout:       v.Layout.String(),
		LPPrice:      decimal.NewFromFloat(v.LPPrice),
		TVL:          decimal.NewFromFloat(v.TVL()),
		BaseUSD:      decimal.NewFromFloat(v.BaseUSD),
		QuoteUSD:     decimal.NewFromFloat(v.QuoteUSD),
		BaseReserve:  v.BaseReserve,
		QuoteReserve: v.QuoteReserve,
		LPSupply:     v.LPSupply,
		LPDecimals:   v.LPDecimals,
		ComputedAt:   computedAt.Unix(),
	}, nil
}

// InsertTicks writes all ticks in one transaction. A tick for a pool and
// second already stored is skipped.
func (s *Store) InsertTicks(ctx context.Context, ticks []PriceTick) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, tick := range ticks {
			if err := insertTickTx(ctx, tx, tick); err != nil {
				return fmt.Errorf("insert tick for %s: %w", tick.Pool, err)
			}
		}
		return nil
	})
}

func insertTickTx(ctx context.Context, tx *Tx, tick PriceTick) error {
	_, err := tx.ExecContext(
		ctx,
		`
		INSERT INTO lp_price_ticks (
			pool, layout, lp_price, tvl, base_usd, quote_usd,
			base_reserve, quote_reserve, lp_supply, lp_decimals, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pool, computed_at) DO NOTHING
		`,
		tick.Pool,
		tick.Layout,
		tick.LPPrice,
		tick.TVL,
		tick.BaseUSD,
		tick.QuoteUSD,
		strconv.FormatUint(tick.BaseReserve, 10),
		strconv.FormatUint(tick.QuoteReserve, 10),
		strconv.FormatUint(tick.LPSupply, 10),
		int64(tick.LPDecimals),
		tick.ComputedAt,
	)
	return err
}

const tickColumns = `pool, layout, lp_price, tvl, base_usd, quote_usd,
	base_reserve, quote_reserve, lp_supply, lp_decimals, computed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTick(row rowScanner) (PriceTick, error) {
	var item PriceTick
	var baseReserve, quoteReserve, lpSupply string
	var lpDecimals int64
	if err := row.Scan(
		&item.Pool,
		&item.Layout,
		&item.LPPrice,
		&item.TVL,
		&item.BaseUSD,
		&item.QuoteUSD,
		&baseReserve,
		&quoteReserve,
		&lpSupply,
		&lpDecimals,
		&item.ComputedAt,
	); err != nil {
		return PriceTick{}, err
	}
	var err error
	if item.BaseReserve, err = parseStoredUint(baseReserve); err != nil {
		return PriceTick{}, fmt.Errorf("base_reserve: %w", err)
	}
	if item.QuoteReserve, err = parseStoredUint(quoteReserve); err != nil {
		return PriceTick{}, fmt.Errorf("quote_reserve: %w", err)
	}
	if item.LPSupply, err = parseStoredUint(lpSupply); err != nil {
		return PriceTick{}, fmt.Errorf("lp_supply: %w", err)
	}
	item.LPDecimals = uint8(lpDecimals)
	return item, nil
}

func parseStoredUint(raw string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
}

func (s *Store) LatestTick(ctx context.Context, pool string) (PriceTick, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+tickColumns+`
		FROM lp_price_ticks
		WHERE pool = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT 1`,
		pool,
	)
	item, err := scanTick(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PriceTick{}, ErrNotFound
		}
		return PriceTick{}, err
	}
	return item, nil
}

// LatestTicks returns the newest tick of every pool, ordered by pool.
func (s *Store) LatestTicks(ctx context.Context) ([]PriceTick, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT ON (pool) `+tickColumns+`
		FROM lp_price_ticks
		ORDER BY pool ASC, computed_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTicks(rows, 16)
}

// History returns up to limit ticks of one pool, newest first.
func (s *Store) History(ctx context.Context, pool string, limit int) ([]PriceTick, error) {
	limit, _ = normalizePagination(limit, 0)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+tickColumns+`
		FROM lp_price_ticks
		WHERE pool = ?
		ORDER BY computed_at DESC, id DESC
		LIMIT ?`,
		pool,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTicks(rows, limit)
}

func collectTicks(rows *sql.Rows, capacity int) ([]PriceTick, error) {
	items := make([]PriceTick, 0, capacity)
	for rows.Next() {
		item, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Candles buckets the pool's LP price into OHLC bars of intervalSec seconds,
// oldest first.
func (s *Store) Candles(ctx context.Context, pool string, intervalSec int64, limit int) ([]CandleRecord, error) {
	if intervalSec <= 0 {
		intervalSec = 300
	}
	limit, _ = normalizePagination(limit, 0)
	fromUnix := time.Now().Unix() - int64(limit)*intervalSec

	rows, err := s.db.QueryContext(
		ctx,
		`
		WITH bucketed AS (
			SELECT
				(computed_at / ?) * ? AS bucket_ts,
				lp_price,
				ROW_NUMBER() OVER (
					PARTITION BY (computed_at / ?) * ?
					ORDER BY computed_at ASC, id ASC
				) AS rn_open,
				ROW_NUMBER() OVER (
					PARTITION BY (computed_at / ?) * ?
					ORDER BY computed_at DESC, id DESC
				) AS rn_close
			FROM lp_price_ticks
			WHERE pool = ?
			  AND computed_at >= ?
		)
		SELECT
			bucket_ts,
			MAX(CASE WHEN rn_open = 1 THEN lp_price END) AS open,
			MAX(lp_price) AS high,
			MIN(lp_price) AS low,
			MAX(CASE WHEN rn_close = 1 THEN lp_price END) AS close,
			COUNT(*) AS samples
		FROM bucketed
		GROUP BY bucket_ts
		ORDER BY bucket_ts DESC
		LIMIT ?
		`,
		intervalSec,
		intervalSec,
		intervalSec,
		intervalSec,
		intervalSec,
		intervalSec,
		pool,
		fromUnix,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candles := make([]CandleRecord, 0, limit)
	for rows.Next() {
		var item CandleRecord
		if err := rows.Scan(&item.TS, &item.Open, &item.High, &item.Low, &item.Close, &item.Samples); err != nil {
			return nil, err
		}
		candles = append(candles, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for left, right := 0, len(candles)-1; left < right; left, right = left+1, right-1 {
		candles[left], candles[right] = candles[right], candles[left]
	}
	return candles, nil
}
