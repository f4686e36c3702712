package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/lp-pricer/internal/amm"
	"github.com/coldbell/lp-pricer/internal/chain"
	"github.com/coldbell/lp-pricer/internal/config"
	"github.com/coldbell/lp-pricer/internal/spl"
)

// Valuation is the full breakdown behind one LP token price.
type Valuation struct {
	Pool          string      `json:"pool"`
	Layout        amm.Version `json:"layout"`
	TickSize      float64     `json:"tick_size"`
	BestAsk       float64     `json:"best_ask"`
	BestBid       float64     `json:"best_bid"`
	BaseUSD       float64     `json:"base_usd"`
	QuoteUSD      float64     `json:"quote_usd"`
	BaseReserve   uint64      `json:"base_reserve"`
	QuoteReserve  uint64      `json:"quote_reserve"`
	BaseValueUSD  float64     `json:"base_value_usd"`
	QuoteValueUSD float64     `json:"quote_value_usd"`
	LPSupply      uint64      `json:"lp_supply"`
	LPDecimals    uint8       `json:"lp_decimals"`
	LPPrice       float64     `json:"lp_price"`
	ComputedAt    time.Time   `json:"computed_at"`
}

// TVL is the USD value of both adjusted reserves.
func (v Valuation) TVL() float64 {
	return v.BaseValueUSD + v.QuoteValueUSD
}

// NonFinite names the first float field holding NaN or Inf, as happens when
// the LP supply is zero.
func (v Valuation) NonFinite() (string, bool) {
	fields := []struct {
		name  string
		value float64
	}{
		{"lp_price", v.LPPrice},
		{"base_value_usd", v.BaseValueUSD},
		{"quote_value_usd", v.QuoteValueUSD},
		{"base_usd", v.BaseUSD},
		{"quote_usd", v.QuoteUSD},
		{"best_ask", v.BestAsk},
		{"best_bid", v.BestBid},
		{"tick_size", v.TickSize},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return f.name, true
		}
	}
	return "", false
}

// Engine values LP tokens from live account state. It holds no state
// between calls and is safe for concurrent use.
type Engine struct {
	registry *config.Registry
	source   chain.AccountSource
	loader   venueLoader
	resolver *Resolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(source chain.AccountSource, registry *config.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		source:   source,
		loader:   venueLoader{source: source, programID: registry.SerumProgramID},
		resolver: NewResolver(source, registry, logger),
		logger:   logger,
		now:      time.Now,
	}
}

func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

func (e *Engine) Registry() *config.Registry {
	return e.registry
}

func (e *Engine) LPTokenPrice(ctx context.Context, poolName string) (float64, error) {
	v, err := e.Value(ctx, poolName)
	if err != nil {
		return 0, err
	}
	return v.LPPrice, nil
}

// LoadPoolInfo reads and decodes the pool's AMM record with its configured
// layout version.
func (e *Engine) LoadPoolInfo(ctx context.Context, poolName string) (amm.PoolInfo, error) {
	pool, ok := e.registry.Pool(poolName)
	if !ok {
		return amm.PoolInfo{}, fmt.Errorf("%w: %q", ErrUnknownPool, poolName)
	}
	return e.loadPoolInfo(ctx, pool)
}

func (e *Engine) loadPoolInfo(ctx context.Context, pool config.Pool) (amm.PoolInfo, error) {
	acc, err := e.source.GetAccount(ctx, pool.AmmID)
	if err != nil {
		return amm.PoolInfo{}, fmt.Errorf("fetch amm %s: %w", pool.AmmID, err)
	}
	if acc == nil {
		return amm.PoolInfo{}, fmt.Errorf("%w: %s (%s)", ErrAmmAccountMissing, pool.Name, pool.AmmID)
	}
	info, err := amm.Decode(acc.Data, pool.Layout)
	if err != nil {
		return amm.PoolInfo{}, fmt.Errorf("decode amm %s: %w", pool.Name, err)
	}
	return info, nil
}

func (e *Engine) Value(ctx context.Context, poolName string) (Valuation, error) {
	pool, ok := e.registry.Pool(poolName)
	if !ok {
		return Valuation{}, fmt.Errorf("%w: %q", ErrUnknownPool, poolName)
	}
	market, ok := e.registry.Market(pool.Market)
	if !ok {
		return Valuation{}, fmt.Errorf("%w: market %s for %s", ErrUnsupportedPricePair, pool.Market, pool.Name)
	}
	base, _ := e.registry.Asset(pool.Base)
	quote, _ := e.registry.Asset(pool.Quote)

	venue, err := e.loader.loadVenueState(ctx, market.Address, pool.OpenOrders)
	if err != nil {
		return Valuation{}, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	book, err := e.loader.loadBook(ctx, venue.market)
	if err != nil {
		return Valuation{}, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	info, err := e.loadPoolInfo(ctx, pool)
	if err != nil {
		return Valuation{}, err
	}

	ask, bid, tick, err := scaledBest(book, base.Decimals, quote.Decimals)
	if err != nil {
		return Valuation{}, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	baseUSD, err := e.resolver.BaseUSDPrice(ctx, pool.Base)
	if err != nil {
		return Valuation{}, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	quoteUSD := (1 / ask) * baseUSD

	balances, err := e.loadBalances(ctx, info)
	if err != nil {
		return Valuation{}, fmt.Errorf("pool %s: %w", pool.Name, err)
	}

	quoteReserve, err := adjustedReserve(balances.pc, venue.openOrders.NativePcTotal, info.NeedTakePnlPc)
	if err != nil {
		return Valuation{}, fmt.Errorf("pool %s quote reserve: %w", pool.Name, err)
	}
	baseReserve, err := adjustedReserve(balances.coin, venue.openOrders.NativeCoinTotal, info.NeedTakePnlCoin)
	if err != nil {
		return Valuation{}, fmt.Errorf("pool %s base reserve: %w", pool.Name, err)
	}

	v := Valuation{
		Pool:          pool.Name,
		Layout:        pool.Layout,
		TickSize:      tick,
		BestAsk:       ask,
		BestBid:       bid,
		BaseUSD:       baseUSD,
		QuoteUSD:      quoteUSD,
		BaseReserve:   baseReserve,
		QuoteReserve:  quoteReserve,
		BaseValueUSD:  usdDisplayValue(baseReserve, baseUSD, base.Decimals),
		QuoteValueUSD: usdDisplayValue(quoteReserve, quoteUSD, quote.Decimals),
		LPSupply:      balances.lpSupply,
		LPDecimals:    balances.lpDecimals,
		ComputedAt:    e.now().UTC(),
	}
	v.LPPrice = v.TVL() / spl.UIAmount(v.LPSupply, v.LPDecimals)

	e.logger.Debug("valued lp token",
		"pool", v.Pool,
		"layout", v.Layout,
		"best_ask", v.BestAsk,
		"best_bid", v.BestBid,
		"base_usd", v.BaseUSD,
		"quote_usd", v.QuoteUSD,
		"base_reserve", v.BaseReserve,
		"quote_reserve", v.QuoteReserve,
		"lp_supply", v.LPSupply,
		"lp_price", v.LPPrice,
	)
	return v, nil
}

type poolBalances struct {
	coin       uint64
	pc         uint64
	lpSupply   uint64
	lpDecimals uint8
}

// loadBalances fetches [lp mint, pool coin account, pool pc account] in one
// round trip.
func (e *Engine) loadBalances(ctx context.Context, info amm.PoolInfo) (poolBalances, error) {
	keys := []solana.PublicKey{info.LpMint, info.PoolCoinTokenAccount, info.PoolPcTokenAccount}
	roles := []string{"lp mint", "pool coin token account", "pool pc token account"}

	accounts, err := e.source.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return poolBalances{}, fmt.Errorf("fetch token accounts: %w", err)
	}
	if len(accounts) < len(keys) {
		return poolBalances{}, fmt.Errorf("%w: token batch returned %d of %d", ErrInsufficientAccounts, len(accounts), len(keys))
	}
	for i, acc := range accounts[:len(keys)] {
		if acc == nil {
			return poolBalances{}, fmt.Errorf("%w: %s %s", ErrTokenAccountMissing, roles[i], keys[i])
		}
	}

	mint, err := spl.DecodeMint(accounts[0].Data)
	if err != nil {
		return poolBalances{}, fmt.Errorf("decode %s %s: %w", roles[0], keys[0], err)
	}
	coin, err := spl.DecodeTokenAccount(accounts[1].Data)
	if err != nil {
		return poolBalances{}, fmt.Errorf("decode %s %s: %w", roles[1], keys[1], err)
	}
	pc, err := spl.DecodeTokenAccount(accounts[2].Data)
	if err != nil {
		return poolBalances{}, fmt.Errorf("decode %s %s: %w", roles[2], keys[2], err)
	}
	return poolBalances{
		coin:       coin.Amount,
		pc:         pc.Amount,
		lpSupply:   mint.Supply,
		lpDecimals: mint.Decimals,
	}, nil
}

// adjustedReserve is pool balance plus resting open-order total minus the
// pnl the pool has yet to take.
func adjustedReserve(poolBalance, openOrdersTotal, needTakePnl uint64) (uint64, error) {
	sum, carry := bits.Add64(poolBalance, openOrdersTotal, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrReserveOverflow, poolBalance, openOrdersTotal)
	}
	if needTakePnl > sum {
		return 0, fmt.Errorf("%w: need_take_pnl %d > %d", ErrReserveUnderflow, needTakePnl, sum)
	}
	return sum - needTakePnl, nil
}

// usdDisplayValue truncates reserve*price to an integer number of base units
// before scaling by decimals.
func usdDisplayValue(reserve uint64, usdPrice float64, decimals uint8) float64 {
	usd := uint64(float64(reserve) * usdPrice)
	return spl.UIAmount(usd, decimals)
}
