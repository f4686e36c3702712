package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coldbell/lp-pricer/internal/chain"
	"github.com/coldbell/lp-pricer/internal/config"
)

// Resolver prices assets in USD through one pivot market per asset. The
// registry's reference asset is taken to be worth exactly one dollar.
type Resolver struct {
	registry *config.Registry
	loader   venueLoader
	logger   *slog.Logger
}

func NewResolver(source chain.AccountSource, registry *config.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		registry: registry,
		loader:   venueLoader{source: source, programID: registry.SerumProgramID},
		logger:   logger,
	}
}

// BaseUSDPrice returns the best ask of the asset's pivot market, scaled to a
// display price.
func (r *Resolver) BaseUSDPrice(ctx context.Context, symbol string) (float64, error) {
	asset, ok := r.registry.Asset(symbol)
	if !ok {
		return 0, fmt.Errorf("%w: unknown asset %q", ErrUnsupportedPricePair, symbol)
	}
	if asset.Symbol == r.registry.ReferenceAsset {
		return 1, nil
	}
	if asset.PivotMarket == "" {
		return 0, fmt.Errorf("%w: %s has no pivot market", ErrUnsupportedPricePair, asset.Symbol)
	}
	pivot, ok := r.registry.Market(asset.PivotMarket)
	if !ok {
		return 0, fmt.Errorf("%w: pivot market %s for %s", ErrUnsupportedPricePair, asset.PivotMarket, asset.Symbol)
	}
	reference, _ := r.registry.Asset(pivot.Quote)

	market, err := r.loader.loadMarket(ctx, pivot.Address)
	if err != nil {
		return 0, fmt.Errorf("pivot %s: %w", pivot.Name, err)
	}
	book, err := r.loader.loadBook(ctx, market)
	if err != nil {
		return 0, fmt.Errorf("pivot %s: %w", pivot.Name, err)
	}
	ask, _, _, err := scaledBest(book, asset.Decimals, reference.Decimals)
	if err != nil {
		return 0, fmt.Errorf("pivot %s: %w", pivot.Name, err)
	}

	r.logger.Debug("resolved base usd price", "asset", asset.Symbol, "pivot", pivot.Name, "price", ask)
	return ask, nil
}

// QuoteUSDPrice prices the quote asset of a stable pair pool:
// (1 / best ask of the pool market) * base USD price. Other pools are
// rejected.
func (r *Resolver) QuoteUSDPrice(ctx context.Context, poolName string) (float64, error) {
	pool, ok := r.registry.Pool(poolName)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPool, poolName)
	}
	if !pool.StablePair {
		return 0, fmt.Errorf("%w: quote usd price for %s", ErrUnsupportedPricePair, pool.Name)
	}
	market, ok := r.registry.Market(pool.Market)
	if !ok {
		return 0, fmt.Errorf("%w: market %s for %s", ErrUnsupportedPricePair, pool.Market, pool.Name)
	}
	base, _ := r.registry.Asset(pool.Base)
	quote, _ := r.registry.Asset(pool.Quote)

	venue, err := r.loader.loadVenueState(ctx, market.Address, pool.OpenOrders)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	book, err := r.loader.loadBook(ctx, venue.market)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	ask, _, _, err := scaledBest(book, base.Decimals, quote.Decimals)
	if err != nil {
		return 0, fmt.Errorf("pool %s: %w", pool.Name, err)
	}
	baseUSD, err := r.BaseUSDPrice(ctx, pool.Base)
	if err != nil {
		return 0, err
	}
	return (1 / ask) * baseUSD, nil
}
