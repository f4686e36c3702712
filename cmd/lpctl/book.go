package main

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/coldbell/lp-pricer/internal/config"
	"github.com/coldbell/lp-pricer/internal/pricing"
	"github.com/coldbell/lp-pricer/internal/serum"
	"github.com/coldbell/lp-pricer/internal/spl"
)

type bookLevel struct {
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Owner    string  `json:"owner"`
}

type bookView struct {
	Market   string      `json:"market"`
	TickSize float64     `json:"tick_size"`
	Asks     []bookLevel `json:"asks"`
	Bids     []bookLevel `json:"bids"`
}

func runBook(cmd *cobra.Command, a *app, args []string) error {
	depth, err := cmd.Flags().GetInt("depth")
	if err != nil {
		return err
	}
	market, ok := a.registry.Market(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown market %q", pricing.ErrUnsupportedPricePair, args[0])
	}

	ctx, cancel := a.context(cmd.Context())
	defer cancel()
	view, err := loadBookView(ctx, a, market, depth)
	if err != nil {
		return err
	}

	if a.format == "json" {
		return a.writeJSON(view)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\ttick %s\n", view.Market, usd(view.TickSize))
	fmt.Fprintln(tw, "SIDE\tPRICE\tQUANTITY\tOWNER")
	for _, level := range slices.Concat(view.Asks, view.Bids) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", level.Side, usd(level.Price), usd(level.Quantity), level.Owner)
	}
	return tw.Flush()
}

// loadBookView reads both book sides of a market. Asks are listed best
// (lowest) first and bids best (highest) first.
func loadBookView(ctx context.Context, a *app, market config.Market, depth int) (bookView, error) {
	base, _ := a.registry.Asset(market.Base)
	quote, _ := a.registry.Asset(market.Quote)
	programID := a.registry.SerumProgramID

	acc, err := a.source.GetAccount(ctx, market.Address)
	if err != nil {
		return bookView{}, fmt.Errorf("fetch market %s: %w", market.Name, err)
	}
	if acc == nil {
		return bookView{}, fmt.Errorf("%w: %s", pricing.ErrMarketAccountMissing, market.Address)
	}
	m, err := serum.LoadMarket(market.Address, acc.Owner, acc.Data, programID)
	if err != nil {
		return bookView{}, err
	}

	sides, err := a.source.GetMultipleAccounts(ctx, []solana.PublicKey{m.Asks, m.Bids})
	if err != nil {
		return bookView{}, fmt.Errorf("fetch order book: %w", err)
	}
	if len(sides) != 2 {
		return bookView{}, fmt.Errorf("%w: order book batch returned %d of 2", pricing.ErrInsufficientAccounts, len(sides))
	}
	if sides[0] == nil {
		return bookView{}, fmt.Errorf("%w: %s", pricing.ErrAsksAccountMissing, m.Asks)
	}
	if sides[1] == nil {
		return bookView{}, fmt.Errorf("%w: %s", pricing.ErrBidsAccountMissing, m.Bids)
	}
	asks, err := serum.LoadSlab(m.Asks, sides[0].Owner, sides[0].Data, programID, serum.FlagAsks)
	if err != nil {
		return bookView{}, fmt.Errorf("load asks: %w", err)
	}
	bids, err := serum.LoadSlab(m.Bids, sides[1].Owner, sides[1].Data, programID, serum.FlagBids)
	if err != nil {
		return bookView{}, fmt.Errorf("load bids: %w", err)
	}

	tick := pricing.TickSize(m.CoinLotSize, m.PcLotSize, base.Decimals, quote.Decimals)
	level := func(side string, n serum.SlabNode) bookLevel {
		return bookLevel{
			Side:     side,
			Price:    float64(n.Price()) * tick,
			Quantity: spl.UIAmount(n.Quantity*m.CoinLotSize, base.Decimals),
			Owner:    n.Owner.String(),
		}
	}

	askLeaves := asks.Leaves()
	bidLeaves := bids.Leaves()
	slices.Reverse(bidLeaves)

	view := bookView{Market: market.Name, TickSize: tick}
	for i, n := range askLeaves {
		if depth > 0 && i >= depth {
			break
		}
		view.Asks = append(view.Asks, level("ask", n))
	}
	for i, n := range bidLeaves {
		if depth > 0 && i >= depth {
			break
		}
		view.Bids = append(view.Bids, level("bid", n))
	}
	return view, nil
}
