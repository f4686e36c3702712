package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/coldbell/lp-pricer/internal/pricing"
)

func runPools(_ *cobra.Command, a *app, _ []string) error {
	names := a.registry.PoolNames()
	if a.format == "json" {
		pools := make([]any, 0, len(names))
		for _, name := range names {
			pools = append(pools, a.registry.Pools[name])
		}
		return a.writeJSON(pools)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tLAYOUT\tBASE\tQUOTE\tMARKET\tSTABLE\tAMM")
	for _, name := range names {
		p := a.registry.Pools[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n", p.Name, p.Layout, p.Base, p.Quote, p.Market, p.StablePair, p.AmmID)
	}
	return tw.Flush()
}

// runPrice values every requested pool. Failures are reported per pool and
// joined into the returned error after the others are printed.
func runPrice(cmd *cobra.Command, a *app, args []string) error {
	valuations := make([]pricing.Valuation, 0, len(args))
	var errs []error
	for _, name := range args {
		ctx, cancel := a.context(cmd.Context())
		v, err := a.engine.Value(ctx, name)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		valuations = append(valuations, v)
	}

	if a.format == "json" {
		valuations, errs = splitFinite(valuations, errs)
		if err := a.writeJSON(valuations); err != nil {
			return err
		}
		return errors.Join(errs...)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tLP_PRICE_USD\tTVL_USD\tBASE_USD\tQUOTE_USD\tBASE_RESERVE\tQUOTE_RESERVE\tLP_SUPPLY")
	for _, v := range valuations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			v.Pool,
			usd(v.LPPrice),
			usd(v.TVL()),
			usd(v.BaseUSD),
			usd(v.QuoteUSD),
			v.BaseReserve,
			v.QuoteReserve,
			v.LPSupply,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// splitFinite moves valuations that JSON cannot encode into errs.
func splitFinite(valuations []pricing.Valuation, errs []error) ([]pricing.Valuation, []error) {
	finite := valuations[:0]
	for _, v := range valuations {
		if field, bad := v.NonFinite(); bad {
			errs = append(errs, fmt.Errorf("%s: %w: %s", v.Pool, errNonFinite, field))
			continue
		}
		finite = append(finite, v)
	}
	return finite, errs
}

func runDecode(cmd *cobra.Command, a *app, args []string) error {
	ctx, cancel := a.context(cmd.Context())
	defer cancel()

	info, err := a.engine.LoadPoolInfo(ctx, args[0])
	if err != nil {
		return err
	}
	return a.writeJSON(info)
}

func runUSD(cmd *cobra.Command, a *app, args []string) error {
	ctx, cancel := a.context(cmd.Context())
	defer cancel()

	price, err := a.engine.Resolver().BaseUSDPrice(ctx, args[0])
	if err != nil {
		return err
	}
	return a.writePrice(args[0], price)
}

func runQuoteUSD(cmd *cobra.Command, a *app, args []string) error {
	ctx, cancel := a.context(cmd.Context())
	defer cancel()

	price, err := a.engine.Resolver().QuoteUSDPrice(ctx, args[0])
	if err != nil {
		return err
	}
	return a.writePrice(args[0], price)
}

func (a *app) writePrice(name string, price float64) error {
	if a.format == "json" {
		return a.writeJSON(map[string]any{"name": name, "usd": price})
	}
	_, err := fmt.Fprintf(a.out, "%s\t%s\n", name, usd(price))
	return err
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var errNonFinite = errors.New("non-finite valuation")

// usd renders a float price with its shortest exact decimal digits.
func usd(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return decimal.NewFromFloat(v).String()
}
