package main

import (
	"fmt"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand(loadApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(factory appFactory) *cobra.Command {
	root := &cobra.Command{
		Use:          "lpctl",
		Short:        "Inspect and price Raydium LP tokens from Solana account state",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("rpc", "", "Solana RPC URL (default SOLANA_RPC_URL)")
	root.PersistentFlags().String("registry", "", "registry YAML file (default built-in mainnet)")
	root.PersistentFlags().StringP("output", "o", "text", "output format (text, json)")
	root.PersistentFlags().Duration("timeout", 0, "per-request timeout (default LPCTL_REQUEST_TIMEOUT)")

	root.AddCommand(&cobra.Command{
		Use:   "pools",
		Short: "List configured pools",
		Args:  cobra.NoArgs,
		RunE:  withApp(factory, runPools),
	})
	root.AddCommand(&cobra.Command{
		Use:   "price <pool>...",
		Short: "Value LP tokens of one or more pools",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withApp(factory, runPrice),
	})
	root.AddCommand(&cobra.Command{
		Use:   "decode <pool>",
		Short: "Decode a pool's AMM record",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(factory, runDecode),
	})
	root.AddCommand(&cobra.Command{
		Use:   "usd <asset>",
		Short: "Resolve an asset's USD price through its pivot market",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(factory, runUSD),
	})
	root.AddCommand(&cobra.Command{
		Use:   "quote-usd <pool>",
		Short: "Resolve the quote asset USD price of a stable pair pool",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(factory, runQuoteUSD),
	})

	bookCmd := &cobra.Command{
		Use:   "book <market>",
		Short: "Print the resting orders of a serum market",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(factory, runBook),
	}
	bookCmd.Flags().Int("depth", 10, "levels per side, 0 for all")
	root.AddCommand(bookCmd)

	return root
}

func withApp(factory appFactory, run func(*cobra.Command, *app, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, closeApp, err := factory(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = closeApp() }()
		return run(cmd, a, args)
	}
}

func defaultTimeout(flag, fallback time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	if fallback > 0 {
		return fallback
	}
	return 15 * time.Second
}
