package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"lp-hedge-bot/internal/app"
	"lp-hedge-bot/internal/binance/rest"
	"lp-hedge-bot/internal/market"

	"github.com/spf13/cobra"
)

var fundingLimit int

var fundingCmd = &cobra.Command{
	Use:   "funding [symbol]",
	Short: "Show recent funding rates and what they pay the hedge",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFunding,
}

func init() {
	fundingCmd.Flags().IntVar(&fundingLimit, "limit", 21, "number of funding intervals to fetch")
	rootCmd.AddCommand(fundingCmd)
}

func runFunding(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	symbol := cfg.Strategy.Symbol
	if len(args) == 1 {
		symbol = strings.ToUpper(strings.TrimSpace(args[0]))
	}
	ctx := cmd.Context()
	client := rest.New(app.BinanceOptions(cfg.Binance), log)
	rates, err := client.FundingRates(ctx, symbol, fundingLimit)
	if err != nil {
		return err
	}
	samples := make([]market.FundingSample, 0, len(rates))
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRATE\tMARK")
	for _, r := range rates {
		ts := time.UnixMilli(r.FundingTime).UTC()
		samples = append(samples, market.FundingSample{Time: ts, Rate: r.FundingRate})
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ts.Format(time.RFC3339), r.FundingRate, r.MarkPrice)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	summary := market.SummarizeFunding(samples)
	fmt.Printf("%s: %d samples, latest %s, average %s, annualized %s%%, shorts collect: %t\n",
		symbol, summary.Samples, summary.Latest, summary.Average,
		summary.AnnualizedAPR.Shift(2).StringFixed(2), summary.ShortCollected)

	if cfg.Binance.APIKey == "" || symbol != cfg.Strategy.Symbol {
		return nil
	}
	holding, err := client.FuturesHolding(ctx, symbol)
	if errors.Is(err, rest.ErrNoPosition) {
		return nil
	}
	if err != nil {
		return err
	}
	payment := market.HedgeFunding(holding.PositionAmt, holding.MarkPrice, summary.Latest)
	fmt.Printf("position %s at mark %s: %s USDT per interval at the latest rate\n",
		holding.PositionAmt, holding.MarkPrice, payment.StringFixed(4))
	return nil
}
