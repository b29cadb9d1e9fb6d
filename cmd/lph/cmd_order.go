package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lp-hedge-bot/internal/app"
	"lp-hedge-bot/internal/binance/rest"
	"lp-hedge-bot/internal/exec"
	"lp-hedge-bot/internal/state/sqlite"
	"lp-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var orderDryRun bool

var openSellCmd = &cobra.Command{
	Use:   "open-sell <quantity>",
	Short: "Add to the short: SELL LIMIT at the best ask",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManualHedge(cmd, strategy.ActionOpenSell, args[0])
	},
}

var closeSellCmd = &cobra.Command{
	Use:   "close-sell <quantity>",
	Short: "Reduce the short: BUY LIMIT reduce-only at the best bid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManualHedge(cmd, strategy.ActionCloseSell, args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{openSellCmd, closeSellCmd} {
		c.Flags().BoolVar(&orderDryRun, "dry-run", false, "print the priced order without sending it")
		rootCmd.AddCommand(c)
	}
}

func runManualHedge(cmd *cobra.Command, kind strategy.ActionKind, rawQty string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	qty, err := decimal.NewFromString(rawQty)
	if err != nil {
		return fmt.Errorf("quantity %q: %w", rawQty, err)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", qty)
	}
	action := strategy.HedgeAction{
		Kind:     kind,
		Symbol:   cfg.Strategy.Symbol,
		Quantity: qty.String(),
	}
	client := rest.New(app.BinanceOptions(cfg.Binance), log)
	ctx := cmd.Context()

	if orderDryRun {
		ticker, err := client.BookTicker(ctx, action.Symbol)
		if err != nil {
			return err
		}
		cloid := fmt.Sprintf("lph-manual-%d", time.Now().UnixMilli())
		order, _, err := exec.BuildOrder(action, exec.Quote{Bid: ticker.BidPrice, Ask: ticker.AskPrice}, cloid)
		if err != nil {
			return err
		}
		fmt.Printf("dry run: %s %s %s @ %s reduce_only=%t cloid=%s\n",
			order.Side, order.Quantity, order.Symbol, order.Price, order.ReduceOnly, order.ClientOrderID)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	monitor := app.NewWithDeps(cfg, log, app.Deps{
		Store:  store,
		Hedger: app.NewHedger(cfg.Binance, client, store, log),
	})
	rec, err := monitor.ManualHedge(ctx, action)
	if err != nil {
		return err
	}
	fmt.Printf("placed %s %s %s @ %s, order %s (%s)\n",
		rec.Side, rec.Quantity, rec.Symbol, rec.Price, rec.OrderID, rec.ClientOrderID)
	return nil
}
