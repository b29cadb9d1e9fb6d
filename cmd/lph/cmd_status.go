package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"lp-hedge-bot/internal/app"
	"lp-hedge-bot/internal/binance/rest"
	"lp-hedge-bot/internal/chain"
	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/uniswap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read both legs once and print the report; never places orders",
	RunE:  runStatus,
}

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List the owner's LP positions at the latest block",
	RunE:  runPositions,
}

func init() {
	rootCmd.AddCommand(statusCmd, positionsCmd)
}

func dialChain(ctx context.Context, cfg *config.Config) (*chain.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Chain.Timeout)
	defer cancel()
	client, err := chain.New(dialCtx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	chainClient, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	manager := app.NewPositionManager(cfg.Chain, chainClient, log)
	monitor := app.NewWithDeps(cfg, log, app.Deps{
		AMM:     app.NewAmmSource(cfg.Chain, manager, log),
		Futures: rest.New(app.BinanceOptions(cfg.Binance), log),
	})
	report, err := monitor.StatusReport(ctx)
	if err != nil {
		return err
	}
	fmt.Println(report)
	return nil
}

func runPositions(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	chainClient, err := dialChain(ctx, cfg)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	manager := app.NewPositionManager(cfg.Chain, chainClient, log)
	owner := common.HexToAddress(strings.TrimSpace(cfg.Chain.Owner))
	positions, block, err := manager.Positions(ctx, owner)
	if err != nil {
		return err
	}
	fmt.Printf("owner %s, block %d, %d position(s)\n", owner.Hex(), block, len(positions))
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN_ID\tTOKEN0\tTOKEN1\tFEE\tTICKS\tLIQUIDITY\tWITHDRAW0\tWITHDRAW1\tFEES0\tFEES1")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t[%d,%d]\t%s\t%s\t%s\t%s\t%s\n",
			p.TokenID, p.Token0.Hex(), p.Token1.Hex(), p.Fee, p.TickLower, p.TickUpper,
			p.Liquidity, p.Withdrawable0, p.Withdrawable1, p.Collectable0, p.Collectable1)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	holding, matched, err := uniswap.AggregateHolding(positions, block, app.ChainPair(cfg.Chain), cfg.Chain.BaseDecimals, cfg.Chain.USDTDecimals)
	if err != nil {
		log.Warn("no position matches the configured pair", zap.Error(err))
		return nil
	}
	fmt.Printf("%d matching: %s %s + %s USDT, fees %s %s + %s USDT\n",
		matched,
		holding.BaseAmount, cfg.Strategy.BaseAsset, holding.USDTAmount,
		holding.CollectableBase, cfg.Strategy.BaseAsset, holding.CollectableUSDT)
	return nil
}
