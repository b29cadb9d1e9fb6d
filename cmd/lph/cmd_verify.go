package main

import (
	"errors"
	"fmt"
	"strings"

	"lp-hedge-bot/internal/app"
	"lp-hedge-bot/internal/binance/rest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check config, RPC and Binance connectivity without trading",
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	var failed []string
	check := func(name string, err error, detail string) {
		if err != nil {
			failed = append(failed, name)
			fmt.Printf("FAIL %-10s %v\n", name, err)
			return
		}
		fmt.Printf("ok   %-10s %s\n", name, detail)
	}
	check("config", nil, configPath)

	chainClient, err := dialChain(ctx, cfg)
	check("rpc", err, cfg.Chain.RPCURL)
	if err == nil {
		defer chainClient.Close()
		chainID, err := chainClient.ChainID(ctx)
		var block uint64
		if err == nil {
			block, err = chainClient.LatestBlockNumber(ctx)
		}
		check("chain", err, fmt.Sprintf("chain id %s, block %d", chainID, block))
		manager := app.NewPositionManager(cfg.Chain, chainClient, log)
		holding, err := app.NewAmmSource(cfg.Chain, manager, log).Holding(ctx)
		check("lp", err, fmt.Sprintf("%s %s + %s USDT at block %d via %s",
			holding.BaseAmount, cfg.Strategy.BaseAsset, holding.USDTAmount, holding.BlockNumber, manager.Address().Hex()))
	}

	client := rest.New(app.BinanceOptions(cfg.Binance), log)
	ticker, err := client.BookTicker(ctx, cfg.Strategy.Symbol)
	check("book", err, fmt.Sprintf("%s bid %s ask %s", ticker.Symbol, ticker.BidPrice, ticker.AskPrice))
	if strings.TrimSpace(cfg.Binance.APIKey) != "" {
		holding, err := client.FuturesHolding(ctx, cfg.Strategy.Symbol)
		check("futures", err, fmt.Sprintf("position %s mark %s", holding.PositionAmt, holding.MarkPrice))
	} else {
		fmt.Printf("skip %-10s no api key\n", "futures")
	}
	fmt.Printf("owner %s\n", common.HexToAddress(strings.TrimSpace(cfg.Chain.Owner)).Hex())

	if len(failed) > 0 {
		return errors.New("verify failed: " + strings.Join(failed, ", "))
	}
	return nil
}
