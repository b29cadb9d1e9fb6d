package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lp-hedge-bot/internal/app"
	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:   "lph",
	Short: "Delta hedging for a BASE/USDT concentrated liquidity position",
	Long: `lph monitors a Uniswap V3 style LP position against a Binance USDT-M
perpetual short, rebalances the short when net BASE exposure drifts, and
reports value and drawdown over Telegram.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring and hedging loop",
	RunE:  runMonitor,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "internal/config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "optional .env file with secrets")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, then the YAML config, and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnv(envPath); err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", envPath, err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log), nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", configPath))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("app terminated", zap.Error(err))
		return err
	}
	return nil
}
