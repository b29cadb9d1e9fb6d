package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
chain:
  rpc_url: https://bsc-dataseed.example
  position_manager: "0x7b8A01B39D58278b5DE7e48c8449c9f4F5170613"
  owner: "0x00000000000000000000000000000000000000aa"
  base_token: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
  usdt_token: "0x55d398326f99059fF775485246999027B3197955"
strategy:
  symbol: bnbusdt
  ratio_threshold: 0.05
  delta_threshold: "0.1"
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Strategy.Symbol != "BNBUSDT" {
		t.Fatalf("expected upper-cased symbol, got %q", cfg.Strategy.Symbol)
	}
	if cfg.Strategy.BaseAsset != "BNB" {
		t.Fatalf("expected base asset BNB, got %q", cfg.Strategy.BaseAsset)
	}
	if cfg.Strategy.Interval != 90*time.Second {
		t.Fatalf("expected 90s interval, got %v", cfg.Strategy.Interval)
	}
	if cfg.Strategy.RatioThreshold.String() != "0.05" || cfg.Strategy.DeltaThreshold.String() != "0.1" {
		t.Fatalf("unexpected thresholds n=%s m=%s", cfg.Strategy.RatioThreshold, cfg.Strategy.DeltaThreshold)
	}
	if cfg.Chain.BaseDecimals != 18 || cfg.Chain.USDTDecimals != 18 {
		t.Fatalf("expected 18 decimals, got %d/%d", cfg.Chain.BaseDecimals, cfg.Chain.USDTDecimals)
	}
	if cfg.Binance.BaseURL != "https://fapi.binance.com" || cfg.Binance.RecvWindow != 5*time.Second ||
		cfg.Binance.OrderAttempts != 5 || cfg.Binance.OrderBackoff != 200*time.Millisecond {
		t.Fatalf("unexpected binance defaults %+v", cfg.Binance)
	}
	if cfg.Notify.DrawdownMode != "absolute" || cfg.Notify.Interval != time.Hour {
		t.Fatalf("unexpected notify defaults %+v", cfg.Notify)
	}
	if cfg.Log.Encoding != "json" {
		t.Fatalf("expected json encoding, got %q", cfg.Log.Encoding)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("LPH_BINANCE_API_KEY", "env-key")
	t.Setenv("LPH_BINANCE_API_SECRET", "env-secret")
	t.Setenv("LPH_TELEGRAM_TOKEN", "tg")
	t.Setenv("LPH_RPC_URL", "https://rpc.from.env")
	cfg, err := Parse([]byte(minimalYAML + "  hedge_enabled: true\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Binance.APIKey != "env-key" || cfg.Binance.APISecret != "env-secret" {
		t.Fatalf("expected env credentials, got %+v", cfg.Binance)
	}
	if cfg.Telegram.Token != "tg" {
		t.Fatalf("expected env telegram token, got %q", cfg.Telegram.Token)
	}
	if cfg.Chain.RPCURL != "https://rpc.from.env" {
		t.Fatalf("expected env rpc url, got %q", cfg.Chain.RPCURL)
	}
}

func TestValidateRejects(t *testing.T) {
	unsetEnv(t, "LPH_BINANCE_API_KEY")
	unsetEnv(t, "LPH_BINANCE_API_SECRET")
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing ratio threshold",
			yaml:    strings.Replace(minimalYAML, "  ratio_threshold: 0.05\n", "", 1),
			wantErr: "ratio_threshold",
		},
		{
			name:    "zero delta threshold",
			yaml:    strings.Replace(minimalYAML, `delta_threshold: "0.1"`, "delta_threshold: 0", 1),
			wantErr: "delta_threshold",
		},
		{
			name:    "bad owner",
			yaml:    strings.Replace(minimalYAML, `owner: "0x00000000000000000000000000000000000000aa"`, "owner: nope", 1),
			wantErr: "chain.owner",
		},
		{
			name:    "same tokens",
			yaml:    strings.Replace(minimalYAML, "0x55d398326f99059fF775485246999027B3197955", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", 1),
			wantErr: "must differ",
		},
		{
			name:    "drawdown mode",
			yaml:    minimalYAML + "notify:\n  drawdown_mode: relative\n",
			wantErr: "drawdown_mode",
		},
		{
			name:    "hedging without credentials",
			yaml:    minimalYAML + "  hedge_enabled: true\n",
			wantErr: "api key",
		},
		{
			name:    "operator without telegram",
			yaml:    minimalYAML + "telegram:\n  operator_enabled: true\n",
			wantErr: "operator_enabled",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDryRunHedgingNeedsNoCredentials(t *testing.T) {
	unsetEnv(t, "LPH_BINANCE_API_KEY")
	unsetEnv(t, "LPH_BINANCE_API_SECRET")
	if _, err := Parse([]byte(minimalYAML + "  hedge_enabled: true\n  dry_run: true\n")); err != nil {
		t.Fatalf("expected dry run config to be valid, got %v", err)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	unsetEnv(t, "LPH_BINANCE_API_KEY")
	unsetEnv(t, "LPH_BINANCE_API_SECRET")
	cfg, err := Load(filepath.Join(".", "config.example.yaml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	if cfg.Strategy.Symbol != "BNBUSDT" || !cfg.Strategy.DryRun {
		t.Fatalf("unexpected example strategy %+v", cfg.Strategy)
	}
	if cfg.Notify.DrawdownMode != "percent" || cfg.Notify.DrawdownThreshold.String() != "0.05" {
		t.Fatalf("unexpected example notify %+v", cfg.Notify)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
