package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Chain     ChainConfig     `yaml:"chain"`
	Binance   BinanceConfig   `yaml:"binance"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Notify    NotifyConfig    `yaml:"notify"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type ChainConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	PositionManager string        `yaml:"position_manager"`
	Owner           string        `yaml:"owner"`
	BaseToken       string        `yaml:"base_token"`
	USDTToken       string        `yaml:"usdt_token"`
	BaseDecimals    int32         `yaml:"base_decimals"`
	USDTDecimals    int32         `yaml:"usdt_decimals"`
	Timeout         time.Duration `yaml:"timeout"`
}

type BinanceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	WSURL             string        `yaml:"ws_url"`
	APIKey            string        `yaml:"api_key"`
	APISecret         string        `yaml:"api_secret"`
	RecvWindow        time.Duration `yaml:"recv_window"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	MarkStream        bool          `yaml:"mark_stream"`
	// OrderAttempts and OrderBackoff bound retries of order requests.
	OrderAttempts int           `yaml:"order_attempts"`
	OrderBackoff  time.Duration `yaml:"order_backoff"`
}

type StrategyConfig struct {
	Symbol    string        `yaml:"symbol"`
	BaseAsset string        `yaml:"base_asset"`
	Interval  time.Duration `yaml:"interval"`
	// RatioThreshold is n: |base_delta_ratio| must exceed it.
	RatioThreshold decimal.Decimal `yaml:"ratio_threshold"`
	// DeltaThreshold is m: |base_delta| must exceed it. Also the quantity step.
	DeltaThreshold decimal.Decimal `yaml:"delta_threshold"`
	HedgeEnabled   bool            `yaml:"hedge_enabled"`
	DryRun         bool            `yaml:"dry_run"`
	HedgeCooldown  time.Duration   `yaml:"hedge_cooldown"`
}

type NotifyConfig struct {
	Interval              time.Duration   `yaml:"interval"`
	DeviationThreshold    decimal.Decimal `yaml:"deviation_threshold"`
	DrawdownThreshold     decimal.Decimal `yaml:"drawdown_threshold"`
	DrawdownMode          string          `yaml:"drawdown_mode"`
	DrawdownReferenceUSDT decimal.Decimal `yaml:"drawdown_reference_usdt"`
	AlertRepeat           time.Duration   `yaml:"alert_repeat"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueueSize       int           `yaml:"queue_size"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML, applies LPH_* environment overrides and defaults, then validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Chain.RPCURL, "LPH_RPC_URL")
	setFromEnv(&cfg.Chain.Owner, "LPH_OWNER")
	setFromEnv(&cfg.Binance.APIKey, "LPH_BINANCE_API_KEY")
	setFromEnv(&cfg.Binance.APISecret, "LPH_BINANCE_API_SECRET")
	setFromEnv(&cfg.Telegram.Token, "LPH_TELEGRAM_TOKEN")
	setFromEnv(&cfg.Telegram.ChatID, "LPH_TELEGRAM_CHAT_ID")
	setFromEnv(&cfg.Timescale.DSN, "LPH_TIMESCALE_DSN")
}

func setFromEnv(dst *string, key string) {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		*dst = strings.TrimSpace(val)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}
	if cfg.Chain.BaseDecimals == 0 {
		cfg.Chain.BaseDecimals = 18
	}
	if cfg.Chain.USDTDecimals == 0 {
		cfg.Chain.USDTDecimals = 18
	}
	if cfg.Chain.Timeout == 0 {
		cfg.Chain.Timeout = 20 * time.Second
	}
	if cfg.Binance.BaseURL == "" {
		cfg.Binance.BaseURL = "https://fapi.binance.com"
	}
	if cfg.Binance.WSURL == "" {
		cfg.Binance.WSURL = "wss://fstream.binance.com/ws"
	}
	if cfg.Binance.RecvWindow == 0 {
		cfg.Binance.RecvWindow = 5 * time.Second
	}
	if cfg.Binance.Timeout == 0 {
		cfg.Binance.Timeout = 10 * time.Second
	}
	if cfg.Binance.RequestsPerSecond == 0 {
		cfg.Binance.RequestsPerSecond = 5
	}
	if cfg.Binance.ReconnectDelay == 0 {
		cfg.Binance.ReconnectDelay = 3 * time.Second
	}
	if cfg.Binance.PingInterval == 0 {
		cfg.Binance.PingInterval = time.Minute
	}
	if cfg.Binance.OrderAttempts == 0 {
		cfg.Binance.OrderAttempts = 5
	}
	if cfg.Binance.OrderBackoff == 0 {
		cfg.Binance.OrderBackoff = 200 * time.Millisecond
	}
	cfg.Strategy.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Strategy.Symbol))
	if cfg.Strategy.BaseAsset == "" && strings.HasSuffix(cfg.Strategy.Symbol, "USDT") {
		cfg.Strategy.BaseAsset = strings.TrimSuffix(cfg.Strategy.Symbol, "USDT")
	}
	if cfg.Strategy.Interval == 0 {
		cfg.Strategy.Interval = 90 * time.Second
	}
	if cfg.Strategy.HedgeCooldown == 0 {
		cfg.Strategy.HedgeCooldown = 5 * time.Minute
	}
	if cfg.Notify.Interval == 0 {
		cfg.Notify.Interval = time.Hour
	}
	if cfg.Notify.DrawdownMode == "" {
		cfg.Notify.DrawdownMode = "absolute"
	}
	if cfg.Notify.AlertRepeat == 0 {
		cfg.Notify.AlertRepeat = 30 * time.Minute
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/lp-hedge-bot.db"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9102"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Strategy.Symbol == "" {
		return errors.New("strategy.symbol is required")
	}
	if cfg.Strategy.BaseAsset == "" {
		return errors.New("strategy.base_asset is required")
	}
	if !cfg.Strategy.RatioThreshold.IsPositive() {
		return errors.New("strategy.ratio_threshold must be > 0")
	}
	if !cfg.Strategy.DeltaThreshold.IsPositive() {
		return errors.New("strategy.delta_threshold must be > 0")
	}
	if cfg.Strategy.Interval < time.Second {
		return errors.New("strategy.interval must be >= 1s")
	}
	for name, addr := range map[string]string{
		"chain.position_manager": cfg.Chain.PositionManager,
		"chain.owner":            cfg.Chain.Owner,
		"chain.base_token":       cfg.Chain.BaseToken,
		"chain.usdt_token":       cfg.Chain.USDTToken,
	} {
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			return fmt.Errorf("%s must be a hex address", name)
		}
	}
	if strings.EqualFold(cfg.Chain.BaseToken, cfg.Chain.USDTToken) {
		return errors.New("chain.base_token and chain.usdt_token must differ")
	}
	if cfg.Chain.BaseDecimals < 0 || cfg.Chain.USDTDecimals < 0 {
		return errors.New("chain token decimals must be >= 0")
	}
	if cfg.Notify.DeviationThreshold.IsNegative() || cfg.Notify.DrawdownThreshold.IsNegative() {
		return errors.New("notify thresholds must be >= 0")
	}
	switch cfg.Notify.DrawdownMode {
	case "absolute", "percent":
	default:
		return fmt.Errorf("notify.drawdown_mode must be absolute or percent, got %q", cfg.Notify.DrawdownMode)
	}
	if cfg.Strategy.HedgeEnabled && !cfg.Strategy.DryRun {
		if cfg.Binance.APIKey == "" || cfg.Binance.APISecret == "" {
			return errors.New("binance api key and secret are required when hedging")
		}
	}
	if cfg.Telegram.OperatorEnabled && !cfg.Telegram.Enabled {
		return errors.New("telegram.operator_enabled requires telegram.enabled")
	}
	return nil
}
