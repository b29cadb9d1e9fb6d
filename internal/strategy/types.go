package strategy

import "github.com/shopspring/decimal"

// PositionSide is a signed BASE quantity: positive is net long, negative is net short.
type PositionSide = decimal.Decimal

// AmmHolding is the decimal-normalized content of the LP position(s) for one tick.
type AmmHolding struct {
	BaseAmount      decimal.Decimal
	USDTAmount      decimal.Decimal
	CollectableBase decimal.Decimal
	CollectableUSDT decimal.Decimal
	BlockNumber     uint64
}

// FuturesHolding is the perpetual position for the hedged symbol.
type FuturesHolding struct {
	PositionAmt   PositionSide
	UnrealizedPnL decimal.Decimal
	MarkPrice     decimal.Decimal
	// UpdateTime is the exchange update time in milliseconds since epoch.
	UpdateTime int64
}

// MonitoringSnapshot is the immutable result of one tick. Every valuation field is
// derived from the holdings and BasePriceUSDT.
type MonitoringSnapshot struct {
	BlockNumber             uint64          `json:"block_number"`
	Symbol                  string          `json:"symbol"`
	AMMBaseAmount           decimal.Decimal `json:"amm_base_amount"`
	AMMUSDTAmount           decimal.Decimal `json:"amm_usdt_amount"`
	AMMCollectableBase      decimal.Decimal `json:"amm_collectable_base"`
	AMMCollectableUSDT      decimal.Decimal `json:"amm_collectable_usdt"`
	AMMCollectableValueUSDT decimal.Decimal `json:"amm_collectable_value_usdt"`
	FuturesPosition         PositionSide    `json:"futures_position"`
	UnrealizedPnL           decimal.Decimal `json:"unrealized_pnl"`
	FuturesTimestamp        int64           `json:"futures_timestamp"`
	BasePriceUSDT           decimal.Decimal `json:"base_price_usdt"`
	BaseDelta               PositionSide    `json:"base_delta"`
	BaseDeltaRatio          decimal.Decimal `json:"base_delta_ratio"`
	AMMTotalValueUSDT       decimal.Decimal `json:"amm_total_value_usdt"`
	TotalValueUSDT          decimal.Decimal `json:"total_value_usdt"`
}

type ActionKind string

const (
	ActionNone      ActionKind = "NONE"
	ActionOpenSell  ActionKind = "OPEN_SELL"
	ActionCloseSell ActionKind = "CLOSE_SELL"
)

// HedgeAction is the decision for one snapshot. Quantity is already rounded to the
// configured step and formatted with the step's precision.
type HedgeAction struct {
	Kind     ActionKind
	Symbol   string
	Quantity string
}

func (a HedgeAction) IsNone() bool {
	return a.Kind == "" || a.Kind == ActionNone
}

type NotificationKind string

const (
	NotifyPeriodic      NotificationKind = "PERIODIC"
	NotifyExposureAlert NotificationKind = "EXPOSURE_ALERT"
	NotifyDrawdownAlert NotificationKind = "DRAWDOWN_ALERT"
)

// NotificationEvent carries the whole snapshot so a message can be rendered without
// querying any source again. BreachedValue and Threshold are zero for periodic reports.
type NotificationEvent struct {
	Kind          NotificationKind
	Snapshot      MonitoringSnapshot
	BreachedValue decimal.Decimal
	Threshold     decimal.Decimal
}
