package state

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"lp-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

const (
	NotifyStateKey  = "notify:state"
	LastSnapshotKey = "monitor:last_snapshot"
)

// NotifyState is what the notification loop remembers between ticks and restarts.
type NotifyState struct {
	PeriodicSentAt     time.Time       `json:"periodic_sent_at"`
	ReferenceValueUSDT decimal.Decimal `json:"reference_value_usdt"`
	HasReference       bool            `json:"has_reference"`
	ExposureAlertAt    time.Time       `json:"exposure_alert_at"`
	DrawdownAlertAt    time.Time       `json:"drawdown_alert_at"`
	LastHedgeAt        time.Time       `json:"last_hedge_at"`
}

// Prior converts the persisted state into the policy's view of the previous run.
// It returns nil when nothing has been sent and no reference is known.
func (s NotifyState) Prior() *strategy.PriorState {
	if s.PeriodicSentAt.IsZero() && !s.HasReference {
		return nil
	}
	return &strategy.PriorState{
		PeriodicSentAt:     s.PeriodicSentAt,
		ReferenceValueUSDT: s.ReferenceValueUSDT,
		HasReference:       s.HasReference,
	}
}

func LoadNotifyState(ctx context.Context, store Store) (NotifyState, bool, error) {
	var out NotifyState
	ok, err := loadJSON(ctx, store, NotifyStateKey, &out)
	return out, ok, err
}

func SaveNotifyState(ctx context.Context, store Store, st NotifyState) error {
	return saveJSON(ctx, store, NotifyStateKey, st)
}

func LoadLastSnapshot(ctx context.Context, store Store) (strategy.MonitoringSnapshot, bool, error) {
	var out strategy.MonitoringSnapshot
	ok, err := loadJSON(ctx, store, LastSnapshotKey, &out)
	return out, ok, err
}

func SaveLastSnapshot(ctx context.Context, store Store, snap strategy.MonitoringSnapshot) error {
	return saveJSON(ctx, store, LastSnapshotKey, snap)
}

func loadJSON(ctx context.Context, store Store, key string, out any) (bool, error) {
	if store == nil {
		return false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

func saveJSON(ctx context.Context, store Store, key string, v any) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload))
}
