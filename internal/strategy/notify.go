package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DrawdownMode string

const (
	DrawdownAbsolute DrawdownMode = "absolute"
	DrawdownPercent  DrawdownMode = "percent"
)

// NotificationPolicy configures the three notification triggers. A zero
// DeviationThreshold or DrawdownThreshold disables that alert.
type NotificationPolicy struct {
	MinInterval        time.Duration
	DeviationThreshold decimal.Decimal
	DrawdownThreshold  decimal.Decimal
	// DrawdownMode selects whether DrawdownThreshold is in USDT or a fraction of the reference.
	DrawdownMode DrawdownMode
}

// PriorState is the caller-held bookkeeping from earlier ticks.
type PriorState struct {
	PeriodicSentAt     time.Time
	ReferenceValueUSDT decimal.Decimal
	HasReference       bool
}

// EvaluateNotifications returns every notification the snapshot warrants at now.
// The triggers are independent and may all fire in the same tick.
func EvaluateNotifications(snap MonitoringSnapshot, policy NotificationPolicy, last *PriorState, now time.Time) []NotificationEvent {
	var events []NotificationEvent
	if periodicDue(policy, last, now) {
		events = append(events, NotificationEvent{Kind: NotifyPeriodic, Snapshot: snap})
	}
	if policy.DeviationThreshold.IsPositive() {
		deviation := snap.BaseDeltaRatio.Abs()
		if deviation.GreaterThan(policy.DeviationThreshold) {
			events = append(events, NotificationEvent{
				Kind:          NotifyExposureAlert,
				Snapshot:      snap,
				BreachedValue: deviation,
				Threshold:     policy.DeviationThreshold,
			})
		}
	}
	if last != nil && last.HasReference && policy.DrawdownThreshold.IsPositive() {
		if drop, ok := drawdown(snap.TotalValueUSDT, last.ReferenceValueUSDT, policy.DrawdownMode); ok && drop.GreaterThan(policy.DrawdownThreshold) {
			events = append(events, NotificationEvent{
				Kind:          NotifyDrawdownAlert,
				Snapshot:      snap,
				BreachedValue: drop,
				Threshold:     policy.DrawdownThreshold,
			})
		}
	}
	return events
}

func periodicDue(policy NotificationPolicy, last *PriorState, now time.Time) bool {
	if last == nil || last.PeriodicSentAt.IsZero() {
		return true
	}
	return now.Sub(last.PeriodicSentAt) >= policy.MinInterval
}

// drawdown reports how far total sits below reference, in USDT or as a fraction.
func drawdown(total, reference decimal.Decimal, mode DrawdownMode) (decimal.Decimal, bool) {
	drop := reference.Sub(total)
	if mode != DrawdownPercent {
		return drop, true
	}
	if !reference.IsPositive() {
		return decimal.Zero, false
	}
	return drop.Div(reference), true
}

// RenderMessage formats an event as plain text. baseAsset labels BASE quantities.
func RenderMessage(event NotificationEvent, baseAsset string) string {
	snap := event.Snapshot
	if baseAsset == "" {
		baseAsset = "BASE"
	}
	var b strings.Builder
	switch event.Kind {
	case NotifyExposureAlert:
		fmt.Fprintf(&b, "EXPOSURE ALERT %s: |delta ratio| %s > %s\n", snap.Symbol, percent(event.BreachedValue), percent(event.Threshold))
	case NotifyDrawdownAlert:
		fmt.Fprintf(&b, "DRAWDOWN ALERT %s: total value down %s (threshold %s)\n", snap.Symbol, event.BreachedValue.StringFixed(4), event.Threshold.StringFixed(4))
	default:
		fmt.Fprintf(&b, "LP hedge report %s\n", snap.Symbol)
	}
	fmt.Fprintf(&b, "Block: %d\n", snap.BlockNumber)
	fmt.Fprintf(&b, "%s price: %s USDT\n", baseAsset, snap.BasePriceUSDT.StringFixed(4))
	fmt.Fprintf(&b, "AMM: %s %s + %s USDT = %s USDT\n",
		snap.AMMBaseAmount.StringFixed(4), baseAsset, snap.AMMUSDTAmount.StringFixed(2), snap.AMMTotalValueUSDT.StringFixed(2))
	fmt.Fprintf(&b, "Fees: %s %s + %s USDT = %s USDT\n",
		snap.AMMCollectableBase.StringFixed(6), baseAsset, snap.AMMCollectableUSDT.StringFixed(4), snap.AMMCollectableValueUSDT.StringFixed(4))
	fmt.Fprintf(&b, "Futures: %s %s, uPnL %s USDT", snap.FuturesPosition.StringFixed(4), baseAsset, snap.UnrealizedPnL.StringFixed(2))
	if snap.FuturesTimestamp > 0 {
		fmt.Fprintf(&b, " (updated %s)", time.UnixMilli(snap.FuturesTimestamp).UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Delta: %s %s (%s)\n", snap.BaseDelta.StringFixed(4), baseAsset, percent(snap.BaseDeltaRatio))
	fmt.Fprintf(&b, "Total: %s USDT", snap.TotalValueUSDT.StringFixed(2))
	return b.String()
}

func percent(ratio decimal.Decimal) string {
	return ratio.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}
