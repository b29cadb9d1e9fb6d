package strategy

import "github.com/shopspring/decimal"

// Decide returns the hedge adjustment for one snapshot. n bounds the magnitude of
// BaseDeltaRatio and m bounds the magnitude of BaseDelta; both comparisons are strict.
// m is also the order quantity step. Decide holds no state between calls.
func Decide(snap MonitoringSnapshot, n, m decimal.Decimal) HedgeAction {
	none := HedgeAction{Kind: ActionNone, Symbol: snap.Symbol}
	if !snap.BaseDeltaRatio.Abs().GreaterThan(n) || !snap.BaseDelta.Abs().GreaterThan(m) {
		return none
	}
	raw := snap.BaseDelta
	if raw.IsZero() {
		return none
	}
	quantity := RoundToStep(raw.Abs(), m)
	if !quantity.IsPositive() {
		return none
	}
	action := HedgeAction{
		Symbol:   snap.Symbol,
		Quantity: FormatQuantity(quantity, m),
	}
	if raw.IsPositive() {
		// LP holds more BASE than the short covers.
		action.Kind = ActionOpenSell
	} else {
		action.Kind = ActionCloseSell
	}
	return action
}

// RoundToStep rounds value to the nearest multiple of step, halves away from zero.
// A non-positive step leaves value unchanged.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	return value.Div(step).Round(0).Mul(step)
}

// FormatQuantity prints quantity with as many fractional digits as step carries:
// 0.001 yields three places, 2.5 yields one and whole steps yield none.
func FormatQuantity(quantity, step decimal.Decimal) string {
	if !step.IsPositive() {
		return quantity.String()
	}
	return quantity.StringFixed(StepPlaces(step))
}

func StepPlaces(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 0
	}
	// String() drops trailing zeros, so "0.0100" normalizes to exponent -2.
	normalized, err := decimal.NewFromString(step.String())
	if err != nil {
		return 0
	}
	if exp := normalized.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}
