package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingMarkPrice = errors.New("missing mark price")
	ErrInvalidHolding   = errors.New("invalid holding")
)

// DeltaEpsilon keeps the ratio denominator non-zero when both legs are flat.
var DeltaEpsilon = decimal.New(1, -8)

// BuildSnapshot merges one AMM holding and one futures holding read in the same tick.
// It either returns a fully populated snapshot or an error wrapping ErrMissingMarkPrice
// or ErrInvalidHolding; callers must skip the tick on error.
func BuildSnapshot(symbol string, amm AmmHolding, fut FuturesHolding) (MonitoringSnapshot, error) {
	if err := validateAmm(amm); err != nil {
		return MonitoringSnapshot{}, err
	}
	if !fut.MarkPrice.IsPositive() {
		return MonitoringSnapshot{}, fmt.Errorf("%w: mark price %s for %s", ErrMissingMarkPrice, fut.MarkPrice, symbol)
	}
	mark := fut.MarkPrice

	baseDelta := amm.BaseAmount.Add(fut.PositionAmt)
	baseDeltaRatio := baseDelta.Div(BaseReference(amm.BaseAmount, fut.PositionAmt))

	ammTotal := amm.BaseAmount.Mul(mark).Add(amm.USDTAmount)
	collectableValue := amm.CollectableBase.Mul(mark).Add(amm.CollectableUSDT)

	return MonitoringSnapshot{
		BlockNumber:             amm.BlockNumber,
		Symbol:                  symbol,
		AMMBaseAmount:           amm.BaseAmount,
		AMMUSDTAmount:           amm.USDTAmount,
		AMMCollectableBase:      amm.CollectableBase,
		AMMCollectableUSDT:      amm.CollectableUSDT,
		AMMCollectableValueUSDT: collectableValue,
		FuturesPosition:         fut.PositionAmt,
		UnrealizedPnL:           fut.UnrealizedPnL,
		FuturesTimestamp:        fut.UpdateTime,
		BasePriceUSDT:           mark,
		BaseDelta:               baseDelta,
		BaseDeltaRatio:          baseDeltaRatio,
		AMMTotalValueUSDT:       ammTotal,
		TotalValueUSDT:          ammTotal.Add(fut.UnrealizedPnL),
	}, nil
}

// BaseReference is the larger of the two leg magnitudes, floored at DeltaEpsilon.
func BaseReference(ammBase, futuresPosition PositionSide) decimal.Decimal {
	return decimal.Max(ammBase.Abs(), futuresPosition.Abs(), DeltaEpsilon)
}

// BaseReference recomputes the ratio denominator from the snapshot's own fields.
func (s MonitoringSnapshot) BaseReference() decimal.Decimal {
	return BaseReference(s.AMMBaseAmount, s.FuturesPosition)
}

func validateAmm(amm AmmHolding) error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"base_amount", amm.BaseAmount},
		{"usdt_amount", amm.USDTAmount},
		{"collectable_base", amm.CollectableBase},
		{"collectable_usdt", amm.CollectableUSDT},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return fmt.Errorf("%w: amm %s is negative (%s)", ErrInvalidHolding, f.name, f.value)
		}
	}
	return nil
}
