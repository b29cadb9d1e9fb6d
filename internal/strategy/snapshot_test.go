package strategy

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func holdings(base, usdt, position, mark string) (AmmHolding, FuturesHolding) {
	return AmmHolding{
			BaseAmount:  d(base),
			USDTAmount:  d(usdt),
			BlockNumber: 100,
		}, FuturesHolding{
			PositionAmt: d(position),
			MarkPrice:   d(mark),
			UpdateTime:  1700000000000,
		}
}

func TestBuildSnapshotBalanced(t *testing.T) {
	amm, fut := holdings("10", "6000", "-10", "600")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !snap.BaseDelta.IsZero() {
		t.Fatalf("expected zero delta, got %s", snap.BaseDelta)
	}
	if !snap.BaseDeltaRatio.IsZero() {
		t.Fatalf("expected zero ratio, got %s", snap.BaseDeltaRatio)
	}
	if !snap.AMMTotalValueUSDT.Equal(d("12000")) {
		t.Fatalf("expected amm total 12000, got %s", snap.AMMTotalValueUSDT)
	}
	if snap.BlockNumber != 100 || snap.Symbol != "BNBUSDT" || snap.FuturesTimestamp != 1700000000000 {
		t.Fatalf("unexpected snapshot metadata: %+v", snap)
	}
}

func TestBuildSnapshotLongImbalance(t *testing.T) {
	amm, fut := holdings("12", "0", "-10", "600")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !snap.BaseDelta.Equal(d("2")) {
		t.Fatalf("expected delta 2, got %s", snap.BaseDelta)
	}
	if !snap.BaseReference().Equal(d("12")) {
		t.Fatalf("expected reference 12, got %s", snap.BaseReference())
	}
	if snap.BaseDeltaRatio.Sub(d("0.1667")).Abs().GreaterThan(d("0.0001")) {
		t.Fatalf("expected ratio near 0.1667, got %s", snap.BaseDeltaRatio)
	}
}

func TestBuildSnapshotCollectableValue(t *testing.T) {
	amm := AmmHolding{
		BaseAmount:      d("1"),
		USDTAmount:      d("100"),
		CollectableBase: d("0.01"),
		CollectableUSDT: d("2.5"),
	}
	fut := FuturesHolding{PositionAmt: d("-1"), MarkPrice: d("300"), UnrealizedPnL: d("-4.25")}
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !snap.AMMCollectableValueUSDT.Equal(d("5.5")) {
		t.Fatalf("expected collectable value 5.5, got %s", snap.AMMCollectableValueUSDT)
	}
	if !snap.TotalValueUSDT.Equal(d("395.75")) {
		t.Fatalf("expected total 395.75, got %s", snap.TotalValueUSDT)
	}
}

func TestBuildSnapshotMissingMarkPrice(t *testing.T) {
	for _, mark := range []string{"0", "-1"} {
		amm, fut := holdings("10", "0", "-10", mark)
		_, err := BuildSnapshot("BNBUSDT", amm, fut)
		if !errors.Is(err, ErrMissingMarkPrice) {
			t.Fatalf("mark %s: expected ErrMissingMarkPrice, got %v", mark, err)
		}
	}
	amm, _ := holdings("10", "0", "-10", "1")
	if _, err := BuildSnapshot("BNBUSDT", amm, FuturesHolding{}); !errors.Is(err, ErrMissingMarkPrice) {
		t.Fatalf("expected ErrMissingMarkPrice for unset mark, got %v", err)
	}
}

func TestBuildSnapshotInvalidHolding(t *testing.T) {
	cases := map[string]AmmHolding{
		"base":             {BaseAmount: d("-1")},
		"usdt":             {USDTAmount: d("-0.01")},
		"collectable_base": {CollectableBase: d("-1")},
		"collectable_usdt": {CollectableUSDT: d("-1")},
	}
	fut := FuturesHolding{MarkPrice: d("600")}
	for name, amm := range cases {
		if _, err := BuildSnapshot("BNBUSDT", amm, fut); !errors.Is(err, ErrInvalidHolding) {
			t.Fatalf("%s: expected ErrInvalidHolding, got %v", name, err)
		}
	}
}

func TestBuildSnapshotDeterministic(t *testing.T) {
	amm, fut := holdings("12.345678901234567891", "1234.5", "-10.5", "612.37")
	first, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("snapshots differ:\n%s\n%s", a, b)
	}
}

func TestBaseReferenceNeverZero(t *testing.T) {
	if got := BaseReference(decimal.Zero, decimal.Zero); !got.Equal(DeltaEpsilon) {
		t.Fatalf("expected epsilon reference, got %s", got)
	}
	amm, fut := holdings("0", "0", "0", "600")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if snap.BaseReference().LessThan(DeltaEpsilon) {
		t.Fatalf("reference below epsilon: %s", snap.BaseReference())
	}
	if !snap.BaseDeltaRatio.IsZero() {
		t.Fatalf("expected zero ratio for flat legs, got %s", snap.BaseDeltaRatio)
	}
}

func TestTotalValueIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		base := decimal.New(rng.Int63n(1_000_000_000_000), -int32(rng.Intn(19)))
		usdt := decimal.New(rng.Int63n(1_000_000_000_000), -int32(rng.Intn(19)))
		position := decimal.New(rng.Int63n(2_000_000_000)-1_000_000_000, -int32(rng.Intn(9)))
		pnl := decimal.New(rng.Int63n(2_000_000)-1_000_000, -int32(rng.Intn(9)))
		mark := decimal.New(rng.Int63n(1_000_000_000)+1, -int32(rng.Intn(9)))
		snap, err := BuildSnapshot("X", AmmHolding{BaseAmount: base, USDTAmount: usdt}, FuturesHolding{
			PositionAmt:   position,
			UnrealizedPnL: pnl,
			MarkPrice:     mark,
		})
		if err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
		want := base.Mul(mark).Add(usdt).Add(pnl)
		if !snap.TotalValueUSDT.Equal(want) {
			t.Fatalf("sample %d: total %s, want %s", i, snap.TotalValueUSDT, want)
		}
		if !snap.BaseDelta.Equal(base.Add(position)) {
			t.Fatalf("sample %d: delta %s, want %s", i, snap.BaseDelta, base.Add(position))
		}
	}
}
