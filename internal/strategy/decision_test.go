package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustSnapshot(t *testing.T, base, position string) MonitoringSnapshot {
	t.Helper()
	amm, fut := holdings(base, "0", position, "600")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snap
}

func TestDecideBalancedIsNone(t *testing.T) {
	snap := mustSnapshot(t, "10", "-10")
	if action := Decide(snap, d("0.05"), d("1")); !action.IsNone() {
		t.Fatalf("expected none, got %+v", action)
	}
}

func TestDecideOpenSell(t *testing.T) {
	snap := mustSnapshot(t, "12", "-10")
	action := Decide(snap, d("0.05"), d("1"))
	if action.Kind != ActionOpenSell {
		t.Fatalf("expected open sell, got %+v", action)
	}
	if action.Symbol != "BNBUSDT" || action.Quantity != "2" {
		t.Fatalf("unexpected action %+v", action)
	}
}

func TestDecideCloseSell(t *testing.T) {
	snap := mustSnapshot(t, "8", "-10")
	action := Decide(snap, d("0.05"), d("1"))
	if action.Kind != ActionCloseSell {
		t.Fatalf("expected close sell, got %+v", action)
	}
	if action.Quantity != "2" {
		t.Fatalf("expected quantity 2, got %s", action.Quantity)
	}
}

func TestDecideZeroDeltaAlwaysNone(t *testing.T) {
	snap := mustSnapshot(t, "0", "0")
	thresholds := []struct{ n, m string }{
		{"0.05", "1"},
		{"0", "0"},
		{"-1", "-1"},
	}
	for _, th := range thresholds {
		if action := Decide(snap, d(th.n), d(th.m)); !action.IsNone() {
			t.Fatalf("n=%s m=%s: expected none, got %+v", th.n, th.m, action)
		}
	}
}

func TestDecideStrictBoundaries(t *testing.T) {
	snap := mustSnapshot(t, "12", "-10")
	if action := Decide(snap, snap.BaseDeltaRatio, d("1")); !action.IsNone() {
		t.Fatalf("ratio equal to n must not trigger, got %+v", action)
	}
	if action := Decide(snap, d("0.05"), d("2")); !action.IsNone() {
		t.Fatalf("delta equal to m must not trigger, got %+v", action)
	}
}

func TestDecideBelowDeltaThreshold(t *testing.T) {
	snap := mustSnapshot(t, "10.5", "-10")
	if action := Decide(snap, d("0.01"), d("1")); !action.IsNone() {
		t.Fatalf("expected none below m, got %+v", action)
	}
}

func TestDecideIsPure(t *testing.T) {
	snap := mustSnapshot(t, "13.37", "-10")
	first := Decide(snap, d("0.05"), d("0.1"))
	second := Decide(snap, d("0.05"), d("0.1"))
	if first != second {
		t.Fatalf("expected identical actions, got %+v and %+v", first, second)
	}
	if first.Quantity != "3.4" {
		t.Fatalf("expected quantity 3.4, got %s", first.Quantity)
	}
}

func TestRoundToStep(t *testing.T) {
	cases := []struct {
		value, step, want string
	}{
		{"2", "1", "2"},
		{"2.5", "1", "3"},
		{"2.49", "1", "2"},
		{"1.26", "0.5", "1.5"},
		{"0.12345", "0.01", "0.12"},
		{"0.125", "0.01", "0.13"},
		{"7", "0", "7"},
	}
	for _, tc := range cases {
		got := RoundToStep(d(tc.value), d(tc.step))
		if !got.Equal(d(tc.want)) {
			t.Fatalf("RoundToStep(%s, %s) = %s, want %s", tc.value, tc.step, got, tc.want)
		}
	}
}

func TestFormatQuantity(t *testing.T) {
	cases := []struct {
		quantity, step, want string
	}{
		{"2", "1", "2"},
		{"20", "10", "20"},
		{"0.12", "0.01", "0.12"},
		{"1.5", "0.5", "1.5"},
		{"0.75", "0.25", "0.75"},
		{"3", "0.001", "3.000"},
		{"0.3", "0.100", "0.3"},
		{"7.5", "2.5", "7.5"},
		{"10", "2.5", "10.0"},
		{"20", "1.0", "20"},
	}
	for _, tc := range cases {
		if got := FormatQuantity(d(tc.quantity), d(tc.step)); got != tc.want {
			t.Fatalf("FormatQuantity(%s, %s) = %q, want %q", tc.quantity, tc.step, got, tc.want)
		}
	}
	if got := FormatQuantity(decimal.RequireFromString("0.4"), decimal.Zero); got != "0.4" {
		t.Fatalf("expected unrounded quantity without step, got %q", got)
	}
}

func TestDecideFractionalStepAboveOne(t *testing.T) {
	snap := MonitoringSnapshot{Symbol: "BNBUSDT", BaseDelta: d("8"), BaseDeltaRatio: d("0.5")}
	action := Decide(snap, d("0.1"), d("2.5"))
	if action.Kind != ActionOpenSell || action.Quantity != "7.5" {
		t.Fatalf("expected OPEN_SELL 7.5, got %s %s", action.Kind, action.Quantity)
	}
}
