package strategy

import (
	"strings"
	"testing"
	"time"
)

var notifyNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func kinds(events []NotificationEvent) []NotificationKind {
	out := make([]NotificationKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestPeriodicFiresWithoutPriorState(t *testing.T) {
	snap := mustSnapshot(t, "10", "-10")
	events := EvaluateNotifications(snap, NotificationPolicy{MinInterval: time.Hour}, nil, notifyNow)
	if len(events) != 1 || events[0].Kind != NotifyPeriodic {
		t.Fatalf("expected one periodic event, got %v", kinds(events))
	}
}

func TestPeriodicRespectsMinInterval(t *testing.T) {
	snap := mustSnapshot(t, "10", "-10")
	policy := NotificationPolicy{MinInterval: time.Hour}
	recent := &PriorState{PeriodicSentAt: notifyNow.Add(-59 * time.Minute)}
	if events := EvaluateNotifications(snap, policy, recent, notifyNow); len(events) != 0 {
		t.Fatalf("expected no events inside interval, got %v", kinds(events))
	}
	exact := &PriorState{PeriodicSentAt: notifyNow.Add(-time.Hour)}
	if events := EvaluateNotifications(snap, policy, exact, notifyNow); len(events) != 1 {
		t.Fatalf("expected periodic event at interval boundary, got %v", kinds(events))
	}
}

func TestExposureAlertUsesMagnitude(t *testing.T) {
	snap := mustSnapshot(t, "8", "-10")
	policy := NotificationPolicy{MinInterval: time.Hour, DeviationThreshold: d("0.1")}
	last := &PriorState{PeriodicSentAt: notifyNow}
	events := EvaluateNotifications(snap, policy, last, notifyNow)
	if len(events) != 1 || events[0].Kind != NotifyExposureAlert {
		t.Fatalf("expected exposure alert, got %v", kinds(events))
	}
	if !events[0].BreachedValue.Equal(d("0.2")) {
		t.Fatalf("expected breached value 0.2, got %s", events[0].BreachedValue)
	}
	if !events[0].Threshold.Equal(d("0.1")) {
		t.Fatalf("expected threshold 0.1, got %s", events[0].Threshold)
	}
}

func TestExposureAlertStrictThreshold(t *testing.T) {
	snap := mustSnapshot(t, "8", "-10")
	policy := NotificationPolicy{MinInterval: time.Hour, DeviationThreshold: d("0.2")}
	last := &PriorState{PeriodicSentAt: notifyNow}
	if events := EvaluateNotifications(snap, policy, last, notifyNow); len(events) != 0 {
		t.Fatalf("expected no alert at threshold, got %v", kinds(events))
	}
}

func TestDrawdownAbsolute(t *testing.T) {
	amm, fut := holdings("10", "1000", "-10", "600")
	fut.UnrealizedPnL = d("-150")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	policy := NotificationPolicy{MinInterval: time.Hour, DrawdownThreshold: d("100"), DrawdownMode: DrawdownAbsolute}
	last := &PriorState{PeriodicSentAt: notifyNow, ReferenceValueUSDT: d("7000"), HasReference: true}
	events := EvaluateNotifications(snap, policy, last, notifyNow)
	if len(events) != 1 || events[0].Kind != NotifyDrawdownAlert {
		t.Fatalf("expected drawdown alert, got %v", kinds(events))
	}
	if !events[0].BreachedValue.Equal(d("150")) {
		t.Fatalf("expected drop 150, got %s", events[0].BreachedValue)
	}
}

func TestDrawdownPercent(t *testing.T) {
	amm, fut := holdings("10", "1000", "-10", "600")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	policy := NotificationPolicy{MinInterval: time.Hour, DrawdownThreshold: d("0.05"), DrawdownMode: DrawdownPercent}
	last := &PriorState{PeriodicSentAt: notifyNow, ReferenceValueUSDT: d("8000"), HasReference: true}
	events := EvaluateNotifications(snap, policy, last, notifyNow)
	if len(events) != 1 || events[0].Kind != NotifyDrawdownAlert {
		t.Fatalf("expected drawdown alert, got %v", kinds(events))
	}
	if !events[0].BreachedValue.Equal(d("0.125")) {
		t.Fatalf("expected drop fraction 0.125, got %s", events[0].BreachedValue)
	}

	last.ReferenceValueUSDT = d("7200")
	if events := EvaluateNotifications(snap, policy, last, notifyNow); len(events) != 0 {
		t.Fatalf("expected no alert for small drop, got %v", kinds(events))
	}
}

func TestDrawdownNeedsReference(t *testing.T) {
	amm, fut := holdings("1", "0", "-1", "600")
	fut.UnrealizedPnL = d("-1000")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	policy := NotificationPolicy{MinInterval: time.Hour, DrawdownThreshold: d("1")}
	last := &PriorState{PeriodicSentAt: notifyNow}
	if events := EvaluateNotifications(snap, policy, last, notifyNow); len(events) != 0 {
		t.Fatalf("expected no drawdown without reference, got %v", kinds(events))
	}
}

func TestAllTriggersInOneTick(t *testing.T) {
	amm, fut := holdings("12", "0", "-10", "600")
	fut.UnrealizedPnL = d("-500")
	snap, err := BuildSnapshot("BNBUSDT", amm, fut)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	policy := NotificationPolicy{
		MinInterval:        time.Minute,
		DeviationThreshold: d("0.05"),
		DrawdownThreshold:  d("100"),
	}
	last := &PriorState{ReferenceValueUSDT: d("7200"), HasReference: true}
	got := kinds(EvaluateNotifications(snap, policy, last, notifyNow))
	want := []NotificationKind{NotifyPeriodic, NotifyExposureAlert, NotifyDrawdownAlert}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRenderMessage(t *testing.T) {
	snap := mustSnapshot(t, "8", "-10")
	msg := RenderMessage(NotificationEvent{Kind: NotifyPeriodic, Snapshot: snap}, "BNB")
	for _, want := range []string{"LP hedge report BNBUSDT", "Block: 100", "BNB price: 600.0000 USDT", "Delta: -2.0000 BNB (-20.00%)"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in message:\n%s", want, msg)
		}
	}
	alert := RenderMessage(NotificationEvent{
		Kind:          NotifyExposureAlert,
		Snapshot:      snap,
		BreachedValue: d("0.2"),
		Threshold:     d("0.1"),
	}, "BNB")
	if !strings.HasPrefix(alert, "EXPOSURE ALERT BNBUSDT: |delta ratio| 20.00% > 10.00%") {
		t.Fatalf("unexpected alert header:\n%s", alert)
	}
}
