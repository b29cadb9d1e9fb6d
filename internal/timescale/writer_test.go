package timescale

import (
	"context"
	"testing"
	"time"

	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{Enabled: false}, nil)
	if err != nil || w != nil {
		t.Fatalf("expected nil writer, got %v %v", w, err)
	}
	// nil writers accept rows silently
	w.EnqueueSnapshot(SnapshotRow{})
	w.EnqueueHedge(HedgeRow{})
	w.Start(context.Background())
	if err := w.Close(); err != nil {
		t.Fatalf("close nil writer: %v", err)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("expected dsn error")
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	w := newWriter(nil, "public", 1, nil)
	w.EnqueueSnapshot(SnapshotRow{})
	w.EnqueueSnapshot(SnapshotRow{})
	w.EnqueueHedge(HedgeRow{})
	w.EnqueueHedge(HedgeRow{})
	w.EnqueueHedge(HedgeRow{})
	snaps, hedges := w.Dropped()
	if snaps != 1 || hedges != 2 {
		t.Fatalf("expected 1/2 dropped, got %d/%d", snaps, hedges)
	}
}

func TestTableNamesAreQuoted(t *testing.T) {
	w := newWriter(nil, "lp hedge", 1, nil)
	if got := w.table(snapshotsTable); got != `"lp hedge"."monitoring_snapshots"` {
		t.Fatalf("unexpected table name %s", got)
	}
}

func TestSnapshotArgs(t *testing.T) {
	snap, err := strategy.BuildSnapshot("BNBUSDT",
		strategy.AmmHolding{BaseAmount: decimal.NewFromInt(12), USDTAmount: decimal.NewFromInt(100), BlockNumber: 99},
		strategy.FuturesHolding{PositionAmt: decimal.NewFromInt(-10), MarkPrice: decimal.NewFromInt(600), UpdateTime: 1700000000000},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	args := snapshotArgs(SnapshotRow{Time: now, Snapshot: snap})
	if len(args) != 17 {
		t.Fatalf("expected 17 args, got %d", len(args))
	}
	if args[2].(int64) != 99 {
		t.Fatalf("unexpected block arg %v", args[2])
	}
	if ts, ok := args[10].(time.Time); !ok || ts.UnixMilli() != 1700000000000 {
		t.Fatalf("unexpected futures ts %v", args[10])
	}
	if !args[12].(decimal.Decimal).Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected base delta arg %v", args[12])
	}
}

func TestHedgeArgsNullPrice(t *testing.T) {
	args := hedgeArgs(HedgeRow{Symbol: "BNBUSDT", Kind: "OPEN_SELL", Quantity: "2"})
	if len(args) != 12 {
		t.Fatalf("expected 12 args, got %d", len(args))
	}
	if args[5] != nil {
		t.Fatalf("expected nil price, got %v", args[5])
	}
}
