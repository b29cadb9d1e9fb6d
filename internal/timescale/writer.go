package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/strategy"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

const (
	snapshotsTable = "monitoring_snapshots"
	hedgesTable    = "hedge_actions"
)

// SnapshotRow is one tick's snapshot with the observation time.
type SnapshotRow struct {
	Time        time.Time
	Snapshot    strategy.MonitoringSnapshot
	FundingRate decimal.NullDecimal
}

type HedgeRow struct {
	Time          time.Time
	Symbol        string
	Kind          string
	Side          string
	Quantity      string
	Price         string
	OrderID       string
	ClientOrderID string
	BlockNumber   uint64
	BaseDelta     decimal.Decimal
	DryRun        bool
	Error         string
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	snapshots chan SnapshotRow
	hedges    chan HedgeRow
	started   atomic.Bool
	dropSnap  atomic.Uint64
	dropHedge atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		snapshots: make(chan SnapshotRow, queueSize),
		hedges:    make(chan HedgeRow, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueSnapshot(row SnapshotRow) {
	if w == nil {
		return
	}
	select {
	case w.snapshots <- row:
	default:
		if w.dropSnap.Add(1) == 1 {
			w.log.Warn("timescale snapshot queue full")
		}
	}
}

func (w *Writer) EnqueueHedge(row HedgeRow) {
	if w == nil {
		return
	}
	select {
	case w.hedges <- row:
	default:
		if w.dropHedge.Add(1) == 1 {
			w.log.Warn("timescale hedge queue full")
		}
	}
}

func (w *Writer) Dropped() (snapshots, hedges uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropSnap.Load(), w.dropHedge.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.snapshots:
			w.writeSnapshot(ctx, row)
		case row := <-w.hedges:
			w.writeHedge(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{w.schema}.Sanitize())); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		amm_base_amount NUMERIC NOT NULL,
		amm_usdt_amount NUMERIC NOT NULL,
		amm_collectable_base NUMERIC NOT NULL,
		amm_collectable_usdt NUMERIC NOT NULL,
		amm_collectable_value_usdt NUMERIC NOT NULL,
		futures_position NUMERIC NOT NULL,
		unrealized_pnl NUMERIC NOT NULL,
		futures_ts TIMESTAMPTZ,
		base_price_usdt NUMERIC NOT NULL,
		base_delta NUMERIC NOT NULL,
		base_delta_ratio NUMERIC NOT NULL,
		amm_total_value_usdt NUMERIC NOT NULL,
		total_value_usdt NUMERIC NOT NULL,
		funding_rate NUMERIC
	)`, w.table(snapshotsTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity NUMERIC NOT NULL,
		price NUMERIC,
		order_id TEXT NOT NULL,
		client_order_id TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		base_delta NUMERIC NOT NULL,
		dry_run BOOLEAN NOT NULL,
		error TEXT NOT NULL
	)`, w.table(hedgesTable))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{snapshotsTable, hedgesTable} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func snapshotArgs(row SnapshotRow) []any {
	snap := row.Snapshot
	var futuresTS any
	if snap.FuturesTimestamp > 0 {
		futuresTS = time.UnixMilli(snap.FuturesTimestamp).UTC()
	}
	return []any{
		row.Time,
		snap.Symbol,
		int64(snap.BlockNumber),
		snap.AMMBaseAmount,
		snap.AMMUSDTAmount,
		snap.AMMCollectableBase,
		snap.AMMCollectableUSDT,
		snap.AMMCollectableValueUSDT,
		snap.FuturesPosition,
		snap.UnrealizedPnL,
		futuresTS,
		snap.BasePriceUSDT,
		snap.BaseDelta,
		snap.BaseDeltaRatio,
		snap.AMMTotalValueUSDT,
		snap.TotalValueUSDT,
		row.FundingRate,
	}
}

func (w *Writer) writeSnapshot(ctx context.Context, row SnapshotRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, block_number, amm_base_amount, amm_usdt_amount, amm_collectable_base,
		amm_collectable_usdt, amm_collectable_value_usdt, futures_position, unrealized_pnl,
		futures_ts, base_price_usdt, base_delta, base_delta_ratio, amm_total_value_usdt,
		total_value_usdt, funding_rate
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
	)`, w.table(snapshotsTable))
	if _, err := w.db.ExecContext(ctx, query, snapshotArgs(row)...); err != nil {
		w.log.Warn("timescale snapshot insert failed", zap.Error(err))
	}
}

func hedgeArgs(row HedgeRow) []any {
	var price any
	if row.Price != "" {
		price = row.Price
	}
	return []any{
		row.Time,
		row.Symbol,
		row.Kind,
		row.Side,
		row.Quantity,
		price,
		row.OrderID,
		row.ClientOrderID,
		int64(row.BlockNumber),
		row.BaseDelta,
		row.DryRun,
		row.Error,
	}
}

func (w *Writer) writeHedge(ctx context.Context, row HedgeRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, kind, side, quantity, price, order_id, client_order_id, block_number,
		base_delta, dry_run, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	)`, w.table(hedgesTable))
	if _, err := w.db.ExecContext(ctx, query, hedgeArgs(row)...); err != nil {
		w.log.Warn("timescale hedge insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return pgx.Identifier{w.schema, name}.Sanitize()
}
