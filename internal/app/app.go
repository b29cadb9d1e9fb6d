package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/binance/rest"
	"lp-hedge-bot/internal/binance/ws"
	"lp-hedge-bot/internal/chain"
	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/exec"
	"lp-hedge-bot/internal/market"
	"lp-hedge-bot/internal/metrics"
	"lp-hedge-bot/internal/state"
	"lp-hedge-bot/internal/state/sqlite"
	"lp-hedge-bot/internal/strategy"
	"lp-hedge-bot/internal/timescale"
	"lp-hedge-bot/internal/uniswap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	markPriceMaxAge = 2 * time.Minute
	recentHedgeScan = 20
)

// AmmSource reads the LP side of the hedge.
type AmmSource interface {
	Holding(ctx context.Context) (strategy.AmmHolding, error)
}

type FuturesSource interface {
	FuturesHolding(ctx context.Context, symbol string) (strategy.FuturesHolding, error)
}

type HedgeExecutor interface {
	Execute(ctx context.Context, action strategy.HedgeAction, clientOrderID string) (*exec.HedgeResult, error)
	CancelIfOpen(ctx context.Context, symbol, clientOrderID string) (bool, error)
}

// Messenger delivers notifications and serves operator commands.
type Messenger interface {
	Send(ctx context.Context, message string) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]alerts.Update, error)
}

// Store is the key/value state plus the hedge audit log.
type Store interface {
	state.Store
	state.HedgeLog
}

// Deps are the collaborators of an App. Nil optional fields disable the feature.
type Deps struct {
	Store     Store
	AMM       AmmSource
	Futures   FuturesSource
	Hedger    HedgeExecutor
	Feed      *market.MarkPriceFeed
	Metrics   *metrics.Metrics
	Alerts    Messenger
	Timescale *timescale.Writer
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     Store
	amm       AmmSource
	futures   FuturesSource
	hedger    HedgeExecutor
	feed      *market.MarkPriceFeed
	metrics   *metrics.Metrics
	prom      *metrics.Prometheus
	alerts    Messenger
	timescale *timescale.Writer
	closers   []func()
	now       func() time.Time

	mu           sync.Mutex
	notify       state.NotifyState
	lastSnapshot *strategy.MonitoringSnapshot

	opsMu             sync.RWMutex
	paused            bool
	thresholdOverride *Thresholds
	operatorWarned    bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), cfg.Chain.Timeout)
	defer cancel()
	chainClient, err := chain.New(dialCtx, cfg.Chain.RPCURL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	manager := NewPositionManager(cfg.Chain, chainClient, log)
	source := NewAmmSource(cfg.Chain, manager, log)

	restClient := rest.New(BinanceOptions(cfg.Binance), log)
	hedger := NewHedger(cfg.Binance, restClient, store, log)

	var stream market.Stream
	if cfg.Binance.MarkStream {
		stream = ws.New(cfg.Binance.WSURL, cfg.Binance.ReconnectDelay, cfg.Binance.PingInterval, log)
	}
	feed := market.NewMarkPriceFeed(stream, log)

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		chainClient.Close()
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	application := NewWithDeps(cfg, log, Deps{
		Store:     store,
		AMM:       source,
		Futures:   restClient,
		Hedger:    hedger,
		Feed:      feed,
		Metrics:   m,
		Alerts:    alerts.NewTelegram(cfg.Telegram, log),
		Timescale: tsWriter,
	})
	application.prom = prom
	application.closers = append(application.closers, chainClient.Close)
	return application, nil
}

func NewWithDeps(cfg *config.Config, log *zap.Logger, deps Deps) *App {
	if log == nil {
		log = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &App{
		cfg:       cfg,
		log:       log,
		store:     deps.Store,
		amm:       deps.AMM,
		futures:   deps.Futures,
		hedger:    deps.Hedger,
		feed:      deps.Feed,
		metrics:   m,
		alerts:    deps.Alerts,
		timescale: deps.Timescale,
		now:       time.Now,
	}
}

// BinanceOptions maps the binance config section onto REST client options.
func BinanceOptions(cfg config.BinanceConfig) rest.Options {
	return rest.Options{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		RecvWindow:        cfg.RecvWindow,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

func ChainPair(cfg config.ChainConfig) uniswap.Pair {
	return uniswap.Pair{
		Base: common.HexToAddress(strings.TrimSpace(cfg.BaseToken)),
		USDT: common.HexToAddress(strings.TrimSpace(cfg.USDTToken)),
	}
}

func NewPositionManager(cfg config.ChainConfig, caller uniswap.Caller, log *zap.Logger) *uniswap.PositionManager {
	return uniswap.NewPositionManager(caller, common.HexToAddress(strings.TrimSpace(cfg.PositionManager)), log)
}

func NewAmmSource(cfg config.ChainConfig, manager *uniswap.PositionManager, log *zap.Logger) *uniswap.Source {
	owner := common.HexToAddress(strings.TrimSpace(cfg.Owner))
	return uniswap.NewSource(manager, owner, ChainPair(cfg), cfg.BaseDecimals, cfg.USDTDecimals, log)
}

// NewHedger builds the order path: REST client, retrying idempotent executor, hedger.
func NewHedger(cfg config.BinanceConfig, client *rest.Client, store state.Store, log *zap.Logger) *exec.Hedger {
	adapter := &binanceAdapter{client: client}
	executor := exec.New(adapter, store, log)
	executor.SetRetryPolicy(isRetryable)
	executor.SetBackoff(cfg.OrderBackoff, cfg.OrderAttempts)
	return exec.NewHedger(executor, adapter, log)
}

func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	a.loadNotifyState(ctx)
	if a.feed != nil {
		if err := a.feed.Start(ctx, a.cfg.Strategy.Symbol); err != nil {
			a.log.Warn("mark price stream unavailable", zap.Error(err))
		}
	}
	if a.prom != nil {
		go func() {
			if err := a.prom.Serve(ctx, a.cfg.Metrics.Address, a.cfg.Metrics.Path, a.log); err != nil {
				a.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}
	a.timescale.Start(ctx)
	a.startOperator(ctx)

	a.log.Info("monitor started",
		zap.String("symbol", a.cfg.Strategy.Symbol),
		zap.Duration("interval", a.cfg.Strategy.Interval),
		zap.Bool("hedge_enabled", a.cfg.Strategy.HedgeEnabled),
		zap.Bool("dry_run", a.cfg.Strategy.DryRun),
	)
	if err := a.tick(ctx); err != nil {
		a.log.Warn("monitor tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(a.cfg.Strategy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.log.Warn("monitor tick failed", zap.Error(err))
			}
		}
	}
}

func (a *App) Close() {
	if a.timescale != nil {
		if err := a.timescale.Close(); err != nil {
			a.log.Warn("timescale close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close failed", zap.Error(err))
		}
	}
	for _, closer := range a.closers {
		closer()
	}
	a.closers = nil
}

// Snapshot reads both sources concurrently and builds one monitoring snapshot.
func (a *App) Snapshot(ctx context.Context) (strategy.MonitoringSnapshot, error) {
	var (
		amm strategy.AmmHolding
		fut strategy.FuturesHolding
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		holding, err := a.amm.Holding(gctx)
		if err != nil {
			return fmt.Errorf("amm holding: %w", err)
		}
		amm = holding
		return nil
	})
	g.Go(func() error {
		holding, err := a.futures.FuturesHolding(gctx, a.cfg.Strategy.Symbol)
		if err != nil {
			return fmt.Errorf("futures holding: %w", err)
		}
		fut = holding
		return nil
	})
	if err := g.Wait(); err != nil {
		return strategy.MonitoringSnapshot{}, err
	}
	return strategy.BuildSnapshot(a.cfg.Strategy.Symbol, amm, fut)
}

// StatusReport renders the current position as a periodic report without side effects.
func (a *App) StatusReport(ctx context.Context) (string, error) {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return a.render(strategy.NotificationEvent{Kind: strategy.NotifyPeriodic, Snapshot: snap}), nil
}

func (a *App) tick(ctx context.Context) error {
	a.metrics.Ticks.Inc()
	now := a.now().UTC()
	snap, err := a.Snapshot(ctx)
	if err != nil {
		a.metrics.TicksSkipped.Inc()
		return fmt.Errorf("tick skipped: %w", err)
	}
	a.recordSnapshot(ctx, snap, now)

	limits := a.thresholds()
	action := strategy.Decide(snap, limits.Ratio, limits.Delta)
	a.log.Info("monitor tick",
		zap.Uint64("block", snap.BlockNumber),
		zap.String("base_delta", snap.BaseDelta.String()),
		zap.String("base_delta_ratio", snap.BaseDeltaRatio.String()),
		zap.String("total_value_usdt", snap.TotalValueUSDT.String()),
		zap.String("action", string(action.Kind)),
		zap.String("quantity", action.Quantity),
	)
	a.maybeHedge(ctx, snap, action, now)
	a.notifyTick(ctx, snap, now)
	a.metrics.LastTickUnix.Set(float64(now.Unix()))
	return nil
}

func (a *App) recordSnapshot(ctx context.Context, snap strategy.MonitoringSnapshot, now time.Time) {
	a.metrics.BaseDelta.Set(snap.BaseDelta.InexactFloat64())
	a.metrics.BaseDeltaRatio.Set(snap.BaseDeltaRatio.InexactFloat64())
	a.metrics.TotalValueUSDT.Set(snap.TotalValueUSDT.InexactFloat64())
	a.metrics.AMMTotalValueUSDT.Set(snap.AMMTotalValueUSDT.InexactFloat64())
	a.metrics.AMMCollectableValueUSDT.Set(snap.AMMCollectableValueUSDT.InexactFloat64())
	a.metrics.FuturesPosition.Set(snap.FuturesPosition.InexactFloat64())
	a.metrics.MarkPrice.Set(snap.BasePriceUSDT.InexactFloat64())

	row := timescale.SnapshotRow{Time: now, Snapshot: snap}
	if mark, ok := a.markPrice(); ok {
		a.metrics.FundingRate.Set(mark.FundingRate.InexactFloat64())
		row.FundingRate = decimal.NewNullDecimal(mark.FundingRate)
	}

	a.mu.Lock()
	last := snap
	a.lastSnapshot = &last
	a.mu.Unlock()
	if err := state.SaveLastSnapshot(ctx, a.store, snap); err != nil {
		a.log.Warn("failed to persist snapshot", zap.Error(err))
	}
	a.timescale.EnqueueSnapshot(row)
}

func (a *App) maybeHedge(ctx context.Context, snap strategy.MonitoringSnapshot, action strategy.HedgeAction, now time.Time) {
	if action.IsNone() {
		return
	}
	if !a.cfg.Strategy.HedgeEnabled {
		a.log.Debug("hedge disabled, action not executed", zap.String("action", string(action.Kind)))
		return
	}
	if a.isPaused() {
		a.log.Info("hedging paused, action not executed", zap.String("action", string(action.Kind)))
		return
	}
	a.adoptRecordedHedge(ctx, action.Symbol)
	if a.hedgeCooldownActive(now) {
		a.log.Info("hedge cooldown active", zap.String("action", string(action.Kind)))
		return
	}
	if !a.cfg.Strategy.DryRun && !a.priorHedgeSettled(ctx, action.Symbol) {
		return
	}
	rec := state.HedgeRecord{
		Time:          now,
		Symbol:        action.Symbol,
		Kind:          string(action.Kind),
		Quantity:      action.Quantity,
		ClientOrderID: clientOrderID(snap, action),
		BlockNumber:   snap.BlockNumber,
		DryRun:        a.cfg.Strategy.DryRun,
	}
	if rec.DryRun {
		a.log.Info("dry run hedge", zap.String("action", rec.Kind), zap.String("quantity", rec.Quantity))
	} else {
		result, err := a.hedger.Execute(ctx, action, rec.ClientOrderID)
		if err != nil {
			a.metrics.HedgesFailed.Inc()
			rec.Error = err.Error()
			a.log.Warn("hedge order failed", zap.String("action", rec.Kind), zap.Error(err))
		} else if result != nil {
			a.metrics.HedgesPlaced.Inc()
			rec.Side = string(result.Order.Side)
			rec.Price = result.Order.Price
			rec.OrderID = result.OrderID
		}
	}
	if rec.Error == "" {
		a.mu.Lock()
		a.notify.LastHedgeAt = now
		a.mu.Unlock()
	}
	a.recordHedge(ctx, rec, snap)
	a.send(ctx, hedgeMessage(rec, a.cfg.Strategy.BaseAsset))
}

// priorHedgeSettled makes sure the last live hedge order is no longer resting.
// An order that was still open is cancelled and the new hedge waits for the next
// tick, whose snapshot includes whatever part of it filled.
func (a *App) priorHedgeSettled(ctx context.Context, symbol string) bool {
	prior, ok, err := a.lastLiveHedge(ctx, symbol)
	if err != nil {
		a.log.Warn("hedge log unavailable, hedge deferred", zap.Error(err))
		return false
	}
	if !ok {
		return true
	}
	cancelled, err := a.hedger.CancelIfOpen(ctx, symbol, prior.ClientOrderID)
	if err != nil {
		a.log.Warn("prior hedge order unresolved, hedge deferred", zap.String("cloid", prior.ClientOrderID), zap.Error(err))
		return false
	}
	if cancelled {
		a.metrics.HedgesCancelled.Inc()
		a.send(ctx, fmt.Sprintf("[LP hedge] cancelled resting %s order %s (%s); re-evaluating next tick",
			prior.Kind, prior.OrderID, prior.ClientOrderID))
		return false
	}
	return true
}

// adoptRecordedHedge moves LastHedgeAt forward to hedges recorded by other
// processes, such as manual orders from the CLI.
func (a *App) adoptRecordedHedge(ctx context.Context, symbol string) {
	rec, ok, err := a.lastLiveHedge(ctx, symbol)
	if err != nil || !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec.Time.After(a.notify.LastHedgeAt) {
		a.notify.LastHedgeAt = rec.Time
	}
}

// ManualHedge places an operator-requested order outside the monitor loop and
// records it in the hedge log, where the monitor's cooldown and resting-order
// checks pick it up.
func (a *App) ManualHedge(ctx context.Context, action strategy.HedgeAction) (state.HedgeRecord, error) {
	if a.hedger == nil {
		return state.HedgeRecord{}, errors.New("hedger is not configured")
	}
	now := a.now()
	rec := state.HedgeRecord{
		Time:          now,
		Symbol:        action.Symbol,
		Kind:          string(action.Kind),
		Quantity:      action.Quantity,
		ClientOrderID: fmt.Sprintf("lph-manual-%d", now.UnixMilli()),
	}
	result, err := a.hedger.Execute(ctx, action, rec.ClientOrderID)
	if err != nil {
		rec.Error = err.Error()
	} else if result != nil {
		rec.Side = string(result.Order.Side)
		rec.Price = result.Order.Price
		rec.OrderID = result.OrderID
	}
	a.recordHedge(ctx, rec, strategy.MonitoringSnapshot{})
	return rec, err
}

func (a *App) lastLiveHedge(ctx context.Context, symbol string) (state.HedgeRecord, bool, error) {
	if a.store == nil {
		return state.HedgeRecord{}, false, nil
	}
	recent, err := a.store.RecentHedges(ctx, recentHedgeScan)
	if err != nil {
		return state.HedgeRecord{}, false, err
	}
	for _, rec := range recent {
		if rec.DryRun || rec.Error != "" || rec.OrderID == "" || rec.Symbol != symbol {
			continue
		}
		return rec, true, nil
	}
	return state.HedgeRecord{}, false, nil
}

func (a *App) recordHedge(ctx context.Context, rec state.HedgeRecord, snap strategy.MonitoringSnapshot) {
	if a.store != nil {
		if err := a.store.RecordHedge(ctx, rec); err != nil {
			a.log.Warn("failed to record hedge", zap.Error(err))
		}
	}
	a.timescale.EnqueueHedge(timescale.HedgeRow{
		Time:          rec.Time,
		Symbol:        rec.Symbol,
		Kind:          rec.Kind,
		Side:          rec.Side,
		Quantity:      rec.Quantity,
		Price:         rec.Price,
		OrderID:       rec.OrderID,
		ClientOrderID: rec.ClientOrderID,
		BlockNumber:   rec.BlockNumber,
		BaseDelta:     snap.BaseDelta,
		DryRun:        rec.DryRun,
		Error:         rec.Error,
	})
}

func (a *App) hedgeCooldownActive(now time.Time) bool {
	cooldown := a.cfg.Strategy.HedgeCooldown
	if cooldown <= 0 {
		return false
	}
	a.mu.Lock()
	last := a.notify.LastHedgeAt
	a.mu.Unlock()
	return !last.IsZero() && now.Sub(last) < cooldown
}

// notifyTick evaluates the notification policy and delivers what is due. Alerts
// for a persisting breach repeat at most once per alert_repeat.
func (a *App) notifyTick(ctx context.Context, snap strategy.MonitoringSnapshot, now time.Time) {
	a.mu.Lock()
	ns := withReference(a.notify, a.cfg.Notify.DrawdownReferenceUSDT, snap.TotalValueUSDT)
	a.mu.Unlock()

	events := strategy.EvaluateNotifications(snap, a.policy(), ns.Prior(), now)
	var exposure, drawdown bool
	for _, event := range events {
		switch event.Kind {
		case strategy.NotifyPeriodic:
			if a.send(ctx, a.render(event)) {
				ns.PeriodicSentAt = now
			}
		case strategy.NotifyExposureAlert:
			exposure = true
			if repeatDue(ns.ExposureAlertAt, now, a.cfg.Notify.AlertRepeat) && a.send(ctx, a.render(event)) {
				ns.ExposureAlertAt = now
			}
		case strategy.NotifyDrawdownAlert:
			drawdown = true
			if repeatDue(ns.DrawdownAlertAt, now, a.cfg.Notify.AlertRepeat) && a.send(ctx, a.render(event)) {
				ns.DrawdownAlertAt = now
			}
		}
	}
	if !exposure {
		ns.ExposureAlertAt = time.Time{}
	}
	if !drawdown {
		ns.DrawdownAlertAt = time.Time{}
	}

	a.mu.Lock()
	ns.LastHedgeAt = a.notify.LastHedgeAt
	a.notify = ns
	a.mu.Unlock()
	if err := state.SaveNotifyState(ctx, a.store, ns); err != nil {
		a.log.Warn("failed to persist notify state", zap.Error(err))
	}
}

// withReference fixes the drawdown reference: a configured value always wins,
// otherwise the first observed total is kept.
func withReference(ns state.NotifyState, configured, total decimal.Decimal) state.NotifyState {
	if configured.IsPositive() {
		ns.ReferenceValueUSDT = configured
		ns.HasReference = true
		return ns
	}
	if !ns.HasReference {
		ns.ReferenceValueUSDT = total
		ns.HasReference = true
	}
	return ns
}

func repeatDue(lastSent, now time.Time, repeat time.Duration) bool {
	if lastSent.IsZero() {
		return true
	}
	return now.Sub(lastSent) >= repeat
}

func (a *App) policy() strategy.NotificationPolicy {
	return strategy.NotificationPolicy{
		MinInterval:        a.cfg.Notify.Interval,
		DeviationThreshold: a.thresholds().Deviation,
		DrawdownThreshold:  a.cfg.Notify.DrawdownThreshold,
		DrawdownMode:       strategy.DrawdownMode(a.cfg.Notify.DrawdownMode),
	}
}

func (a *App) render(event strategy.NotificationEvent) string {
	msg := strategy.RenderMessage(event, a.cfg.Strategy.BaseAsset)
	if line := a.fundingLine(); line != "" {
		msg += "\n" + line
	}
	return msg
}

func (a *App) fundingLine() string {
	mark, ok := a.markPrice()
	if !ok {
		return ""
	}
	line := "Funding rate: " + mark.FundingRate.String()
	if !mark.NextFundingTime.IsZero() {
		line += " (next " + mark.NextFundingTime.UTC().Format("15:04 MST") + ")"
	}
	return line
}

func (a *App) markPrice() (market.MarkPrice, bool) {
	if a.feed == nil {
		return market.MarkPrice{}, false
	}
	return a.feed.Fresh(a.cfg.Strategy.Symbol, markPriceMaxAge)
}

// send delivers one message and reports whether it went out.
func (a *App) send(ctx context.Context, msg string) bool {
	if a.alerts == nil {
		a.log.Info("notification", zap.String("message", msg))
		return true
	}
	if err := a.alerts.Send(ctx, msg); err != nil {
		a.metrics.NotificationsFailed.Inc()
		a.log.Warn("notification failed", zap.Error(err))
		return false
	}
	a.metrics.NotificationsSent.Inc()
	return true
}

func (a *App) loadNotifyState(ctx context.Context) {
	ns, ok, err := state.LoadNotifyState(ctx, a.store)
	if err != nil {
		a.log.Warn("failed to load notify state", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	a.mu.Lock()
	a.notify = ns
	a.mu.Unlock()
	a.log.Info("notify state restored",
		zap.Time("periodic_sent_at", ns.PeriodicSentAt),
		zap.String("reference_value_usdt", ns.ReferenceValueUSDT.String()),
	)
}

// clientOrderID is stable for one block so a retried tick cannot double-place.
func clientOrderID(snap strategy.MonitoringSnapshot, action strategy.HedgeAction) string {
	kind := "open"
	if action.Kind == strategy.ActionCloseSell {
		kind = "close"
	}
	return fmt.Sprintf("lph-%s-%d-%s", strings.ToLower(action.Symbol), snap.BlockNumber, kind)
}

func hedgeMessage(rec state.HedgeRecord, baseAsset string) string {
	head := "[LP hedge] " + rec.Kind + " " + rec.Quantity + " " + baseAsset + " on " + rec.Symbol
	switch {
	case rec.DryRun:
		return head + " (dry run, not sent)"
	case rec.Error != "":
		return head + " failed: " + rec.Error
	default:
		return fmt.Sprintf("%s\n%s @ %s, order %s", head, rec.Side, rec.Price, rec.OrderID)
	}
}

type binanceAdapter struct {
	client *rest.Client
}

func (b *binanceAdapter) PlaceOrder(ctx context.Context, order exec.Order) (string, error) {
	resp, err := b.client.PlaceOrder(ctx, rest.OrderRequest{
		Symbol:        order.Symbol,
		Side:          rest.Side(order.Side),
		Quantity:      order.Quantity,
		Price:         order.Price,
		ReduceOnly:    order.ReduceOnly,
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (b *binanceAdapter) QueryOrder(ctx context.Context, symbol, clientOrderID string) (exec.OrderState, error) {
	resp, err := b.client.QueryOrder(ctx, symbol, clientOrderID)
	if err != nil {
		var apiErr *rest.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoSuchOrder {
			return exec.OrderState{}, fmt.Errorf("%w: %w", exec.ErrOrderNotFound, err)
		}
		return exec.OrderState{}, err
	}
	return exec.OrderState{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Status:      resp.Status,
		ExecutedQty: resp.ExecutedQty.String(),
	}, nil
}

func (b *binanceAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", orderID, err)
	}
	return b.client.CancelOrder(ctx, symbol, id)
}

func (b *binanceAdapter) Quote(ctx context.Context, symbol string) (exec.Quote, error) {
	ticker, err := b.client.BookTicker(ctx, symbol)
	if err != nil {
		return exec.Quote{}, err
	}
	return exec.Quote{Bid: ticker.BidPrice, Ask: ticker.AskPrice}, nil
}

// Binance error codes. Disconnected and timestamp errors are transient on an
// otherwise valid request.
const (
	codeDisconnected = -1001
	codeTimestamp    = -1021
	codeNoSuchOrder  = -2013
)

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Code == codeDisconnected || apiErr.Code == codeTimestamp
	}
	return true
}
