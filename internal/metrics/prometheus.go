package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const promNamespace = "lp_hedge_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	p := &Prometheus{
		registry: registry,
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}
	p.Metrics = &Metrics{
		Ticks:                   p.counter("ticks_total", "Total number of monitoring ticks."),
		TicksSkipped:            p.counter("ticks_skipped_total", "Ticks skipped because a snapshot could not be built."),
		HedgesPlaced:            p.counter("hedges_placed_total", "Hedge orders accepted by the exchange."),
		HedgesFailed:            p.counter("hedges_failed_total", "Hedge order placement failures."),
		HedgesCancelled:         p.counter("hedges_cancelled_total", "Resting hedge orders cancelled before a new hedge."),
		NotificationsSent:       p.counter("notifications_sent_total", "Notifications delivered."),
		NotificationsFailed:     p.counter("notifications_failed_total", "Notification delivery failures."),
		BaseDelta:               p.gauge("base_delta", "Net BASE exposure (AMM base + futures position)."),
		BaseDeltaRatio:          p.gauge("base_delta_ratio", "Net BASE exposure relative to the larger leg."),
		TotalValueUSDT:          p.gauge("total_value_usdt", "AMM value plus futures unrealized PnL."),
		AMMTotalValueUSDT:       p.gauge("amm_total_value_usdt", "Withdrawable AMM value."),
		AMMCollectableValueUSDT: p.gauge("amm_collectable_value_usdt", "Uncollected AMM fees."),
		FuturesPosition:         p.gauge("futures_position", "Signed futures position in BASE."),
		MarkPrice:               p.gauge("mark_price", "Futures mark price."),
		FundingRate:             p.gauge("funding_rate", "Current futures funding rate."),
		LastTickUnix:            p.gauge("last_tick_timestamp_seconds", "Unix time of the last completed tick."),
	}
	return p
}

func (p *Prometheus) counter(name, help string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
	p.registry.MustRegister(c)
	p.counters[name] = c
	return promCounter{c}
}

func (p *Prometheus) gauge(name, help string) Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
	p.registry.MustRegister(g)
	p.gauges[name] = g
	return promGauge{g}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes the registry on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr, path string, log *zap.Logger) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, p.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if log != nil {
		log.Info("metrics server listening", zap.String("addr", addr), zap.String("path", path))
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
