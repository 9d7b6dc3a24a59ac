// Package telemetry exposes process-internal Prometheus metrics. It is an
// ambient observability concern, not a controller or API surface, so it
// is carried even though a REST/dashboard surface is out of scope.
//
// Grounded on other_examples' autovant-trading-bot execution_service.go use
// of prometheus/client_golang (GaugeVec/HistogramVec registered against a
// custom registry, served via promhttp), generalized from that file's
// paper-fill-specific metrics to this system's order/risk/fill pipeline.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds every counter/gauge/histogram this system exposes,
// registered against its own registry rather than the global default so
// tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	OrdersPlaced      *prometheus.CounterVec
	OrdersRejected    *prometheus.CounterVec
	FillsApplied      *prometheus.CounterVec
	OrderLatency      *prometheus.HistogramVec
	KillSwitchState   prometheus.Gauge
	OutboxPending     prometheus.Gauge
	OutboxDeadLettered prometheus.Counter
	SchedulerTaskErrors prometheus.Counter
}

// New builds and registers the metric set.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_orders_placed_total",
			Help: "Orders successfully placed, by symbol and side.",
		}, []string{"symbol", "side"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_orders_rejected_total",
			Help: "Orders rejected, by the risk check that failed.",
		}, []string{"check"}),
		FillsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradingcore_fills_applied_total",
			Help: "Fills applied, by symbol.",
		}, []string{"symbol"}),
		OrderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradingcore_order_submit_latency_seconds",
			Help:    "Latency between order placement and broker acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}, []string{"symbol"}),
		KillSwitchState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradingcore_kill_switch_state",
			Help: "Kill switch state: 0=NORMAL, 1=WARNING, 2=HALTED.",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradingcore_outbox_pending",
			Help: "Pending outbox events awaiting delivery.",
		}),
		OutboxDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradingcore_outbox_dead_lettered_total",
			Help: "Outbox events dead-lettered after exhausting delivery attempts.",
		}),
		SchedulerTaskErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradingcore_scheduler_task_errors_total",
			Help: "Scheduled strategy-evaluation tasks that errored or timed out.",
		}),
	}

	registry.MustRegister(
		m.OrdersPlaced, m.OrdersRejected, m.FillsApplied, m.OrderLatency,
		m.KillSwitchState, m.OutboxPending, m.OutboxDeadLettered, m.SchedulerTaskErrors,
	)

	return m
}

// Serve starts an HTTP server exposing /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("❌ telemetry server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("📈 telemetry server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// KillSwitchStateValue maps the named kill-switch states to the gauge's
// numeric encoding.
func KillSwitchStateValue(state string) float64 {
	switch state {
	case "WARNING":
		return 1
	case "HALTED":
		return 2
	default:
		return 0
	}
}
