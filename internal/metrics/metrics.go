// Package metrics exposes queue and drain activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/stockpro/internal/engine"
	"github.com/roach88/stockpro/internal/queue"
)

const namespace = "stockpro"

// Metrics holds the collectors on a private registry so tests and several
// instances never collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	queueLength    prometheus.Gauge
	replayed       *prometheus.CounterVec
	replayDuration *prometheus.HistogramVec
	evicted        *prometheus.CounterVec
	passes         *prometheus.CounterVec
	passDuration   prometheus.Histogram
	lastSuccess    prometheus.Gauge
}

var _ engine.Observer = (*Metrics)(nil)

// New registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_operations",
			Help:      "Operations waiting to be replayed.",
		}),
		replayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operations_replayed_total",
			Help:      "Replay attempts by operation kind and outcome.",
		}, []string{"kind", "outcome"}),
		replayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "replay_duration_seconds",
			Help:      "Duration of one remote replay call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		evicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "operations_evicted_total",
			Help:      "Operations dropped from the queue without being applied.",
		}, []string{"kind", "code"}),
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drain_passes_total",
			Help:      "Drain passes by stop reason.",
		}, []string{"stop_reason"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drain_duration_seconds",
			Help:      "Duration of a drain pass, refresh included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_drained_timestamp_seconds",
			Help:      "Unix time of the last pass that emptied the queue.",
		}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// QueueLength records the queue length. Pass it to queue.Subscribe.
func (m *Metrics) QueueLength(n int) {
	m.queueLength.Set(float64(n))
}

func (m *Metrics) OperationReplayed(kind queue.Kind, outcome string, d time.Duration) {
	m.replayed.WithLabelValues(string(kind), outcome).Inc()
	m.replayDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) OperationEvicted(kind queue.Kind, code engine.ReplayErrorCode) {
	m.evicted.WithLabelValues(string(kind), string(code)).Inc()
}

func (m *Metrics) PassFinished(r engine.Report, d time.Duration) {
	m.passes.WithLabelValues(string(r.StopReason)).Inc()
	if r.Skipped {
		return
	}
	m.passDuration.Observe(d.Seconds())
	if r.StopReason == engine.StopDrained {
		m.lastSuccess.SetToCurrentTime()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
