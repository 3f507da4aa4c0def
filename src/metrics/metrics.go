// Package metrics exports capture and pipeline counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tooltip-ocr/src/capture"
)

// Metrics implements capture.Recorder and pipeline.Recorder on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	captureAttempts *prometheus.CounterVec
	captureFailures *prometheus.CounterVec
	captureSeconds  *prometheus.HistogramVec
	stageSeconds    *prometheus.HistogramVec
	outcomes        *prometheus.CounterVec
	requests        prometheus.Gauge
	logDrops        prometheus.GaugeFunc
}

// New creates the collectors. dropped, when set, reports log entries lost by
// the log channel.
func New(dropped func() uint64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		captureAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltip_capture_attempts_total",
			Help: "Capture attempts per method",
		}, []string{"method"}),
		captureFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltip_capture_failures_total",
			Help: "Failed capture attempts per method and reason",
		}, []string{"method", "reason"}),
		captureSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tooltip_capture_seconds",
			Help:    "Time spent in one capture attempt",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tooltip_stage_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"stage"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tooltip_requests_total",
			Help: "Tooltip requests by outcome",
		}, []string{"outcome"}),
		requests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tooltip_requests_in_flight",
			Help: "Tooltip requests currently running",
		}),
	}
	m.registry.MustRegister(m.captureAttempts, m.captureFailures, m.captureSeconds,
		m.stageSeconds, m.outcomes, m.requests)
	if dropped != nil {
		m.logDrops = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tooltip_log_entries_dropped",
			Help: "Log entries dropped because the host consumer fell behind",
		}, func() float64 { return float64(dropped()) })
		m.registry.MustRegister(m.logDrops)
	}
	return m
}

func (m *Metrics) ObserveCapture(method capture.Method, d time.Duration, err error) {
	label := string(method)
	m.captureAttempts.WithLabelValues(label).Inc()
	m.captureSeconds.WithLabelValues(label).Observe(d.Seconds())
	if err != nil {
		m.captureFailures.WithLabelValues(label, reason(err)).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveOutcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

// RequestStarted bumps the in-flight gauge; call the returned func when done.
func (m *Metrics) RequestStarted() func() {
	m.requests.Inc()
	return m.requests.Dec
}

func reason(err error) string {
	switch {
	case errors.Is(err, capture.ErrAccessLost):
		return "access_lost"
	case errors.Is(err, capture.ErrWaitTimeout):
		return "timeout"
	case errors.Is(err, capture.ErrUnsupported):
		return "unsupported"
	}
	return "other"
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("metrics: serving on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
