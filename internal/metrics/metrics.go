// Package metrics exposes pipeline and trader counters over HTTP for Prometheus.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the bot updates. Each instance owns its
// registry so tests and commands can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	KlinesIngested    prometheus.Counter
	SignalRowsWritten prometheus.Counter
	Signals           *prometheus.CounterVec // labels: side
	CycleDuration     *prometheus.HistogramVec
	CycleErrors       *prometheus.CounterVec // labels: stage
	ConsecutiveErrors prometheus.Gauge
	LastSignalBar     prometheus.Gauge // Unix seconds of the newest stored signal bar
	Orders            *prometheus.CounterVec // labels: side, mode=live|dry_run
}

// New registers all collectors under namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		KlinesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "klines_ingested_total",
			Help:      "Base-interval klines upserted into the store",
		}),
		SignalRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_rows_written_total",
			Help:      "Signal-interval rows upserted into the store",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Buy and sell flags found in refreshed rows",
		}, []string{"side"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Failed pipeline stages",
		}, []string{"stage"}),
		ConsecutiveErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_errors",
			Help:      "Consecutive failed cycles since the last success",
		}),
		LastSignalBar: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_signal_bar_timestamp_seconds",
			Help:      "Open time of the newest stored signal bar",
		}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders sent by the signal trader",
		}, []string{"side", "mode"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.KlinesIngested,
		m.SignalRowsWritten,
		m.Signals,
		m.CycleDuration,
		m.CycleErrors,
		m.ConsecutiveErrors,
		m.LastSignalBar,
		m.Orders,
	)
	return m
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.CycleDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Health tracks the last successful cycle for the /healthz endpoint.
type Health struct {
	mu          sync.RWMutex
	startedAt   time.Time
	lastSuccess time.Time
	lastError   string
	staleAfter  time.Duration
}

// NewHealth reports unhealthy when no cycle succeeded within staleAfter.
func NewHealth(staleAfter time.Duration) *Health {
	return &Health{startedAt: time.Now(), staleAfter: staleAfter}
}

func (h *Health) RecordSuccess(at time.Time) {
	h.mu.Lock()
	h.lastSuccess = at
	h.lastError = ""
	h.mu.Unlock()
}

func (h *Health) RecordError(err error) {
	h.mu.Lock()
	h.lastError = err.Error()
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	ref := h.lastSuccess
	if ref.IsZero() {
		ref = h.startedAt
	}
	if h.staleAfter > 0 && time.Since(ref) > h.staleAfter {
		status = "stale"
		code = http.StatusServiceUnavailable
	}

	body := struct {
		Status      string `json:"status"`
		Uptime      string `json:"uptime"`
		LastSuccess string `json:"last_success,omitempty"`
		LastError   string `json:"last_error,omitempty"`
	}{
		Status:    status,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		LastError: h.lastError,
	}
	if !h.lastSuccess.IsZero() {
		body.LastSuccess = h.lastSuccess.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *Health) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", health)
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background. Errors other than a clean shutdown are sent
// to errCh if it is not nil.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && errCh != nil {
			errCh <- err
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
