// Package metrics exposes lensbot's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lensbot"

type Metrics struct {
	registry *prometheus.Registry

	// Sourcing
	ProviderCalls     *prometheus.CounterVec
	ProviderAvailable *prometheus.GaugeVec
	FetchAttempts     prometheus.Histogram
	IdentityResets    *prometheus.CounterVec

	// Posting
	Cycles          *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	LastPost        *prometheus.GaugeVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by method and outcome",
		}, []string{"provider", "method", "outcome"}),
		ProviderAvailable: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_available",
			Help:      "1 if the provider is currently considered available",
		}, []string{"provider"}),
		FetchAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_fetch_attempts",
			Help:      "Provider attempts spent per pool fetch",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),
		IdentityResets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_usage_resets_total",
			Help:      "Times an identity exhausted its inventory and had its usage reset",
		}, []string{"identity"}),
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Orchestrator cycles by outcome",
		}, []string{"identity", "outcome"}),
		PublishDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Backend publish latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		LastPost: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_post_timestamp_seconds",
			Help:      "Unix time of the last confirmed post",
		}, []string{"identity"}),
	}
}

func (m *Metrics) ProviderCall(provider, method, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, method, outcome).Inc()
}

func (m *Metrics) SetProviderAvailable(provider string, available bool) {
	if m == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	m.ProviderAvailable.WithLabelValues(provider).Set(v)
}

func (m *Metrics) ObserveFetchAttempts(n int) {
	if m == nil {
		return
	}
	m.FetchAttempts.Observe(float64(n))
}

func (m *Metrics) IdentityReset(identity string) {
	if m == nil {
		return
	}
	m.IdentityResets.WithLabelValues(identity).Inc()
}

func (m *Metrics) Cycle(identity, outcome string) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(identity, outcome).Inc()
}

func (m *Metrics) ObservePublish(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PublishDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) Posted(identity string, at time.Time) {
	if m == nil {
		return
	}
	m.LastPost.WithLabelValues(identity).Set(float64(at.Unix()))
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
