package observability

import (
	"context"

	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reconciler's Prometheus collectors.
type Metrics struct {
	Subscriptions prometheus.Gauge
	Subscribes    prometheus.Counter
	Snapshots     *prometheus.CounterVec
	Fallbacks     *prometheus.CounterVec
	Clears        prometheus.Counter
	Loading       prometheus.Gauge
	Authenticated prometheus.Gauge
	LastAppliedAt prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rentsync_open_subscriptions",
			Help: "Number of open document subscriptions",
		}),
		Subscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentsync_subscriptions_opened_total",
			Help: "Total number of document subscriptions opened",
		}),
		Snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentsync_snapshots_total",
				Help: "Snapshots received, by outcome",
			},
			[]string{"outcome"},
		),
		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rentsync_fallback_fetches_total",
				Help: "One-shot fetches after a transport error, by result",
			},
			[]string{"result"},
		),
		Clears: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentsync_cache_clears_total",
			Help: "Total number of times the cached user was cleared",
		}),
		Loading: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rentsync_loading",
			Help: "1 while the cached user is loading",
		}),
		Authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rentsync_user_cached",
			Help: "1 while a user is cached",
		}),
		LastAppliedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rentsync_last_applied_updated_at_ms",
			Help: "updatedAt of the last applied snapshot, in unix milliseconds",
		}),
	}

	reg.MustRegister(
		m.Subscriptions,
		m.Subscribes,
		m.Snapshots,
		m.Fallbacks,
		m.Clears,
		m.Loading,
		m.Authenticated,
		m.LastAppliedAt,
	)
	return m
}

// Hooks records reconciler events.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSubscribe: func(context.Context, *domain.SubscriptionEvent) {
			m.Subscribes.Inc()
			m.Subscriptions.Inc()
		},
		OnUnsubscribe: func(context.Context, *domain.SubscriptionEvent) {
			m.Subscriptions.Dec()
		},
		OnApply: func(_ context.Context, e *domain.UpdateEvent) {
			m.Snapshots.WithLabelValues("applied").Inc()
			m.LastAppliedAt.Set(float64(e.Incoming))
		},
		OnDiscard: func(context.Context, *domain.UpdateEvent) {
			m.Snapshots.WithLabelValues("discarded").Inc()
		},
		OnClear: func(context.Context, *domain.UpdateEvent) {
			m.Clears.Inc()
		},
		OnFallback: func(_ context.Context, e *domain.FallbackEvent) {
			result := "ok"
			if e.Err != nil {
				result = "error"
			}
			m.Fallbacks.WithLabelValues(result).Inc()
		},
		OnStateChange: func(_ context.Context, s domain.CachedUser) {
			m.Loading.Set(boolToFloat(s.IsLoading))
			m.Authenticated.Set(boolToFloat(s.User != nil))
		},
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
