package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolbroker"

// Metrics holds the broker collectors.
type Metrics struct {
	registry *prometheus.Registry

	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	inflight          prometheus.Gauge
	fanouts           prometheus.Counter
	visibleTools      prometheus.Gauge
	connections       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time from dispatch to resolution of a tool execution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_inflight",
			Help:      "Executions dispatched and not yet resolved.",
		}),
		fanouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanouts_total",
			Help:      "Visible tool set pushes to consumers.",
		}),
		visibleTools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visible_tools",
			Help:      "Size of the last visible tool set pushed to consumers.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live connections by role.",
		}, []string{"role"}),
	}

	m.registry.MustRegister(
		m.executions,
		m.executionDuration,
		m.inflight,
		m.fanouts,
		m.visibleTools,
		m.connections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnExecutionStart: func(_ context.Context, e *domain.ExecutionEvent) {
			m.inflight.Inc()
		},
		OnExecutionEnd: func(_ context.Context, e *domain.ExecutionEvent) {
			m.inflight.Dec()
			m.executions.WithLabelValues(e.ToolName, string(e.Outcome)).Inc()
			m.executionDuration.WithLabelValues(e.ToolName).Observe(e.Duration.Seconds())
		},
		OnFanout: func(_ context.Context, e *domain.FanoutEvent) {
			m.fanouts.Inc()
			m.visibleTools.Set(float64(e.Visible))
		},
		OnConnection: func(_ context.Context, e *domain.ConnectionEvent) {
			if e.Connected {
				m.connections.WithLabelValues(e.Role).Inc()
			} else {
				m.connections.WithLabelValues(e.Role).Dec()
			}
		},
	}
}

// LogHooks returns lifecycle hooks that log every event at debug level,
// and finished executions that did not succeed at warn level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnExecutionStart: func(ctx context.Context, e *domain.ExecutionEvent) {
			logger.DebugContext(ctx, "execution_start",
				"execution_id", e.ExecutionID,
				"tool", e.ToolName,
				"provider", e.OwnerID,
			)
		},
		OnExecutionEnd: func(ctx context.Context, e *domain.ExecutionEvent) {
			level := slog.LevelDebug
			if e.Outcome != domain.OutcomeSuccess {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "execution_end",
				"execution_id", e.ExecutionID,
				"tool", e.ToolName,
				"provider", e.OwnerID,
				"outcome", e.Outcome,
				"duration", e.Duration,
			)
		},
		OnFanout: func(ctx context.Context, e *domain.FanoutEvent) {
			logger.DebugContext(ctx, "fanout", "visible", e.Visible, "consumers", e.Consumers)
		},
		OnConnection: func(ctx context.Context, e *domain.ConnectionEvent) {
			logger.DebugContext(ctx, "connection", "role", e.Role, "id", e.ID, "connected", e.Connected)
		},
	}
}

// Chain combines hooks so that each event reaches every non-nil callback in order.
func Chain(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		out.OnExecutionStart = chain(out.OnExecutionStart, h.OnExecutionStart)
		out.OnExecutionEnd = chain(out.OnExecutionEnd, h.OnExecutionEnd)
		out.OnFanout = chain(out.OnFanout, h.OnFanout)
		out.OnConnection = chain(out.OnConnection, h.OnConnection)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
