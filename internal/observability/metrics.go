package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	WorkflowsSubmitted prometheus.Counter
	WorkflowsDrained   prometheus.Counter
	PendingWorkflows   prometheus.Gauge
	TaskExecutions     *prometheus.CounterVec
	ExecutionLatency   *prometheus.HistogramVec
	StreamClients      prometheus.Gauge
	WSMessages         *prometheus.CounterVec
	WSWriteErrors      *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the instruments on reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkflowsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_submitted_total",
			Help:      "Workflow descriptions accepted by the intake channel.",
		}),
		WorkflowsDrained: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_drained_total",
			Help:      "Workflow descriptions handed to consumers.",
		}),
		PendingWorkflows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_pending",
			Help:      "Workflow descriptions waiting for the next drain.",
		}),
		TaskExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_executions_total",
			Help:      "Task executions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ExecutionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_execution_latency_ms",
			Help:      "Task execution latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 1250, 1500, 1750, 2000, 3000, 5000},
		}, []string{"kind"}),
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected event stream clients.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by stage.",
		}, []string{"stage"}),
	}
}

func (m *Metrics) ObserveExecution(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskExecutions.WithLabelValues(kind, outcome).Inc()
	m.ExecutionLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
