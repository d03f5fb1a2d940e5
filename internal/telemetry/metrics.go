package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conveyor"

// Metrics — метрики конвейера деплоев.
//
// Nil *Metrics допустим: все методы становятся no-op.
type Metrics struct {
	httpRequests  *prometheus.CounterVec
	deployments   *prometheus.CounterVec
	finished      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	compiledNodes prometheus.Histogram
	registrations prometheus.Counter
}

// NewMetrics регистрирует метрики в registry.
// nil означает prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the API",
		}, []string{"method", "code"}),

		deployments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_requested_total",
			Help:      "Deployment triggers accepted, by trigger source",
		}, []string{"source"}), // source: info, pointer, event

		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_finished_total",
			Help:      "Deployments that reached a terminal status",
		}, []string{"status"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of orchestrator pipeline stages",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"stage", "status"}), // stage: resolve, compile, register, start

		compiledNodes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compiled_states",
			Help:      "Total number of states in compiled deployment graphs",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 8),
		}),

		registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_units_registered_total",
			Help:      "Execution units registered with the container service",
		}),
	}
}

// ObserveHTTPRequest учитывает обработанный HTTP запрос.
func (m *Metrics) ObserveHTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, statusClass(code)).Inc()
}

// DeploymentRequested учитывает принятый триггер.
func (m *Metrics) DeploymentRequested(source string) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(source).Inc()
}

// DeploymentFinished учитывает деплой в финальном статусе.
func (m *Metrics) DeploymentFinished(status string) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(status).Inc()
}

// ObserveStage записывает длительность этапа конвейера.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// ObserveCompiled записывает размер скомпилированного графа.
func (m *Metrics) ObserveCompiled(states int) {
	if m == nil {
		return
	}
	m.compiledNodes.Observe(float64(states))
}

// UnitRegistered учитывает регистрацию единицы выполнения.
func (m *Metrics) UnitRegistered() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
