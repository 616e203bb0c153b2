// Package metrics exposes Prometheus metrics for rule executions.
package metrics

import (
	"sync"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ActionsTotal      *prometheus.CounterVec
	ActionDuration    *prometheus.HistogramVec
	RecipientErrors   *prometheus.CounterVec
	PoolRejections    prometheus.Counter
	PoolInFlight      prometheus.Gauge
	EventsReceived    *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	ActiveWorkflows   prometheus.Gauge
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			ExecutionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ruleflow_executions_total",
					Help: "Total number of finalized executions",
				},
				[]string{"workflow_id", "status"},
			),
			ExecutionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ruleflow_execution_duration_seconds",
					Help:    "Execution duration from pending to a terminal state in seconds",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to 41s
				},
				[]string{"workflow_id"},
			),
			ActionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ruleflow_actions_total",
					Help: "Total number of action results",
				},
				[]string{"action_type", "status", "error_kind"},
			),
			ActionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ruleflow_action_duration_seconds",
					Help:    "Action execution duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"action_type"},
			),
			RecipientErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ruleflow_recipient_errors_total",
					Help: "Total number of recipient descriptors that failed to resolve",
				},
				[]string{"action_type"},
			),
			PoolRejections: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ruleflow_pool_rejections_total",
					Help: "Total number of executions rejected by a saturated worker pool",
				},
			),
			PoolInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ruleflow_pool_in_flight",
					Help: "Number of executions running or queued in the worker pool",
				},
			),
			EventsReceived: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ruleflow_events_received_total",
					Help: "Total number of inbound events",
				},
				[]string{"entity_type", "operation"},
			),
			RetriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ruleflow_retries_total",
					Help: "Total number of manual action retries",
				},
				[]string{"action_type", "status"},
			),
			ActiveWorkflows: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ruleflow_active_workflows",
					Help: "Number of active workflow definitions in the current snapshot",
				},
			),
		}
	})

	return sharedMetrics
}

// RecordAction records one action result
func (m *Metrics) RecordAction(result models.ActionResult) {
	m.ActionsTotal.WithLabelValues(result.ActionType, string(result.Status), string(result.ErrorKind)).Inc()

	if !result.StartedAt.IsZero() && !result.CompletedAt.IsZero() {
		m.ActionDuration.WithLabelValues(result.ActionType).Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())
	}
}

// RecordRecipientErrors records descriptors that resolved to nothing
func (m *Metrics) RecordRecipientErrors(actionType string, count int) {
	if count > 0 {
		m.RecipientErrors.WithLabelValues(actionType).Add(float64(count))
	}
}

// RecordExecution records a finalized execution
func (m *Metrics) RecordExecution(record *models.ExecutionRecord) {
	m.ExecutionsTotal.WithLabelValues(record.WorkflowID, string(record.Status)).Inc()

	if !record.CompletedAt.IsZero() {
		m.ExecutionDuration.WithLabelValues(record.WorkflowID).Observe(record.CompletedAt.Sub(record.StartedAt).Seconds())
	}
}

// RecordRetry records a manual retry result
func (m *Metrics) RecordRetry(result models.ActionResult) {
	m.RetriesTotal.WithLabelValues(result.ActionType, string(result.Status)).Inc()
}

// RecordEvent records an inbound event
func (m *Metrics) RecordEvent(event models.Event) {
	m.EventsReceived.WithLabelValues(event.EntityType, string(event.Operation)).Inc()
}

// RecordPoolRejection records a saturation rejection
func (m *Metrics) RecordPoolRejection() {
	m.PoolRejections.Inc()
}

// SetPoolInFlight sets the number of pending executions
func (m *Metrics) SetPoolInFlight(n int64) {
	m.PoolInFlight.Set(float64(n))
}

// SetActiveWorkflows sets the number of active definitions
func (m *Metrics) SetActiveWorkflows(n int) {
	m.ActiveWorkflows.Set(float64(n))
}
