// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Flow metrics
	FlowsTotal   *prometheus.CounterVec
	FlowDuration *prometheus.HistogramVec

	// Step metrics
	StepsTotal  *prometheus.CounterVec
	StepLatency *prometheus.HistogramVec
	GasUsed     *prometheus.HistogramVec

	// Recovery metrics
	RecoveryActionsTotal *prometheus.CounterVec
	ManualInterventions  prometheus.Counter

	// Batch metrics
	BatchesSubmitted *prometheus.CounterVec
	BatchSize        prometheus.Histogram

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	TxConfirmWait  prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulFlow prometheus.Gauge
	PoolDiscovered     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lp_agent"
	}

	return &Metrics{
		// Flow metrics
		FlowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "flows_total",
			Help:      "Total number of flows by kind and status",
		}, []string{"flow", "status"}),
		FlowDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "flow_duration_seconds",
			Help:      "Flow execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"flow"}),

		// Step metrics
		StepsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "steps_total",
			Help:      "Total number of executed steps by operation and status",
		}, []string{"op", "status"}),
		StepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "step_latency_seconds",
			Help:      "Step execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		GasUsed: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "step_gas_used",
			Help:      "Gas consumed per step",
			Buckets:   []float64{21_000, 50_000, 100_000, 200_000, 400_000, 800_000, 1_600_000},
		}, []string{"op"}),

		// Recovery metrics
		RecoveryActionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "actions_total",
			Help:      "Total number of recovery actions by kind and outcome",
		}, []string{"kind", "outcome"}),
		ManualInterventions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "manual_interventions_total",
			Help:      "Total number of recovery chains that ended in a manual report",
		}),

		// Batch metrics
		BatchesSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "submitted_total",
			Help:      "Total number of submitted batches by mode and status",
		}, []string{"mode", "status"}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "size",
			Help:      "Number of sub-calls per submitted batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		TxConfirmWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "tx_confirm_wait_seconds",
			Help:      "Time waited for transaction confirmation in seconds",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulFlow: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flow_timestamp",
			Help:      "Unix timestamp of the last successful flow",
		}),
		PoolDiscovered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "pool_discovered",
			Help:      "1 when pool discovery has succeeded, 0 otherwise",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFlow records a completed flow with its duration.
func RecordFlow(flow string, success bool, duration time.Duration) {
	DefaultMetrics.FlowsTotal.WithLabelValues(flow, statusLabel(success)).Inc()
	DefaultMetrics.FlowDuration.WithLabelValues(flow).Observe(duration.Seconds())
	if success {
		DefaultMetrics.LastSuccessfulFlow.SetToCurrentTime()
	}
}

// RecordStep records one executed step.
func RecordStep(op string, success bool, gasUsed uint64, latency time.Duration) {
	DefaultMetrics.StepsTotal.WithLabelValues(op, statusLabel(success)).Inc()
	if gasUsed > 0 {
		DefaultMetrics.GasUsed.WithLabelValues(op).Observe(float64(gasUsed))
	}
	if latency > 0 {
		DefaultMetrics.StepLatency.WithLabelValues(op).Observe(latency.Seconds())
	}
}

// RecordRecoveryAction records one executed recovery action.
func RecordRecoveryAction(kind string, success bool) {
	DefaultMetrics.RecoveryActionsTotal.WithLabelValues(kind, statusLabel(success)).Inc()
	if kind == "manual" && success {
		DefaultMetrics.ManualInterventions.Inc()
	}
}

// RecordBatch records one submitted batch.
func RecordBatch(mode string, size int, success bool) {
	DefaultMetrics.BatchesSubmitted.WithLabelValues(mode, statusLabel(success)).Inc()
	DefaultMetrics.BatchSize.Observe(float64(size))
}

// RecordPoolDiscovered flips the discovery health gauge.
func RecordPoolDiscovered(found bool) {
	if found {
		DefaultMetrics.PoolDiscovered.Set(1)
		return
	}
	DefaultMetrics.PoolDiscovered.Set(0)
}

// RecordRPCCall records one chain RPC round trip.
func RecordRPCCall(method string, duration time.Duration) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTxConfirmWait records how long one transaction confirmation took.
func RecordTxConfirmWait(duration time.Duration) {
	DefaultMetrics.TxConfirmWait.Observe(duration.Seconds())
}

// RecordDBQuery records a storage query and its outcome.
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
