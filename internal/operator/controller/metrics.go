package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Reconcile outcomes used as the result label.
const (
	resultSuccess  = "success"
	resultError    = "error"
	resultTerminal = "terminal"
	resultNotFound = "not_found"
)

var (
	// Reconciliation metrics
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appsync",
			Subsystem: "controller",
			Name:      "reconcile_total",
			Help:      "Total number of ManagedApp reconciliations by result",
		},
		[]string{"namespace", "result"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appsync",
			Subsystem: "controller",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of ManagedApp reconciliation in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"namespace"},
	)

	// Dependent metrics
	dependentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appsync",
			Subsystem: "dependents",
			Name:      "operations_total",
			Help:      "Total number of create-or-update outcomes by dependent kind and operation",
		},
		[]string{"kind", "operation"},
	)

	ownershipConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appsync",
			Subsystem: "dependents",
			Name:      "ownership_conflicts_total",
			Help:      "Total number of dependents found controlled by a different owner",
		},
		[]string{"kind"},
	)
)

func init() {
	// Register metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		reconcileTotal,
		reconcileDuration,
		dependentOperationsTotal,
		ownershipConflictsTotal,
	)
}

// recordReconcileMetric records a reconciliation result.
func recordReconcileMetric(namespace, result string, duration float64) {
	reconcileTotal.WithLabelValues(namespace, result).Inc()
	reconcileDuration.WithLabelValues(namespace).Observe(duration)
}

// recordDependentOperationMetric records a create-or-update outcome.
func recordDependentOperationMetric(kind, op string) {
	dependentOperationsTotal.WithLabelValues(kind, op).Inc()
}

// recordOwnershipConflictMetric records an at-most-one-controller violation.
func recordOwnershipConflictMetric(kind string) {
	ownershipConflictsTotal.WithLabelValues(kind).Inc()
}

// Metrics helper methods that check enableMetrics before recording.

func (r *ManagedAppReconciler) recordReconcile(namespace, result string, duration float64) {
	if r.enableMetrics {
		recordReconcileMetric(namespace, result, duration)
	}
}

func (r *ManagedAppReconciler) recordDependentOperation(kind, op string) {
	if r.enableMetrics {
		recordDependentOperationMetric(kind, op)
	}
}

func (r *ManagedAppReconciler) recordOwnershipConflict(kind string) {
	if r.enableMetrics {
		recordOwnershipConflictMetric(kind)
	}
}
