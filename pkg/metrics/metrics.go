// Package metrics exposes Prometheus instruments for sync cycles. All
// instruments register on the default registry, served by promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObjectChanges counts generated object changes by kind (create, update).
	ObjectChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_object_changes_total",
		Help: "Object changes generated per integration and object",
	}, []string{"integration", "object", "kind"})

	// JudgeDecisions counts bidirectional conflicts by the mode that settled them.
	JudgeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_judge_decisions_total",
		Help: "Field conflicts decided per judgement mode",
	}, []string{"integration", "mode"})

	// Dispatches counts create and update dispatches by outcome.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_dispatches_total",
		Help: "Create and update dispatches per object type and outcome",
	}, []string{"integration", "object", "kind", "status"}) // status: success, partial, error

	// MappingMisses counts link updates skipped because the link is gone.
	MappingMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_mapping_misses_total",
		Help: "Mapping updates skipped because no mapping exists",
	}, []string{"integration"})

	// SkippedObjects counts objects left out of an order, by reason.
	SkippedObjects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_skipped_objects_total",
		Help: "Objects excluded from an order",
	}, []string{"integration", "reason"}) // reason: deleted, not_supported, not_found

	// Notifications counts issues written to notification handlers.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_notifications_total",
		Help: "Notifications written per integration and object",
	}, []string{"integration", "object"})

	// CycleDuration measures a full sync cycle.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncbridge_cycle_duration_seconds",
		Help:    "Duration of a sync cycle in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"integration", "status"}) // status: success, error

	// OrderSize tracks object changes per order.
	OrderSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncbridge_order_size",
		Help:    "Number of object changes per order",
		Buckets: []float64{1, 10, 50, 100, 500, 1000},
	})

	// StoreRetries counts retried mapping store operations.
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncbridge_store_retries_total",
		Help: "Mapping store operations retried after a transient error",
	}, []string{"store", "operation"})

	// BrokerHealthy is 1 while the notification broker connection is open.
	BrokerHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncbridge_broker_healthy",
		Help: "Notification broker connection health (1 healthy, 0 down)",
	})
)
