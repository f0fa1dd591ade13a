// Package metrics defines and registers all custom Prometheus metrics for the
// SendIT parcel service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry at package init through
// promauto; /metrics serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sendit"

// ── Workflow metrics ──────────────────────────────────────────────────────────

// TransitionsTotal counts committed status transitions.
// Labels:
//   - from, to: parcel statuses
//   - source: "admin", "sender", "courier" or "payment"
var TransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Total number of committed parcel status transitions.",
	},
	[]string{"from", "to", "source"},
)

// TransitionErrorsTotal counts rejected or failed transitions.
// Label:
//   - reason: "invalid_transition", "not_found", "conflict", "store_failed", ...
var TransitionErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transition_errors_total",
		Help:      "Total number of parcel status transitions that did not commit.",
	},
	[]string{"reason"},
)

// TransitionDuration measures validate + persist time for one transition.
var TransitionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "status_transition_duration_seconds",
		Help:      "Duration of a status transition from first read to commit.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"to"},
)

// TransitionRetriesTotal counts optimistic-concurrency retries.
var TransitionRetriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transition_retries_total",
		Help:      "Total number of transitions retried after a concurrent update.",
	},
)

// ── Parcel metrics ────────────────────────────────────────────────────────────

// ParcelsCreatedTotal counts newly created parcels.
// Label:
//   - delivery_type: "STANDARD", "EXPRESS", "SAME_DAY" or "OVERNIGHT"
var ParcelsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parcels_created_total",
		Help:      "Total number of parcels created, by delivery type.",
	},
	[]string{"delivery_type"},
)

// TrackingCacheTotal counts public tracking lookups by cache result (hit/miss/error).
var TrackingCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracking_cache_total",
		Help:      "Total number of tracking cache lookups, labelled by result.",
	},
	[]string{"result"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsTotal counts notification deliveries.
// Labels:
//   - channel: "email", "inbox" or "broker"
//   - result: "sent", "failed", "skipped" or "duplicate"
var NotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Total number of notification deliveries by channel and result.",
	},
	[]string{"channel", "result"},
)

// NotificationsDroppedTotal counts jobs dropped because a worker queue was full.
var NotificationsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Total number of notification jobs dropped on a full queue.",
	},
)

// NotificationQueueDepth tracks pending jobs per worker.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var NotificationQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notification_queue_depth",
		Help:      "Current number of notification jobs pending in each worker channel.",
	},
	[]string{"worker_id"},
)

// PaymentEventsTotal counts consumed payment events by result.
var PaymentEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_events_total",
		Help:      "Total number of payment events consumed, by result.",
	},
	[]string{"result"},
)
