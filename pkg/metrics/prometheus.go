package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodflow_transitions_total",
			Help: "Total number of workflow state transitions by entity and target state",
		},
		[]string{"entity", "from", "to"},
	)

	RejectedTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodflow_rejected_transitions_total",
			Help: "Total number of transitions refused by the state machine or a gate",
		},
		[]string{"entity", "reason"},
	)

	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodflow_conflicts_total",
			Help: "Total number of uniqueness or dependency conflicts",
		},
		[]string{"kind", "table"},
	)

	SoftDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodflow_soft_deletes_total",
			Help: "Total number of soft-deleted rows by entity",
		},
		[]string{"entity"},
	)

	PartialUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodflow_partial_units_total",
			Help: "Total number of units of work that failed after applying earlier steps",
		},
		[]string{"unit", "step"},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prodflow_outbox_events_total",
			Help: "Total number of outbox events relayed by result",
		},
		[]string{"result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prodflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
