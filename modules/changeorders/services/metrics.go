package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "changeorders",
		Subsystem: "approval",
		Name:      "decisions_total",
		Help:      "Total number of approval decisions broken down by decision and result.",
	}, []string{"decision", "result"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "changeorders",
		Subsystem: "workflow",
		Name:      "transitions_total",
		Help:      "Total number of change request status transitions.",
	}, []string{"from", "to"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "changeorders",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of write conflicts broken down by kind.",
	}, []string{"kind"})

	numberingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "changeorders",
		Subsystem: "numbering",
		Name:      "retries_total",
		Help:      "Total number of number assignments retried after a collision.",
	})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "changeorders",
		Subsystem: "notifications",
		Name:      "failures_total",
		Help:      "Total number of notifications that could not be handed off.",
	}, []string{"channel"})
)

func recordDecision(decision, result string) {
	decisionsTotal.WithLabelValues(decision, result).Inc()
}

func recordTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

func recordNotificationFailure(channel string) {
	notificationFailures.WithLabelValues(channel).Inc()
}
