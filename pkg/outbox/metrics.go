package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "changeorders"
	metricsSubsystem = "outbox"
)

type metrics struct {
	enqueueTotal  *prometheus.CounterVec
	dispatchTotal *prometheus.CounterVec
	deadTotal     *prometheus.CounterVec
	cleanedTotal  *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec

	pending     *prometheus.GaugeVec
	locked      *prometheus.GaugeVec
	relayLeader *prometheus.GaugeVec
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func gauge(name, help string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	}, []string{"table"})
}

// Registered once per process; relays and cleaners for different tables share
// the vectors through the table label.
var getMetrics = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal:  counter("enqueued_total", "Notification rows written to the outbox.", "table", "topic"),
		dispatchTotal: counter("dispatched_total", "Delivery attempts by result.", "table", "topic", "result"),
		deadTotal:     counter("dead_total", "Rows that ran out of delivery attempts.", "table", "topic"),
		cleanedTotal:  counter("cleaned_total", "Rows pruned by the cleaner.", "table"),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent delivering one row.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
		}, []string{"table", "topic", "result"}),
		pending:     gauge("pending_rows", "Unpublished rows at the last depth probe."),
		locked:      gauge("claimed_rows", "Unpublished rows currently claimed by a relay."),
		relayLeader: gauge("relay_leader", "1 while this process holds the relay lock for the table."),
	}
})
