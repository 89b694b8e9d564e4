package outbox

import "github.com/prometheus/client_golang/prometheus"

// Outcomes of a dispatch attempt for one outbox event.
const (
	outcomeDelivered    = "delivered"
	outcomeDeadLettered = "dead_lettered"
)

var (
	dispatchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Ledger events leaving the outbox, by topic and outcome.",
	}, []string{"topic", "outcome"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fitledger",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time from claiming an outbox batch to marking it published.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(dispatchCounter, batchDuration)
}

func recordDispatch(topic, outcome string, n int) {
	dispatchCounter.WithLabelValues(topic, outcome).Add(float64(n))
}
