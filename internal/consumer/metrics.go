package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "consumer",
		Name:      "events_handled_total",
		Help:      "Ledger events handled and committed.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "consumer",
		Name:      "events_failed_total",
		Help:      "Ledger events whose handler failed every attempt.",
	}, []string{"topic", "event_type"})

	parkedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "consumer",
		Name:      "events_parked_total",
		Help:      "Failed ledger events stored in ledger_event_failures and committed past.",
	}, []string{"topic", "event_type"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "consumer",
		Name:      "handler_retries_total",
		Help:      "Handler retries after a failed attempt.",
	}, []string{"event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Records skipped because their frame or headers were malformed.",
	}, []string{"topic"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fitledger",
		Subsystem: "consumer",
		Name:      "handle_duration_seconds",
		Help:      "Time spent handling one ledger event, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	eventTimeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fitledger",
		Subsystem: "consumer",
		Name:      "last_event_timestamp_seconds",
		Help:      "Kafka timestamp of the newest committed event per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, parkedCounter, retryCounter, decodeErrorCounter, handleDuration, eventTimeGauge)
}

func recordProcessed(msg Message, took time.Duration) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	handleDuration.WithLabelValues(msg.EventType).Observe(took.Seconds())
	if !msg.Timestamp.IsZero() {
		eventTimeGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordParked(msg Message) {
	parkedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordRetry(msg Message) {
	retryCounter.WithLabelValues(msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
