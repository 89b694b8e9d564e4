package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one DLQ manager pass over an entry.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeRescheduled = "rescheduled"
	dlqOutcomeQuarantined = "quarantined"
)

var (
	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the manager, by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fitledger",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Rows currently in outbox_dlq, split into pending and quarantined.",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(dlqOutcomeCounter, dlqBacklogGauge)
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqOutcomeCounter.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var pending, quarantined int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE quarantined_at IS NULL),
                COUNT(*) FILTER (WHERE quarantined_at IS NOT NULL)
           FROM outbox_dlq`).Scan(&pending, &quarantined)
	if err != nil {
		return
	}
	dlqBacklogGauge.WithLabelValues("pending").Set(float64(pending))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(quarantined))
}
