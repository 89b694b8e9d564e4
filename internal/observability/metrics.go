package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "ledger",
		Name:      "activities_accepted_total",
		Help:      "Number of activities appended to the ledger.",
	})
	activitiesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "ledger",
		Name:      "activities_rejected_total",
		Help:      "Number of activities rejected by the threshold validator, labeled by reason.",
	}, []string{"reason"})
	accessDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitledger",
		Subsystem: "ledger",
		Name:      "access_denied_total",
		Help:      "Number of admin-only operations attempted by non-admin callers.",
	}, []string{"operation"})
	registeredUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitledger",
		Subsystem: "ledger",
		Name:      "registered_users",
		Help:      "Number of users present in the registry.",
	})
	adminCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitledger",
		Subsystem: "ledger",
		Name:      "admins",
		Help:      "Number of principals currently holding admin rights.",
	})
	lastActivityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitledger",
		Subsystem: "ledger",
		Name:      "last_activity_accepted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity accepted by the ledger.",
	})
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitledger",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity committed to the store.",
	})
)

func init() {
	prometheus.MustRegister(activitiesAccepted, activitiesRejected, accessDenied, registeredUsers, adminCount, lastActivityGauge, activityPersistGauge)
}

// RecordActivityAccepted counts an accepted activity and moves the watermark gauge.
func RecordActivityAccepted(ts time.Time) {
	activitiesAccepted.Inc()
	if ts.IsZero() {
		return
	}
	lastActivityGauge.Set(float64(ts.Unix()))
}

// RecordActivityRejected counts an activity rejected for reason.
func RecordActivityRejected(reason string) {
	activitiesRejected.WithLabelValues(reason).Inc()
}

// RecordAccessDenied counts a denied admin-only operation.
func RecordAccessDenied(operation string) {
	accessDenied.WithLabelValues(operation).Inc()
}

// SetRegisteredUsers updates the registry size gauge.
func SetRegisteredUsers(n int) {
	registeredUsers.Set(float64(n))
}

// SetAdmins updates the admin count gauge.
func SetAdmins(n int) {
	adminCount.Set(float64(n))
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}
