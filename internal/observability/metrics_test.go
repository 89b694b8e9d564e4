package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordActivityAcceptedMovesWatermark(t *testing.T) {
	before := testutil.ToFloat64(activitiesAccepted)
	ts := time.Date(2024, time.May, 1, 7, 30, 0, 0, time.UTC)

	RecordActivityAccepted(ts)

	require.InDelta(t, before+1, testutil.ToFloat64(activitiesAccepted), 0.0001)
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastActivityGauge))

	RecordActivityAccepted(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(lastActivityGauge))
}

func TestRejectionAndDenialAreLabeled(t *testing.T) {
	minutes := testutil.ToFloat64(activitiesRejected.WithLabelValues("too_little_minutes"))
	denied := testutil.ToFloat64(accessDenied.WithLabelValues("add_user"))

	RecordActivityRejected("too_little_minutes")
	RecordAccessDenied("add_user")

	require.InDelta(t, minutes+1, testutil.ToFloat64(activitiesRejected.WithLabelValues("too_little_minutes")), 0.0001)
	require.InDelta(t, denied+1, testutil.ToFloat64(accessDenied.WithLabelValues("add_user")), 0.0001)
}
