//go:build integration

package postgres

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitledger/internal/domain"
	"example.com/fitledger/internal/testsupport"
)

func TestStoreRoundTripsLedger(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	store := NewStore(pool)
	quiet := domain.WithLogger(log.New(io.Discard, "", 0))

	svc, err := domain.Open(ctx, store, domain.Genesis{Owners: []domain.Principal{"alice"}, MinActiveMinutes: 20}, quiet)
	require.NoError(t, err)

	require.NoError(t, svc.AddUser(ctx, "alice", "pawel"))
	require.NoError(t, svc.AddAdmin(ctx, "alice", "bob"))
	require.NoError(t, svc.SetMinSteps(ctx, "bob", 1000))
	rec, err := svc.AddActivity(ctx, "bob", domain.ActivityInput{UserID: "pawel", Minutes: 43, Steps: 4000, Date: "26/03/2023"})
	require.NoError(t, err)
	_, err = svc.AddActivity(ctx, "bob", domain.ActivityInput{UserID: "pawel", Minutes: 10, Steps: 4000, Date: "27/03/2023"})
	require.ErrorIs(t, err, domain.ErrTooLittleMinutes)

	reopened, err := domain.Open(ctx, store, domain.Genesis{Owners: []domain.Principal{"mallory"}}, quiet)
	require.NoError(t, err)
	require.ElementsMatch(t, []domain.Principal{"alice", "bob"}, reopened.Admins())
	require.Equal(t, domain.Thresholds{MinActiveMinutes: 20, MinSteps: 1000}, reopened.Thresholds())

	score, err := reopened.UserActivityScore("pawel")
	require.NoError(t, err)
	require.Equal(t, uint32(1), score)
	records, err := reopened.UserActivities("pawel")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, rec.ID, records[0].ID)
	require.WithinDuration(t, rec.RecordedAt, records[0].RecordedAt, time.Millisecond)

	persisted, err := store.ActivityCount(ctx, "pawel")
	require.NoError(t, err)
	require.Equal(t, int(score), persisted)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&outboxRows))
	require.Equal(t, 2, outboxRows, "one user.registered and one activity.recorded event")
}

func TestAppendActivityRollsBackForUnknownUser(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	store := NewStore(pool)
	require.NoError(t, store.Initialize(ctx, []domain.Principal{"alice"}, domain.Thresholds{}))

	err := store.AppendActivity(ctx, domain.ActivityRecord{
		ID:         "6f1c6f7e-3f0a-4a53-9a55-7f1f1d0f3b11",
		Seq:        1,
		UserID:     "ghost",
		RecordedBy: "alice",
		RecordedAt: time.Now().UTC(),
	}, 1)
	require.Error(t, err)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&outboxRows))
	require.Zero(t, outboxRows)
}

func TestInitializeTwiceFails(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testsupport.StartPostgres(ctx, t))

	require.NoError(t, store.Initialize(ctx, []domain.Principal{"alice"}, domain.Thresholds{}))
	require.Error(t, store.Initialize(ctx, []domain.Principal{"mallory"}, domain.Thresholds{}))
}
