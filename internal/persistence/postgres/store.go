// Package postgres persists the ledger in PostgreSQL and records outbox events in the same
// transaction as each state change.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fitledger/internal/domain"
	"example.com/fitledger/internal/events"
	"example.com/fitledger/internal/observability"
)

// Store provides Postgres-backed persistence for the ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ domain.Store = (*Store)(nil)

// Load reads the full ledger state.
func (s *Store) Load(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{Users: make(map[domain.UserID]uint32)}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return snap, err
	}
	defer tx.Rollback(ctx)

	var minMinutes, minSteps int64
	err = tx.QueryRow(ctx, `SELECT min_active_minutes, min_steps FROM ledger_settings WHERE id = 1`).Scan(&minMinutes, &minSteps)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, tx.Commit(ctx)
	}
	if err != nil {
		return snap, err
	}
	snap.Initialized = true
	snap.Thresholds = domain.Thresholds{MinActiveMinutes: uint32(minMinutes), MinSteps: uint32(minSteps)}

	rows, err := tx.Query(ctx, `SELECT principal FROM ledger_admins ORDER BY position`)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var principal string
		if err := rows.Scan(&principal); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Admins = append(snap.Admins, domain.Principal(principal))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = tx.Query(ctx, `SELECT user_id, activity_count FROM ledger_users`)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var (
			userID string
			count  int64
		)
		if err := rows.Scan(&userID, &count); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Users[domain.UserID(userID)] = uint32(count)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = tx.Query(ctx, `SELECT seq, activity_id, user_id, minutes, steps, activity_date, recorded_by, recorded_at
        FROM ledger_activities ORDER BY seq`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return snap, err
		}
		snap.Records = append(snap.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	return snap, tx.Commit(ctx)
}

func scanActivity(row pgx.Row) (domain.ActivityRecord, error) {
	var (
		rec                 domain.ActivityRecord
		seq, minutes, steps int64
		userID, recordedBy  string
	)
	if err := row.Scan(&seq, &rec.ID, &userID, &minutes, &steps, &rec.Date, &recordedBy, &rec.RecordedAt); err != nil {
		return rec, err
	}
	rec.Seq = uint64(seq)
	rec.UserID = domain.UserID(userID)
	rec.Minutes = uint32(minutes)
	rec.Steps = uint32(steps)
	rec.RecordedBy = domain.Principal(recordedBy)
	rec.RecordedAt = rec.RecordedAt.UTC()
	return rec, nil
}

// Initialize writes the genesis admins and thresholds. It fails if the ledger already exists.
func (s *Store) Initialize(ctx context.Context, admins []domain.Principal, thresholds domain.Thresholds) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_settings (id, min_active_minutes, min_steps) VALUES (1, $1, $2)`,
			int64(thresholds.MinActiveMinutes), int64(thresholds.MinSteps)); err != nil {
			return err
		}
		return replaceAdmins(ctx, tx, admins)
	})
}

// SaveAdmins replaces the admin set.
func (s *Store) SaveAdmins(ctx context.Context, admins []domain.Principal) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return replaceAdmins(ctx, tx, admins)
	})
}

func replaceAdmins(ctx context.Context, tx pgx.Tx, admins []domain.Principal) error {
	if _, err := tx.Exec(ctx, `DELETE FROM ledger_admins`); err != nil {
		return err
	}
	for i, admin := range admins {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_admins (principal, position) VALUES ($1, $2)`, string(admin), i); err != nil {
			return err
		}
	}
	return nil
}

// SaveThresholds updates the thresholds.
func (s *Store) SaveThresholds(ctx context.Context, thresholds domain.Thresholds) error {
	tag, err := s.pool.Exec(ctx, `UPDATE ledger_settings SET min_active_minutes = $1, min_steps = $2, updated_at = NOW() WHERE id = 1`,
		int64(thresholds.MinActiveMinutes), int64(thresholds.MinSteps))
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return errors.New("ledger is not initialized")
	}
	return nil
}

// SaveUser registers user, resetting its counter, and records a user.registered event.
func (s *Store) SaveUser(ctx context.Context, user domain.UserID, registeredAt time.Time) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_users (user_id, activity_count, registered_at) VALUES ($1, 0, $2)
            ON CONFLICT (user_id) DO UPDATE SET activity_count = 0, registered_at = EXCLUDED.registered_at`,
			string(user), registeredAt); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, events.TypeUserRegistered, string(user), string(user),
			fmt.Sprintf("%s:%d", user, registeredAt.UnixNano()),
			events.UserRegistered{UserID: string(user), RegisteredAt: registeredAt})
	})
}

// AppendActivity inserts the record, sets the user's counter to count and records an
// activity.recorded event, all in one transaction.
func (s *Store) AppendActivity(ctx context.Context, rec domain.ActivityRecord, count uint32) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_activities (seq, activity_id, user_id, minutes, steps, activity_date, recorded_by, recorded_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			int64(rec.Seq), rec.ID, string(rec.UserID), int64(rec.Minutes), int64(rec.Steps), rec.Date, string(rec.RecordedBy), rec.RecordedAt); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `UPDATE ledger_users SET activity_count = $2 WHERE user_id = $1`, string(rec.UserID), int64(count))
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: %s", domain.ErrUserNotFound, rec.UserID)
		}

		return insertOutbox(ctx, tx, events.TypeActivityRecorded, rec.ID, string(rec.UserID), rec.ID+":"+events.TypeActivityRecorded, events.ActivityRecorded{
			ActivityID: rec.ID,
			Seq:        rec.Seq,
			UserID:     string(rec.UserID),
			Minutes:    rec.Minutes,
			Steps:      rec.Steps,
			Date:       rec.Date,
			RecordedBy: string(rec.RecordedBy),
			RecordedAt: rec.RecordedAt,
			Score:      count,
		})
	})
	if err != nil {
		return err
	}
	observability.RecordActivityPersisted(rec.RecordedAt)
	return nil
}

// ActivityCount returns the number of persisted records of user, for comparing against
// the stored activity_count.
func (s *Store) ActivityCount(ctx context.Context, user domain.UserID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_activities WHERE user_id = $1`, string(user)).Scan(&n)
	return n, err
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// insertOutbox records an event. Events of one user share a partition key so consumers see
// them in ledger order.
func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID, userID, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.Topic+"-value",
		"user:"+userID,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityRecorded: {
		AggregateType: "activity",
		Topic:         "ledger_activities",
	},
	events.TypeUserRegistered: {
		AggregateType: "user",
		Topic:         "ledger_users",
	},
}
