package domain

import (
	"context"
	"time"
)

// Snapshot is the full ledger state as persisted by a Store.
type Snapshot struct {
	// Initialized is false for a store that has never held a ledger.
	Initialized bool
	Admins      []Principal
	Thresholds  Thresholds
	Users       map[UserID]uint32
	Records     []ActivityRecord
}

// Store persists ledger state transitions. Each method must apply its change atomically;
// the Service only updates its in-memory state after the Store call succeeds.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Initialize(ctx context.Context, admins []Principal, thresholds Thresholds) error
	SaveAdmins(ctx context.Context, admins []Principal) error
	SaveThresholds(ctx context.Context, thresholds Thresholds) error
	SaveUser(ctx context.Context, user UserID, registeredAt time.Time) error
	AppendActivity(ctx context.Context, record ActivityRecord, count uint32) error
}

// nopStore keeps nothing; the Service's own state is the only copy.
type nopStore struct{}

func (nopStore) Load(context.Context) (Snapshot, error) { return Snapshot{}, nil }

func (nopStore) Initialize(context.Context, []Principal, Thresholds) error { return nil }

func (nopStore) SaveAdmins(context.Context, []Principal) error { return nil }

func (nopStore) SaveThresholds(context.Context, Thresholds) error { return nil }

func (nopStore) SaveUser(context.Context, UserID, time.Time) error { return nil }

func (nopStore) AppendActivity(context.Context, ActivityRecord, uint32) error { return nil }
