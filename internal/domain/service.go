// Package domain defines the business logic of the activity ledger.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/fitledger/internal/observability"
)

// Genesis holds the values a brand-new ledger starts from.
type Genesis struct {
	Owners           []Principal
	MinActiveMinutes uint32
	MinSteps         uint32
}

// ActivityInput captures an activity submitted by an administrator.
type ActivityInput struct {
	UserID  UserID
	Minutes uint32
	Steps   uint32
	Date    string
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithStore persists every state transition through store.
func WithStore(store Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger overrides the logger used to report admin changes.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service owns the ledger state and orchestrates access control, validation, the user
// registry and the activity log. Calls are serialised: each runs to completion before the
// next one starts.
type Service struct {
	mu         sync.Mutex
	admins     AdminSet
	thresholds Thresholds
	users      UserRegistry
	activities ActivityLog
	store      Store
	logger     *log.Logger
	now        func() time.Time
}

func newService(admins AdminSet, thresholds Thresholds, opts []Option) *Service {
	s := &Service{
		admins:     admins,
		thresholds: thresholds,
		users:      NewUserRegistry(),
		activities: NewActivityLog(),
		store:      nopStore{},
		logger:     log.New(log.Writer(), "[ledger] ", log.LstdFlags|log.Lshortfile),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	observability.SetAdmins(s.admins.Len())
	return s
}

// NewDefault constructs a ledger administered by deployer alone, with zero thresholds.
func NewDefault(deployer Principal, opts ...Option) *Service {
	return newService(NewAdminSet([]Principal{deployer}), Thresholds{}, opts)
}

// New constructs a ledger with an explicit admin set and thresholds.
func New(owners []Principal, minActiveMinutes, minSteps uint32, opts ...Option) (*Service, error) {
	admins := NewAdminSet(owners)
	if admins.Len() == 0 {
		return nil, ErrNoAdmins
	}
	return newService(admins, Thresholds{MinActiveMinutes: minActiveMinutes, MinSteps: minSteps}, opts), nil
}

// Restore rebuilds a ledger from a snapshot.
func Restore(snap Snapshot, opts ...Option) (*Service, error) {
	s := newService(NewAdminSet(snap.Admins), snap.Thresholds, opts)
	for user, count := range snap.Users {
		s.users.set(user, count)
	}
	for _, rec := range snap.Records {
		if !s.users.Exists(rec.UserID) {
			return nil, fmt.Errorf("restore: record %s references unknown user %q", rec.ID, rec.UserID)
		}
		s.activities.Append(rec)
	}
	observability.SetRegisteredUsers(s.users.Len())
	return s, nil
}

// Open restores the ledger held by store, bootstrapping it from genesis when the store is empty.
func Open(ctx context.Context, store Store, genesis Genesis, opts ...Option) (*Service, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	opts = append(opts, WithStore(store))
	if snap.Initialized {
		return Restore(snap, opts...)
	}

	s, err := New(genesis.Owners, genesis.MinActiveMinutes, genesis.MinSteps, opts...)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx, s.admins.Members(), s.thresholds); err != nil {
		return nil, fmt.Errorf("initialize ledger: %w", err)
	}
	s.logger.Printf("ledger initialized with %d admin(s)", s.admins.Len())
	return s, nil
}

// IsAdmin reports whether p is an administrator.
func (s *Service) IsAdmin(p Principal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins.IsAdmin(p)
}

// Admins lists the current administrators. Order is not meaningful.
func (s *Service) Admins() []Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins.Members()
}

// Thresholds returns the thresholds currently applied to new activities.
func (s *Service) Thresholds() Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds
}

// AddUser registers user with a zero score, resetting the score of an existing user.
func (s *Service) AddUser(ctx context.Context, caller Principal, user UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.admins.IsAdmin(caller) {
		return s.deny("add_user")
	}
	if err := s.store.SaveUser(ctx, user, s.now()); err != nil {
		return fmt.Errorf("persist user %q: %w", user, err)
	}
	s.users.Add(user)
	observability.SetRegisteredUsers(s.users.Len())
	return nil
}

// AddAdmin grants admin rights to target.
func (s *Service) AddAdmin(ctx context.Context, caller, target Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NewAdminSet(s.admins.Members())
	if err := next.Add(caller, target); err != nil {
		return s.reject("add_admin", err)
	}
	return s.commitAdmins(ctx, next)
}

// RemoveAdmin revokes admin rights from target. Removing the last admin is permitted and
// leaves the ledger without anyone able to mutate it.
func (s *Service) RemoveAdmin(ctx context.Context, caller, target Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := NewAdminSet(s.admins.Members())
	if err := next.Remove(caller, target); err != nil {
		if errors.Is(err, ErrAdminNotFound) {
			return fmt.Errorf("%w: %s", err, target)
		}
		return s.reject("remove_admin", err)
	}
	if err := s.commitAdmins(ctx, next); err != nil {
		return err
	}
	if s.admins.Len() == 0 {
		s.logger.Printf("WARNING: admin %s removed the last admin; the ledger is now read-only", caller)
	}
	return nil
}

func (s *Service) commitAdmins(ctx context.Context, next AdminSet) error {
	if err := s.store.SaveAdmins(ctx, next.Members()); err != nil {
		return fmt.Errorf("persist admins: %w", err)
	}
	s.admins = next
	observability.SetAdmins(s.admins.Len())
	return nil
}

// SetMinActiveMinutes changes the minimum active minutes for future activities.
func (s *Service) SetMinActiveMinutes(ctx context.Context, caller Principal, minutes uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.thresholds
	next.MinActiveMinutes = minutes
	return s.commitThresholds(ctx, caller, "set_min_active_minutes", next)
}

// SetMinSteps changes the minimum step count for future activities.
func (s *Service) SetMinSteps(ctx context.Context, caller Principal, steps uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.thresholds
	next.MinSteps = steps
	return s.commitThresholds(ctx, caller, "set_min_steps", next)
}

func (s *Service) commitThresholds(ctx context.Context, caller Principal, op string, next Thresholds) error {
	if !s.admins.IsAdmin(caller) {
		return s.deny(op)
	}
	if err := s.store.SaveThresholds(ctx, next); err != nil {
		return fmt.Errorf("persist thresholds: %w", err)
	}
	s.thresholds = next
	return nil
}

// AddActivity records an activity for a registered user. Authorization, thresholds and user
// existence are all checked before anything changes; the record is appended and the user's
// score incremented together or not at all.
func (s *Service) AddActivity(ctx context.Context, caller Principal, in ActivityInput) (ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.admins.IsAdmin(caller) {
		return ActivityRecord{}, s.deny("add_activity")
	}
	if err := s.thresholds.Check(in.Minutes, in.Steps); err != nil {
		observability.RecordActivityRejected(rejectionReason(err))
		return ActivityRecord{}, err
	}
	count, err := s.users.Score(in.UserID)
	if err != nil {
		return ActivityRecord{}, fmt.Errorf("%w: %s", err, in.UserID)
	}

	rec := ActivityRecord{
		ID:         uuid.NewString(),
		Seq:        s.activities.nextSeq(),
		UserID:     in.UserID,
		Minutes:    in.Minutes,
		Steps:      in.Steps,
		Date:       in.Date,
		RecordedBy: caller,
		RecordedAt: s.now(),
	}
	if err := s.store.AppendActivity(ctx, rec, count+1); err != nil {
		return ActivityRecord{}, fmt.Errorf("persist activity: %w", err)
	}

	s.activities.Append(rec)
	s.users.increment(in.UserID)
	observability.RecordActivityAccepted(rec.RecordedAt)
	return rec, nil
}

// UserActivityScore returns the number of activities accepted for user.
func (s *Service) UserActivityScore(user UserID) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, err := s.users.Score(user)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", err, user)
	}
	return count, nil
}

// UserActivities returns the records of user in the order they were accepted.
func (s *Service) UserActivities(user UserID) ([]ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.users.Exists(user) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, user)
	}
	return s.activities.Query(user), nil
}

// SearchActivities returns every record whose display text contains fragment.
func (s *Service) SearchActivities(fragment string) []ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activities.Search(fragment)
}

// Snapshot captures the full ledger state.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Initialized: true,
		Admins:      s.admins.Members(),
		Thresholds:  s.thresholds,
		Users:       s.users.snapshot(),
		Records:     s.activities.all(),
	}
}

func (s *Service) deny(op string) error {
	observability.RecordAccessDenied(op)
	return ErrAccessDenied
}

func (s *Service) reject(op string, err error) error {
	if errors.Is(err, ErrAccessDenied) {
		return s.deny(op)
	}
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrTooLittleMinutes):
		return "too_little_minutes"
	case errors.Is(err, ErrTooLittleSteps):
		return "too_little_steps"
	default:
		return "unknown"
	}
}
