package domain

// UserID is the administrator-chosen identifier of a tracked user.
type UserID string

// UserRegistry maps users to the number of activities accepted for them.
type UserRegistry struct {
	counts map[UserID]uint32
}

// NewUserRegistry returns an empty registry.
func NewUserRegistry() UserRegistry {
	return UserRegistry{counts: make(map[UserID]uint32)}
}

// Add registers user with a zero counter. Registering an existing user resets its counter;
// previously logged records are kept.
func (r *UserRegistry) Add(user UserID) {
	r.counts[user] = 0
}

// Exists reports whether user was ever registered.
func (r *UserRegistry) Exists(user UserID) bool {
	_, ok := r.counts[user]
	return ok
}

// Score returns the activity counter of user.
func (r *UserRegistry) Score(user UserID) (uint32, error) {
	count, ok := r.counts[user]
	if !ok {
		return 0, ErrUserNotFound
	}
	return count, nil
}

// Len returns the number of registered users.
func (r *UserRegistry) Len() int {
	return len(r.counts)
}

func (r *UserRegistry) increment(user UserID) uint32 {
	r.counts[user]++
	return r.counts[user]
}

func (r *UserRegistry) set(user UserID, count uint32) {
	r.counts[user] = count
}

func (r *UserRegistry) snapshot() map[UserID]uint32 {
	out := make(map[UserID]uint32, len(r.counts))
	for user, count := range r.counts {
		out[user] = count
	}
	return out
}
