package domain

// Principal identifies an authenticated caller. Values are supplied by the transport layer
// (the JWT subject) and are only ever compared and stored.
type Principal string

// AdminSet holds the administrators allowed to mutate the ledger.
type AdminSet struct {
	members []Principal
}

// NewAdminSet builds a set from owners, dropping duplicates while keeping first-seen order.
func NewAdminSet(owners []Principal) AdminSet {
	set := AdminSet{members: make([]Principal, 0, len(owners))}
	for _, owner := range owners {
		if !set.IsAdmin(owner) {
			set.members = append(set.members, owner)
		}
	}
	return set
}

// IsAdmin reports whether p is currently an administrator.
func (s *AdminSet) IsAdmin(p Principal) bool {
	return s.indexOf(p) >= 0
}

// Add grants admin rights to target. Adding an existing admin is a no-op.
func (s *AdminSet) Add(caller, target Principal) error {
	if !s.IsAdmin(caller) {
		return ErrAccessDenied
	}
	if s.IsAdmin(target) {
		return nil
	}
	s.members = append(s.members, target)
	return nil
}

// Remove revokes admin rights from target. The last element is swapped into the freed
// slot, so enumeration order is not stable across removals.
func (s *AdminSet) Remove(caller, target Principal) error {
	if !s.IsAdmin(caller) {
		return ErrAccessDenied
	}
	idx := s.indexOf(target)
	if idx < 0 {
		return ErrAdminNotFound
	}
	last := len(s.members) - 1
	s.members[idx] = s.members[last]
	s.members = s.members[:last]
	return nil
}

// Len returns the number of administrators.
func (s *AdminSet) Len() int {
	return len(s.members)
}

// Members returns a copy of the current administrators.
func (s *AdminSet) Members() []Principal {
	out := make([]Principal, len(s.members))
	copy(out, s.members)
	return out
}

func (s *AdminSet) indexOf(p Principal) int {
	for i, member := range s.members {
		if member == p {
			return i
		}
	}
	return -1
}
