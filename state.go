package authclient

import "time"

// Snapshot is the authorization view presentation code is allowed to branch
// on. It is computed from the session on every read and can never be set
// directly.
type Snapshot struct {
	Authenticated bool           `json:"authenticated"`
	Roles         RoleSet        `json:"roles"`
	Profile       *Profile       `json:"profile,omitempty"`
	Subject       string         `json:"subject,omitempty"`
	State         LifecycleState `json:"state"`
	Version       uint64         `json:"version"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsAdmin checks if the snapshot grants the admin role
func (s Snapshot) IsAdmin() bool {
	return s.HasRole(RoleAdmin)
}

// HasRole checks if the authenticated user holds role
func (s Snapshot) HasRole(role string) bool {
	if !s.Authenticated {
		return false
	}
	return s.Roles.Has(role)
}

// HasAnyRole checks if the authenticated user holds at least one of roles
func (s Snapshot) HasAnyRole(roles ...string) bool {
	if !s.Authenticated {
		return false
	}
	return s.Roles.HasAny(roles...)
}

// session is the process wide state owned by the Controller. Only
// Controller.apply replaces it, always wholesale.
type session struct {
	authenticated bool
	claims        ClaimSet
	roles         RoleSet
	profile       *Profile
	state         LifecycleState
	// epoch changes whenever a different authenticated session begins or the
	// session is cleared. Async work tagged with a stale epoch is discarded.
	epoch     uint64
	version   uint64
	updatedAt time.Time
}

func (s session) snapshot() Snapshot {
	return Snapshot{
		Authenticated: s.authenticated,
		Roles:         s.roles,
		Profile:       s.profile.Clone(),
		Subject:       s.claims.Subject(),
		State:         s.state,
		Version:       s.version,
		UpdatedAt:     s.updatedAt,
	}
}

func clearedSession(prev session, state LifecycleState, now time.Time) session {
	epoch := prev.epoch
	if prev.authenticated {
		epoch++
	}
	return session{
		authenticated: false,
		roles:         NewRoleSet(),
		state:         state,
		epoch:         epoch,
		version:       prev.version + 1,
		updatedAt:     now,
	}
}
