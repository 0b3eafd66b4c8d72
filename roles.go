package authclient

import (
	"encoding/json"
	"sort"
	"strings"
)

// RoleAdmin is the role that grants administrative access.
const RoleAdmin = "ADMIN"

// RoleSet is a normalized, deduplicated set of role names. A RoleSet is never
// modified after construction, so it can be shared between snapshots.
type RoleSet struct {
	items map[string]struct{}
}

// NewRoleSet builds a RoleSet from raw role names.
func NewRoleSet(roles ...string) RoleSet {
	items := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := NormalizeRole(role)
		if normalized == "" {
			continue
		}
		items[normalized] = struct{}{}
	}
	return RoleSet{items: items}
}

// NormalizeRole trims and upper-cases a role name.
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// Has checks if the set contains role, compared after normalization
func (s RoleSet) Has(role string) bool {
	if len(s.items) == 0 {
		return false
	}
	_, ok := s.items[NormalizeRole(role)]
	return ok
}

// HasAny checks if the set contains at least one of roles
func (s RoleSet) HasAny(roles ...string) bool {
	for _, role := range roles {
		if s.Has(role) {
			return true
		}
	}
	return false
}

// Len returns the number of roles.
func (s RoleSet) Len() int {
	return len(s.items)
}

// Empty reports whether the set holds no roles.
func (s RoleSet) Empty() bool {
	return len(s.items) == 0
}

// Slice returns the roles in sorted order.
func (s RoleSet) Slice() []string {
	out := make([]string, 0, len(s.items))
	for role := range s.items {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same roles.
func (s RoleSet) Equal(other RoleSet) bool {
	if len(s.items) != len(other.items) {
		return false
	}
	for role := range s.items {
		if _, ok := other.items[role]; !ok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted array.
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// RoleOption customizes role extraction.
type RoleOption func(*roleOptions)

type roleOptions struct {
	clientID  string
	flatRoles bool
}

// WithRoleClientID limits client scoped roles to a single client. Without it
// the roles of every client in the claim set are merged.
func WithRoleClientID(clientID string) RoleOption {
	return func(o *roleOptions) {
		o.clientID = strings.TrimSpace(clientID)
	}
}

// WithFlatRoles also merges a top level roles claim.
func WithFlatRoles() RoleOption {
	return func(o *roleOptions) {
		o.flatRoles = true
	}
}

// ExtractRoles merges the realm and client scoped role lists of claims into a
// RoleSet. It returns an empty set for nil or malformed claims.
func ExtractRoles(claims ClaimSet, opts ...RoleOption) RoleSet {
	options := roleOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if len(claims) == 0 {
		return NewRoleSet()
	}

	roles := claims.RealmRoles()
	roles = append(roles, claims.ClientRoles(options.clientID)...)
	if options.flatRoles {
		roles = append(roles, claims.FlatRoles()...)
	}

	return NewRoleSet(roles...)
}
