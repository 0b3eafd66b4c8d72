package authclient

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimRealmAccess    = "realm_access"
	claimResourceAccess = "resource_access"
	claimRoles          = "roles"
)

// ClaimSet is the decoded payload of a credential. A ClaimSet is treated as
// immutable once received: the engine replaces it wholesale on every auth
// event and never patches individual fields.
type ClaimSet map[string]any

// ParseClaims decodes the payload of a JWT without verifying its signature.
// Signature validation belongs to the identity provider.
func ParseClaims(token string) (ClaimSet, error) {
	if token == "" {
		return nil, ErrMalformedClaims
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedClaims, err)
	}

	return ClaimSet(claims), nil
}

// Subject returns the sub claim.
func (c ClaimSet) Subject() string {
	return stringFromAny(c["sub"])
}

// String returns the claim under key when it is a string.
func (c ClaimSet) String(key string) string {
	if c == nil {
		return ""
	}
	return stringFromAny(c[key])
}

// Expiry returns the exp claim, or the zero time when absent.
func (c ClaimSet) Expiry() time.Time {
	if c == nil {
		return time.Time{}
	}
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// RealmRoles returns the realm scoped role list.
func (c ClaimSet) RealmRoles() []string {
	if c == nil {
		return nil
	}
	access, ok := c[claimRealmAccess].(map[string]any)
	if !ok {
		return nil
	}
	return stringSliceFromAny(access[claimRoles])
}

// ClientRoles returns the role list scoped to clientID. With an empty
// clientID the roles of every client are returned.
func (c ClaimSet) ClientRoles(clientID string) []string {
	if c == nil {
		return nil
	}
	resources, ok := c[claimResourceAccess].(map[string]any)
	if !ok {
		return nil
	}

	if clientID != "" {
		access, ok := resources[clientID].(map[string]any)
		if !ok {
			return nil
		}
		return stringSliceFromAny(access[claimRoles])
	}

	var out []string
	for _, raw := range resources {
		access, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, stringSliceFromAny(access[claimRoles])...)
	}
	return out
}

// FlatRoles returns a top level roles claim, as issued by some providers.
func (c ClaimSet) FlatRoles() []string {
	if c == nil {
		return nil
	}
	return stringSliceFromAny(c[claimRoles])
}

func stringFromAny(val any) string {
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func stringSliceFromAny(val any) []string {
	switch typed := val.(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, entry := range typed {
			if str, ok := entry.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if typed == "" {
			return nil
		}
		return []string{typed}
	}
	return nil
}
