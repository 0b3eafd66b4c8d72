package authclient

import (
	"context"
	"time"
)

// IdentityProvider is the external identity collaborator the session engine
// drives. Implementations own token issuance, the login/logout redirect flow
// and refresh token storage.
type IdentityProvider interface {
	// Init restores or checks an existing session and reports whether the
	// provider considers the user authenticated.
	Init(ctx context.Context) (bool, error)

	// Login starts the provider login flow. It should not block on user
	// interaction; completion is reported through Handlers.OnAuthSuccess.
	Login(ctx context.Context) error

	// Logout ends the provider session, typically by redirecting.
	Logout(ctx context.Context) error

	// Authenticated is the provider's live authenticated flag.
	Authenticated() bool

	// Token returns the current bearer token, or "" when none was issued.
	Token() string

	// Claims returns the decoded payload of the current token, or nil.
	Claims() ClaimSet

	// IsTokenExpired reports whether the token expires within leeway.
	IsTokenExpired(leeway time.Duration) bool

	// UpdateToken refreshes the token when it expires within leeway.
	// refreshed is false when the token was still valid.
	UpdateToken(ctx context.Context, leeway time.Duration) (refreshed bool, err error)

	// SetHandlers replaces the provider event handlers.
	SetHandlers(handlers Handlers)
}

// Handlers are the provider events the Controller subscribes to.
type Handlers struct {
	OnAuthSuccess  func()
	OnAuthLogout   func()
	OnTokenExpired func()
}

// ProfileLoader loads the profile of the authenticated user.
// Providers may implement it directly.
type ProfileLoader interface {
	LoadProfile(ctx context.Context) (*Profile, error)
}

// ProfileLoaderFunc adapts a function to the ProfileLoader interface.
type ProfileLoaderFunc func(ctx context.Context) (*Profile, error)

// LoadProfile implements ProfileLoader.
func (f ProfileLoaderFunc) LoadProfile(ctx context.Context) (*Profile, error) {
	if f == nil {
		return nil, ErrProfileUnavailable
	}
	return f(ctx)
}

// CustomerSync is notified once per successful authentication so a backend
// can create or refresh its record of the current user.
type CustomerSync interface {
	SyncCurrentUser(ctx context.Context) error
}

// CustomerSyncFunc adapts a function to the CustomerSync interface.
type CustomerSyncFunc func(ctx context.Context) error

// SyncCurrentUser implements CustomerSync.
func (f CustomerSyncFunc) SyncCurrentUser(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

// Profile holds the user attributes hydrated after authentication.
type Profile struct {
	ID            string         `json:"id,omitempty"`
	Username      string         `json:"username,omitempty"`
	Email         string         `json:"email,omitempty"`
	EmailVerified bool           `json:"email_verified,omitempty"`
	FirstName     string         `json:"first_name,omitempty"`
	LastName      string         `json:"last_name,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// DisplayName returns the best human readable name for the profile.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.Username != "":
		return p.Username
	default:
		return p.Email
	}
}

// Clone returns a copy that shares nothing mutable with p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.Attributes != nil {
		out.Attributes = make(map[string]any, len(p.Attributes))
		for k, v := range p.Attributes {
			out.Attributes[k] = v
		}
	}
	return &out
}

// Credentials is the persisted form of a provider session.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the access token is past its expiry.
func (c *Credentials) IsExpired(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// CredentialStore persists provider credentials between runs.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, credentials *Credentials) error
	LoadCredentials(ctx context.Context) (*Credentials, error)
	DeleteCredentials(ctx context.Context) error
}
