package oidc

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	authclient "github.com/goliatone/go-auth-client"
)

// Config holds the OIDC client configuration.
type Config struct {
	// Issuer is the OIDC issuer URL, e.g. a Keycloak realm
	// "https://sso.example.com/realms/shop". It must match the discovery
	// document exactly.
	Issuer string

	// ClientID of the public or confidential client.
	ClientID string

	// ClientSecret is empty for public clients.
	ClientSecret string

	// RedirectURL where the provider sends the authorization code.
	RedirectURL string

	// PostLogoutRedirectURL is passed to the end session endpoint.
	PostLogoutRedirectURL string

	// Scopes to request. Default: openid, profile, email, offline_access.
	Scopes []string
}

// DefaultScopes are requested when Config.Scopes is empty.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(issuer, clientID string) Config {
	return Config{
		Issuer:   issuer,
		ClientID: clientID,
		Scopes:   append([]string(nil), DefaultScopes...),
	}
}

// ConfigFromProvider maps the file configuration section.
func ConfigFromProvider(cfg authclient.ProviderConfig) Config {
	return Config{
		Issuer:                cfg.Issuer,
		ClientID:              cfg.ClientID,
		ClientSecret:          cfg.ClientSecret,
		RedirectURL:           cfg.RedirectURL,
		PostLogoutRedirectURL: cfg.PostLogoutRedirectURL,
		Scopes:                cfg.Scopes,
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Issuer, validation.Required, is.URL),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.RedirectURL, validation.Required, is.URL),
		validation.Field(&c.PostLogoutRedirectURL, is.URL),
	)
}

func (c Config) issuerURL() string {
	return strings.TrimSpace(c.Issuer)
}

func (c Config) scopes() []string {
	if len(c.Scopes) == 0 {
		return append([]string(nil), DefaultScopes...)
	}
	return c.Scopes
}
