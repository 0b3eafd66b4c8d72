// Package oidc implements authclient.IdentityProvider on top of an OpenID
// Connect issuer such as a Keycloak realm.
//
// The provider runs the authorization code flow with PKCE. Login hands the
// authorization URL to a Redirector and HandleCallback completes the
// exchange, firing OnAuthSuccess. Sessions are restored by Init from an
// authclient.CredentialStore and refreshed with the refresh token grant.
package oidc
