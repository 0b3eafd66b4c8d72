package authclient

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeProviderUnavailable = "IDENTITY_PROVIDER_UNAVAILABLE"
	TextCodeRefreshDenied       = "TOKEN_REFRESH_DENIED"
	TextCodeProfileUnavailable  = "PROFILE_UNAVAILABLE"
	TextCodeInvalidTransition   = "INVALID_SESSION_STATE_TRANSITION"
	TextCodeNonInteractive      = "NON_INTERACTIVE_SESSION"
	TextCodeNoCredentials       = "NO_STORED_CREDENTIALS"
)

// ErrProviderUnavailable wraps init or refresh failures caused by the
// identity provider being unreachable or failing.
var ErrProviderUnavailable = goerrors.New("identity provider unavailable", goerrors.CategoryExternal).
	WithTextCode(TextCodeProviderUnavailable).
	WithCode(goerrors.CodeInternal)

// ErrRefreshDenied is returned when the provider refused to refresh the
// session token. The session is forced to log out.
var ErrRefreshDenied = goerrors.New("token refresh denied", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshDenied).
	WithCode(goerrors.CodeUnauthorized)

// ErrProfileUnavailable is returned when the user profile cannot be loaded
var ErrProfileUnavailable = goerrors.New("profile unavailable", goerrors.CategoryExternal).
	WithTextCode(TextCodeProfileUnavailable)

// ErrInvalidTransition is returned when a lifecycle transition is not allowed.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrNonInteractive is returned by operations that need a live event loop
// when the controller was started in non-interactive mode.
var ErrNonInteractive = goerrors.New("session started in non-interactive mode", goerrors.CategoryOperation).
	WithTextCode(TextCodeNonInteractive).
	WithCode(goerrors.CodeConflict)

// ErrNoCredentials means there is no session to use: a credential store
// holds nothing, or the provider reported a session without a token.
var ErrNoCredentials = goerrors.New("no stored credentials", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoCredentials).
	WithCode(goerrors.CodeNotFound)

// ErrMalformedClaims is returned when a token payload cannot be decoded.
var ErrMalformedClaims = goerrors.New("malformed token claims", goerrors.CategoryBadInput).
	WithTextCode(goerrors.TextCodeTokenMalformed).
	WithCode(goerrors.CodeBadRequest)

// IsRefreshDenied reports whether err originates from a failed refresh.
func IsRefreshDenied(err error) bool {
	return goerrors.Is(err, ErrRefreshDenied)
}

// IsProviderUnavailable reports whether err originates from the provider
// being unavailable during init or refresh.
func IsProviderUnavailable(err error) bool {
	return goerrors.Is(err, ErrProviderUnavailable)
}

// IsNoCredentials reports whether err means no session was stored.
func IsNoCredentials(err error) bool {
	return goerrors.Is(err, ErrNoCredentials)
}

// TextCode returns the text code of the first categorized error in err's
// chain, or an empty string.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}
