package authclient_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{name: "wrapped refresh denied", err: fmt.Errorf("%w: %w", authclient.ErrRefreshDenied, errors.New("invalid_grant")), check: authclient.IsRefreshDenied, want: true},
		{name: "plain error is not refresh denied", err: errors.New("invalid_grant"), check: authclient.IsRefreshDenied},
		{name: "wrapped provider unavailable", err: fmt.Errorf("init: %w", authclient.ErrProviderUnavailable), check: authclient.IsProviderUnavailable, want: true},
		{name: "nil is not provider unavailable", err: nil, check: authclient.IsProviderUnavailable},
		{name: "no credentials", err: fmt.Errorf("load: %w", authclient.ErrNoCredentials), check: authclient.IsNoCredentials, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestErrorCategoriesAndCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
		code     int
	}{
		{name: "provider unavailable", err: authclient.ErrProviderUnavailable, category: goerrors.CategoryExternal, textCode: authclient.TextCodeProviderUnavailable, code: goerrors.CodeInternal},
		{name: "refresh denied", err: authclient.ErrRefreshDenied, category: goerrors.CategoryAuth, textCode: authclient.TextCodeRefreshDenied, code: goerrors.CodeUnauthorized},
		{name: "invalid transition", err: authclient.ErrInvalidTransition, category: goerrors.CategoryValidation, textCode: authclient.TextCodeInvalidTransition, code: goerrors.CodeBadRequest},
		{name: "non interactive", err: authclient.ErrNonInteractive, category: goerrors.CategoryOperation, textCode: authclient.TextCodeNonInteractive, code: goerrors.CodeConflict},
		{name: "no credentials", err: authclient.ErrNoCredentials, category: goerrors.CategoryNotFound, textCode: authclient.TextCodeNoCredentials, code: goerrors.CodeNotFound},
		{name: "malformed claims", err: authclient.ErrMalformedClaims, category: goerrors.CategoryBadInput, textCode: goerrors.TextCodeTokenMalformed, code: goerrors.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("%w: %w", tt.err, errors.New("upstream"))

			var rich *goerrors.Error
			require.True(t, goerrors.As(wrapped, &rich))
			assert.Equal(t, tt.code, rich.Code)
			assert.True(t, goerrors.IsCategory(wrapped, tt.category))
			assert.Equal(t, tt.textCode, authclient.TextCode(wrapped))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestTextCodeOfPlainError(t *testing.T) {
	assert.Empty(t, authclient.TextCode(errors.New("plain")))
	assert.Empty(t, authclient.TextCode(nil))
}
