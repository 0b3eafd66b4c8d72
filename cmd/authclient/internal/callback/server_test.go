package callback_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-client/cmd/authclient/internal/callback"
)

func TestNewRejectsBadRedirect(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "https", url: "https://127.0.0.1:8085/callback"},
		{name: "no port", url: "http://127.0.0.1/callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := callback.New(tt.url, nil)
			assert.Error(t, err)
		})
	}
}

func TestCallbackDeliversCode(t *testing.T) {
	var gotState, gotCode string
	s, err := callback.New("http://127.0.0.1:8085/callback", func(_ context.Context, state, code string) error {
		gotState, gotCode = state, code
		return nil
	})
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/callback?state=abc&code=xyz", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "Login complete")
	assert.Equal(t, "abc", gotState)
	assert.Equal(t, "xyz", gotCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Wait(ctx))
}

func TestCallbackHandlerError(t *testing.T) {
	boom := errors.New("unknown state")
	s, err := callback.New("http://127.0.0.1:8085/callback", func(context.Context, string, string) error {
		return boom
	})
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/callback?state=abc&code=xyz", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), boom)
}

func TestCallbackIssuerError(t *testing.T) {
	called := false
	s, err := callback.New("http://127.0.0.1:8085/callback", func(context.Context, string, string) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	resp, err := s.App().Test(httptest.NewRequest("GET", "/callback?error=access_denied", nil))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.False(t, called)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), callback.ErrAuthorizationDenied)
}

func TestWaitHonorsContext(t *testing.T) {
	s, err := callback.New("http://127.0.0.1:8085/callback", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.Canceled)
}
