package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/cmd/authclient/internal/app"
	"github.com/goliatone/go-auth-client/repository"
)

func newIssuer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"issuer":                 server.URL,
				"authorization_endpoint": server.URL + "/auth",
				"token_endpoint":         server.URL + "/token",
				"jwks_uri":               server.URL + "/certs",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func signedToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                "user-1",
		"preferred_username": "jdoe",
		"exp":                time.Now().Add(time.Hour).Unix(),
		"realm_access":       map[string]any{"roles": []string{"user"}},
		"resource_access": map[string]any{
			"shop-cli": map[string]any{"roles": []string{"admin"}},
		},
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

type noticeLog struct {
	mu      sync.Mutex
	notices []authclient.Notice
}

func (n *noticeLog) Notify(_ context.Context, notice authclient.Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func TestAppRestoresSessionAndSyncsCustomer(t *testing.T) {
	issuer := newIssuer(t)
	token := signedToken(t)

	var gotAuth string
	synced := make(chan struct{}, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/customer-service/api/customers/me", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c-1","keycloakId":"user-1","username":"jdoe"}`))
		synced <- struct{}{}
	}))
	defer gateway.Close()

	credsPath := filepath.Join(t.TempDir(), "credentials.json")
	store, err := repository.NewFileStore(credsPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveCredentials(context.Background(), &authclient.Credentials{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	cfg := authclient.DefaultConfig()
	cfg.Provider.Issuer = issuer.URL
	cfg.Provider.ClientID = "shop-cli"
	cfg.Provider.RedirectURL = "http://127.0.0.1:8085/callback"
	cfg.Provider.CredentialsFile = credsPath
	cfg.Customers.Enabled = true
	cfg.Customers.GatewayURL = gateway.URL

	var logs bytes.Buffer
	notices := &noticeLog{}
	a, err := app.New(context.Background(), cfg, app.WithOutput(&logs), app.WithNotifier(notices))
	require.NoError(t, err)
	defer a.Close()

	result := a.Controller.Startup(context.Background(), authclient.StartupOptions{})
	require.NoError(t, result.Err)
	assert.True(t, result.Authenticated)

	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("customer sync was not called")
	}
	a.Controller.Wait()

	assert.Equal(t, "Bearer "+token, gotAuth)
	assert.True(t, a.Controller.IsAdmin())
	assert.True(t, a.Controller.HasRole("user"))

	notices.mu.Lock()
	defer notices.mu.Unlock()
	require.NotEmpty(t, notices.notices)
	assert.Equal(t, "Welcome, jdoe", notices.notices[0].Message)
}

func TestAppRejectsInvalidConfig(t *testing.T) {
	cfg := authclient.DefaultConfig()
	_, err := app.New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestAppUsesSQLiteStore(t *testing.T) {
	issuer := newIssuer(t)

	cfg := authclient.DefaultConfig()
	cfg.Provider.Issuer = issuer.URL
	cfg.Provider.ClientID = "shop-cli"
	cfg.Provider.RedirectURL = "http://127.0.0.1:8085/callback"
	cfg.Provider.CredentialsDatabase = "file:" + t.Name() + "?mode=memory&cache=shared"

	a, err := app.New(context.Background(), cfg, app.WithOutput(&bytes.Buffer{}), app.WithNotifier(&noticeLog{}))
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Store.(*repository.CredentialRepository)
	assert.True(t, ok)

	result := a.Controller.Startup(context.Background(), authclient.StartupOptions{})
	assert.NoError(t, result.Err)
	assert.False(t, result.Authenticated)
}

func TestNewSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := app.NewSlog(authclient.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
