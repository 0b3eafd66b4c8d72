package authclient_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
)

// fakeProvider is a stateful in-memory identity provider.
type fakeProvider struct {
	mu            sync.Mutex
	authenticated bool
	token         string
	claims        authclient.ClaimSet
	expired       bool
	handlers      authclient.Handlers

	initFn   func(ctx context.Context) (bool, error)
	updateFn func(ctx context.Context, leeway time.Duration) (bool, error)
	loginFn  func(ctx context.Context) error
	logoutFn func(ctx context.Context) error

	initCalls     atomic.Int32
	loginCalls    atomic.Int32
	logoutCalls   atomic.Int32
	updateCalls   atomic.Int32
	expiredChecks atomic.Int32
	lastLeeway    atomic.Int64
}

var _ authclient.IdentityProvider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{}
}

// signIn sets an authenticated session holding token.
func (p *fakeProvider) signIn(token string, claims authclient.ClaimSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticated = true
	p.token = token
	p.claims = claims
	p.expired = false
}

func (p *fakeProvider) signOut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticated = false
	p.token = ""
	p.claims = nil
}

func (p *fakeProvider) setExpired(expired bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = expired
}

func (p *fakeProvider) Init(ctx context.Context) (bool, error) {
	p.initCalls.Add(1)
	if p.initFn != nil {
		return p.initFn(ctx)
	}
	return p.Authenticated(), nil
}

func (p *fakeProvider) Login(ctx context.Context) error {
	p.loginCalls.Add(1)
	if p.loginFn != nil {
		return p.loginFn(ctx)
	}
	return nil
}

func (p *fakeProvider) Logout(ctx context.Context) error {
	p.logoutCalls.Add(1)
	if p.logoutFn != nil {
		return p.logoutFn(ctx)
	}
	p.signOut()
	return nil
}

func (p *fakeProvider) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

func (p *fakeProvider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *fakeProvider) Claims() authclient.ClaimSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claims
}

func (p *fakeProvider) IsTokenExpired(leeway time.Duration) bool {
	p.expiredChecks.Add(1)
	p.lastLeeway.Store(int64(leeway))
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expired
}

func (p *fakeProvider) UpdateToken(ctx context.Context, leeway time.Duration) (bool, error) {
	p.updateCalls.Add(1)
	p.lastLeeway.Store(int64(leeway))
	if p.updateFn != nil {
		return p.updateFn(ctx, leeway)
	}
	return false, nil
}

func (p *fakeProvider) SetHandlers(h authclient.Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = h
}

func (p *fakeProvider) fireAuthSuccess() {
	p.mu.Lock()
	fn := p.handlers.OnAuthSuccess
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakeProvider) fireAuthLogout() {
	p.mu.Lock()
	fn := p.handlers.OnAuthLogout
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakeProvider) fireTokenExpired() {
	p.mu.Lock()
	fn := p.handlers.OnTokenExpired
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// MockProfileLoader implements authclient.ProfileLoader
type MockProfileLoader struct {
	mock.Mock
}

func (m *MockProfileLoader) LoadProfile(ctx context.Context) (*authclient.Profile, error) {
	args := m.Called(ctx)
	profile, _ := args.Get(0).(*authclient.Profile)
	return profile, args.Error(1)
}

// MockCustomerSync implements authclient.CustomerSync
type MockCustomerSync struct {
	mock.Mock
}

func (m *MockCustomerSync) SyncCurrentUser(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockActivitySink implements authclient.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event authclient.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []authclient.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event authclient.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []authclient.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authclient.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// recordingNotifier keeps every notice it receives.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []authclient.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice authclient.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) kinds() []authclient.NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]authclient.NoticeKind, 0, len(n.notices))
	for _, notice := range n.notices {
		out = append(out, notice.Kind)
	}
	return out
}

type logCall struct {
	level   string
	message string
}

// captureLogger records formatted log lines.
type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: fmt.Sprintf(format, args...)})
}

func (l *captureLogger) Debug(format string, args ...any) { l.record("debug", format, args...) }
func (l *captureLogger) Info(format string, args ...any)  { l.record("info", format, args...) }
func (l *captureLogger) Warn(format string, args ...any)  { l.record("warn", format, args...) }
func (l *captureLogger) Error(format string, args ...any) { l.record("error", format, args...) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.level == level {
			n++
		}
	}
	return n
}

// keycloakClaims builds a Keycloak style claim set.
func keycloakClaims(sub string, realm []string, clients map[string][]string) authclient.ClaimSet {
	claims := authclient.ClaimSet{"sub": sub}
	if realm != nil {
		roles := make([]any, 0, len(realm))
		for _, r := range realm {
			roles = append(roles, r)
		}
		claims["realm_access"] = map[string]any{"roles": roles}
	}
	if clients != nil {
		access := map[string]any{}
		for client, list := range clients {
			roles := make([]any, 0, len(list))
			for _, r := range list {
				roles = append(roles, r)
			}
			access[client] = map[string]any{"roles": roles}
		}
		claims["resource_access"] = access
	}
	return claims
}

// signToken encodes claims as an HS256 JWT.
func signToken(t *testing.T, claims authclient.ClaimSet) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
