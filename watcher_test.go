package authclient_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-auth-client"
)

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func (m *manualTicker) tick() { m.ch <- time.Now() }

func TestWatcherCorrectsMissedLogout(t *testing.T) {
	p := signedInProvider(t, "user-1", []string{"user"}, nil)
	sink := &recordingSink{}
	c := newTestController(p, authclient.WithActivitySink(sink))
	c.Startup(context.Background(), authclient.StartupOptions{})
	require.True(t, c.Authenticated())

	ticker := newManualTicker()
	var requested atomic.Int64
	w := authclient.NewWatcher(c,
		authclient.WithWatchInterval(250*time.Millisecond),
		authclient.WithTickerFactory(func(d time.Duration) authclient.Ticker {
			requested.Store(int64(d))
			return ticker
		}),
	)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	ticker.tick()
	assert.True(t, c.Authenticated(), "no drift, nothing to correct")

	// session expired in another tab, no logout event delivered
	p.mu.Lock()
	p.authenticated = false
	p.mu.Unlock()
	ticker.tick()

	require.Eventually(t, func() bool { return !c.Authenticated() }, time.Second, 5*time.Millisecond)
	assertClearedInvariant(t, c.Snapshot())
	assert.Equal(t, authclient.StateUnauthenticated, c.State())
	assert.Equal(t, int64(250*time.Millisecond), requested.Load())
	assert.Contains(t, sink.types(), authclient.ActivityEventReconciled)
}

func TestWatcherCheckAdoptsProviderSession(t *testing.T) {
	p := newFakeProvider()
	c := newTestController(p)
	c.Startup(context.Background(), authclient.StartupOptions{})
	require.False(t, c.Authenticated())

	claims := keycloakClaims("user-2", []string{"manager"}, nil)
	p.signIn(signToken(t, claims), claims)

	w := authclient.NewWatcher(c)
	assert.True(t, w.Check(context.Background()))
	assert.True(t, c.HasRole("manager"))
	assert.False(t, w.Check(context.Background()), "second check finds no drift")
	c.Wait()
}

func TestWatcherKeepsLocalLogoutWhileRedirectPending(t *testing.T) {
	p := signedInProvider(t, "user-1", []string{"user"}, map[string][]string{"shop": {"admin"}})
	customers := &MockCustomerSync{}
	customers.On("SyncCurrentUser", mock.Anything).Return(nil).Once()
	notices := &recordingNotifier{}
	c := newTestController(p, authclient.WithCustomerSync(customers), authclient.WithNotifier(notices))
	c.Startup(context.Background(), authclient.StartupOptions{})
	c.Wait()
	require.True(t, c.IsAdmin())

	rec := &headerRecorder{}
	client := c.Transport(authclient.WithBaseTransport(rec)).Client()
	w := authclient.NewWatcher(c)

	entered := make(chan struct{})
	release := make(chan struct{})
	p.logoutFn = func(context.Context) error {
		// the provider still reports the session until the redirect lands
		close(entered)
		<-release
		p.signOut()
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Logout(context.Background()) }()
	<-entered

	require.True(t, p.Authenticated())
	assert.False(t, w.Check(context.Background()))
	assert.False(t, w.Check(context.Background()))
	doGet(t, client)

	snap := c.Snapshot()
	assert.False(t, snap.Authenticated)
	assertClearedInvariant(t, snap)
	assert.Equal(t, authclient.StateUnauthenticated, snap.State)
	assert.False(t, c.CredentialsAllowed())
	assert.Equal(t, []string{""}, rec.all())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, w.Check(context.Background()), "provider caught up, no drift")

	c.Wait()
	customers.AssertExpectations(t)
	assert.Equal(t, []authclient.NoticeKind{authclient.NoticeSuccess, authclient.NoticeInfo}, notices.kinds())

	// an explicit sign in lifts the pending logout
	claims := keycloakClaims("user-1", []string{"user"}, nil)
	p.signIn(signToken(t, claims), claims)
	customers.On("SyncCurrentUser", mock.Anything).Return(nil).Once()
	p.fireAuthSuccess()
	c.Wait()

	assert.True(t, c.Authenticated())
	assert.True(t, c.CredentialsAllowed())
}

func TestWatcherDoesNotAdoptSessionAfterLogoutError(t *testing.T) {
	p := signedInProvider(t, "user-1", []string{"user"}, nil)
	p.logoutFn = func(context.Context) error { return errors.New("redirect blocked") }
	c := newTestController(p)
	c.Startup(context.Background(), authclient.StartupOptions{})

	require.Error(t, c.Logout(context.Background()))
	require.True(t, p.Authenticated())

	w := authclient.NewWatcher(c)
	assert.False(t, w.Check(context.Background()))
	assert.False(t, c.Authenticated())
	assert.False(t, c.CredentialsAllowed())
}

func TestWatcherStartIsIdempotent(t *testing.T) {
	p := newFakeProvider()
	c := newTestController(p)

	var created atomic.Int32
	ticker := newManualTicker()
	w := authclient.NewWatcher(c, authclient.WithTickerFactory(func(time.Duration) authclient.Ticker {
		created.Add(1)
		return ticker
	}))

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()

	assert.Equal(t, int32(1), created.Load())
	assert.True(t, ticker.stopped.Load())
	select {
	case <-w.Done():
	default:
		t.Fatal("done channel should be closed after Stop")
	}
}

func TestWatcherStopsWithContext(t *testing.T) {
	c := newTestController(newFakeProvider())
	ticker := newManualTicker()
	w := authclient.NewWatcher(c, authclient.WithTickerFactory(func(time.Duration) authclient.Ticker {
		return ticker
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not exit after context cancellation")
	}
	assert.True(t, ticker.stopped.Load())
}

func TestWatcherRefusesNonInteractive(t *testing.T) {
	p := newFakeProvider()
	c := newTestController(p)
	c.Startup(context.Background(), authclient.StartupOptions{NonInteractive: true})

	var created atomic.Int32
	w := authclient.NewWatcher(c, authclient.WithTickerFactory(func(time.Duration) authclient.Ticker {
		created.Add(1)
		return newManualTicker()
	}))

	assert.ErrorIs(t, w.Start(context.Background()), authclient.ErrNonInteractive)
	assert.Equal(t, int32(0), created.Load())
	w.Stop()
}

func TestWatcherStopBeforeStart(t *testing.T) {
	w := authclient.NewWatcher(newTestController(newFakeProvider()))
	w.Stop()
	<-w.Done()
}
