package authclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var (
	errStaleObservation = goerrors.New("stale session observation", goerrors.CategoryConflict)

	// errLogoutPending rejects a session observed while a local logout has
	// not been followed by an explicit authentication.
	errLogoutPending = goerrors.New("local logout pending", goerrors.CategoryConflict)
)

// Controller owns the session. It is the only component that calls the
// provider's Init, Login and Logout, and every session mutation goes
// through apply.
type Controller struct {
	provider  IdentityProvider
	config    SessionConfig
	logger    Logger
	clock     func() time.Time
	activity  ActivitySink
	notifier  Notifier
	customers CustomerSync
	profiles  ProfileLoader
	roleOpts  []RoleOption
	hooks     []TransitionHook
	refresher *Refresher
	machine   lifecycle

	mu      sync.RWMutex
	sess    session
	revoked bool

	listenersMu  sync.Mutex
	listeners    map[uint64]func(Snapshot)
	nextListener uint64

	nonInteractive atomic.Bool
	wg             sync.WaitGroup
}

// StartupOptions controls Startup.
type StartupOptions struct {
	// NonInteractive skips the provider entirely, e.g. for headless or
	// prerendering contexts.
	NonInteractive bool
}

// StartupResult describes how Startup ended. Err carries the provider
// failure, if any, for diagnostics; the session has already been left in a
// usable unauthenticated state when it is set.
type StartupResult struct {
	State         LifecycleState
	Authenticated bool
	Skipped       bool
	Err           error
}

// NewController creates a Controller driving provider.
func NewController(provider IdentityProvider, opts ...ControllerOption) *Controller {
	c := &Controller{
		provider:  provider,
		config:    DefaultSessionConfig(),
		logger:    defLogger{},
		clock:     time.Now,
		activity:  noopActivitySink{},
		notifier:  noopNotifier{},
		machine:   newLifecycle(),
		listeners: make(map[uint64]func(Snapshot)),
	}

	if loader, ok := provider.(ProfileLoader); ok {
		c.profiles = loader
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.config = c.config.withDefaults()
	if c.config.RoleClientID != "" {
		c.roleOpts = append([]RoleOption{WithRoleClientID(c.config.RoleClientID)}, c.roleOpts...)
	}
	if c.refresher == nil {
		c.refresher = NewRefresher(provider, c.logger)
	}

	c.sess = session{
		roles:     NewRoleSet(),
		state:     StateUnauthenticated,
		updatedAt: c.clock(),
	}

	return c
}

// Startup initializes the provider session. It never fails: provider errors
// leave the session unauthenticated and are reported in the result.
func (c *Controller) Startup(ctx context.Context, opts StartupOptions) StartupResult {
	if opts.NonInteractive || c.config.NonInteractive {
		c.nonInteractive.Store(true)
		c.logger.Info("non-interactive context, skipping identity provider init")
		snap := c.Snapshot()
		c.record(ctx, ActivityEventStartupSkipped, snap, snap, nil)
		return StartupResult{State: c.State(), Skipped: true}
	}

	bg := context.WithoutCancel(ctx)
	c.provider.SetHandlers(Handlers{
		OnAuthSuccess:  func() { c.HandleAuthSuccess(bg) },
		OnAuthLogout:   func() { c.HandleAuthLogout(bg) },
		OnTokenExpired: func() { _ = c.HandleTokenExpired(bg) },
	})

	if _, err := c.apply(ctx, observation{kind: observeAuthenticating, reason: "startup"}); err != nil {
		c.logger.Debug("startup from %s: %v", c.State(), err)
	}

	ok, err := c.provider.Init(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		c.logger.Warn("identity provider init failed, continuing unauthenticated: %v", err)
		c.clearFrom(ctx, StateAuthenticating, "startup_failed")
		snap := c.Snapshot()
		c.record(ctx, ActivityEventProviderFailure, snap, snap, map[string]any{"error": err.Error()})
		return StartupResult{State: c.State(), Err: err}
	}

	if !ok {
		c.clearFrom(ctx, StateAuthenticating, "startup")
		return StartupResult{State: c.State()}
	}

	if err := c.enterAuthenticated(ctx, "startup", true); err != nil {
		c.clearFrom(ctx, StateAuthenticating, "startup_failed")
		return StartupResult{State: c.State(), Err: err}
	}

	return StartupResult{State: c.State(), Authenticated: true}
}

// Login starts the provider login flow. The session changes later, when the
// provider reports success or the watcher notices it.
func (c *Controller) Login(ctx context.Context) error {
	if err := c.provider.Login(ctx); err != nil {
		c.logger.Warn("login redirect failed: %v", err)
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return nil
}

// Logout clears the session before asking the provider to log out, so the
// local state is signed out even if the provider call is slow or fails.
func (c *Controller) Logout(ctx context.Context) error {
	if c.signOut(ctx, StateUnauthenticated, "logout") {
		c.notify(ctx, NoticeInfo, "You have been signed out")
	}

	if err := c.provider.Logout(ctx); err != nil {
		c.logger.Warn("provider logout failed: %v", err)
		return fmt.Errorf("provider logout: %w", err)
	}
	return nil
}

// HandleAuthSuccess applies a provider authentication event. It is the
// explicit sign in that lifts a pending local logout.
func (c *Controller) HandleAuthSuccess(ctx context.Context) {
	if err := c.enterAuthenticated(ctx, "auth_success", true); err != nil {
		c.logger.Warn("auth success event ignored: %v", err)
	}
}

// HandleAuthLogout applies a provider logout event. The provider is not
// called back.
func (c *Controller) HandleAuthLogout(ctx context.Context) {
	c.signOut(ctx, StateUnauthenticated, "provider_logout")
}

// HandleTokenExpired tries to refresh an expired token. When the refresh
// fails the session goes through RefreshFailed and is logged out. A session
// that is already signed out is left alone.
func (c *Controller) HandleTokenExpired(ctx context.Context) error {
	if !c.CredentialsAllowed() {
		c.logger.Debug("token expired while a logout is pending, not refreshing")
		return nil
	}

	out := c.refresher.Refresh(ctx, c.config.ExpiredLeeway)
	if !out.Failed() {
		err := c.enterAuthenticated(ctx, "token_refreshed", false)
		if goerrors.Is(err, errLogoutPending) {
			return nil
		}
		return err
	}

	before := c.Snapshot()
	if !before.Authenticated {
		c.logger.Debug("refresh failed without a session: %v", out.Err)
		return out.Err
	}

	c.signOut(ctx, StateRefreshFailed, "refresh_failed")
	c.record(ctx, ActivityEventRefreshFailed, before, c.Snapshot(), map[string]any{"error": out.Err.Error()})
	c.notify(ctx, NoticeError, "Your session has expired, please sign in again")

	if err := c.Logout(ctx); err != nil {
		c.logger.Warn("forced logout: %v", err)
	}
	return out.Err
}

// Reconcile brings the cached session in line with the provider's live
// authenticated flag. It reports whether a correction was applied. While a
// local logout is pending the provider session is not adopted.
func (c *Controller) Reconcile(ctx context.Context, observed bool) bool {
	before := c.Snapshot()
	cached := before.Authenticated

	if observed == cached {
		return false
	}

	if observed && !c.CredentialsAllowed() {
		c.logger.Debug("provider still reports a session, local logout pending")
		return false
	}

	c.logger.Info("provider reports authenticated=%t, session has %t", observed, cached)

	if observed {
		if err := c.enterAuthenticated(ctx, "reconciled", false); err != nil {
			c.logger.Debug("reconcile: %v", err)
			return false
		}
	} else {
		if _, err := c.apply(ctx, observation{kind: observeCleared, state: StateUnauthenticated, reason: "reconciled"}); err != nil {
			c.logger.Debug("reconcile: %v", err)
			return false
		}
	}

	c.record(ctx, ActivityEventReconciled, before, c.Snapshot(), map[string]any{"observed": observed})
	return true
}

// Snapshot returns a copy of the current authorization state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.snapshot()
}

// Authenticated reports the cached authenticated flag.
func (c *Controller) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.authenticated
}

// IsAdmin checks if the current user holds the admin role.
func (c *Controller) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}

// HasRole checks if the current user holds role.
func (c *Controller) HasRole(role string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.authenticated && c.sess.roles.Has(role)
}

// HasAnyRole checks if the current user holds one of roles.
func (c *Controller) HasAnyRole(roles ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.authenticated && c.sess.roles.HasAny(roles...)
}

// Profile returns a copy of the hydrated profile, or nil.
func (c *Controller) Profile() *Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.profile.Clone()
}

// State returns the lifecycle state.
func (c *Controller) State() LifecycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess.state
}

// NonInteractive reports whether Startup skipped the provider.
func (c *Controller) NonInteractive() bool {
	return c.nonInteractive.Load()
}

// CredentialsAllowed is false after a local or forced logout until the
// next explicit authentication, from Startup or HandleAuthSuccess.
func (c *Controller) CredentialsAllowed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.revoked
}

// Provider returns the identity provider driven by the controller.
func (c *Controller) Provider() IdentityProvider {
	return c.provider
}

// Refresher returns the shared refresh coalescer.
func (c *Controller) Refresher() *Refresher {
	return c.refresher
}

// Config returns the effective session configuration.
func (c *Controller) Config() SessionConfig {
	return c.config
}

// Subscribe registers fn to receive a snapshot after every committed
// mutation. Listeners run outside the session lock, possibly concurrently;
// use Snapshot.Version to order them.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Wait blocks until background profile and customer sync work is done.
func (c *Controller) Wait() {
	c.wg.Wait()
}

type observationKind int

const (
	observeAuthenticated observationKind = iota
	observeAuthenticating
	observeCleared
	observeProfile
)

// observation is the single input type of apply.
type observation struct {
	kind   observationKind
	reason string

	claims ClaimSet
	// explicit marks a sign in that may lift a pending local logout.
	explicit bool

	// state is the target of observeCleared.
	state LifecycleState
	// from, when set, makes observeCleared a no-op unless the session is
	// still in that state.
	from   LifecycleState
	revoke bool

	profile *Profile
	epoch   uint64
}

type transition struct {
	prev session
	next session
}

func (t transition) newSession() bool {
	return t.next.authenticated && t.next.epoch != t.prev.epoch
}

// apply is the only place the session is written.
func (c *Controller) apply(ctx context.Context, obs observation) (transition, error) {
	now := c.clock()

	c.mu.Lock()
	prev := c.sess
	if obs.kind == observeAuthenticated && c.revoked && !obs.explicit {
		c.mu.Unlock()
		return transition{prev: prev, next: prev}, errLogoutPending
	}
	next, err := c.reduce(prev, obs, now)
	if err != nil {
		c.mu.Unlock()
		return transition{prev: prev, next: prev}, err
	}
	c.sess = next
	switch {
	case next.authenticated:
		c.revoked = false
	case obs.revoke:
		c.revoked = true
	}
	c.mu.Unlock()

	tr := transition{prev: prev, next: next}
	c.publish(ctx, tr, obs.reason)
	return tr, nil
}

func (c *Controller) reduce(prev session, obs observation, now time.Time) (session, error) {
	switch obs.kind {
	case observeAuthenticated:
		if err := c.machine.check(prev.state, StateAuthenticated); err != nil {
			return prev, err
		}
		next := session{
			authenticated: true,
			claims:        obs.claims,
			roles:         ExtractRoles(obs.claims, c.roleOpts...),
			state:         StateAuthenticated,
			epoch:         prev.epoch,
			version:       prev.version + 1,
			updatedAt:     now,
		}
		if prev.authenticated && prev.claims.Subject() == obs.claims.Subject() {
			next.profile = prev.profile
		} else {
			next.epoch++
		}
		return next, nil

	case observeAuthenticating:
		if err := c.machine.check(prev.state, StateAuthenticating); err != nil {
			return prev, err
		}
		next := prev
		next.state = StateAuthenticating
		next.version++
		next.updatedAt = now
		return next, nil

	case observeCleared:
		if obs.from != "" && prev.state != obs.from {
			return prev, errStaleObservation
		}
		if err := c.machine.check(prev.state, obs.state); err != nil {
			return prev, err
		}
		return clearedSession(prev, obs.state, now), nil

	case observeProfile:
		if !prev.authenticated || prev.epoch != obs.epoch {
			return prev, errStaleObservation
		}
		next := prev
		next.profile = obs.profile.Clone()
		next.version++
		next.updatedAt = now
		return next, nil
	}

	return prev, fmt.Errorf("unknown observation kind %d", obs.kind)
}

func (c *Controller) publish(ctx context.Context, tr transition, reason string) {
	if tr.prev.state != tr.next.state {
		c.logger.Debug("session %s -> %s (%s)", tr.prev.state, tr.next.state, reason)
		tc := TransitionContext{
			From:    tr.prev.state,
			To:      tr.next.state,
			Reason:  reason,
			Subject: tr.next.claims.Subject(),
			Version: tr.next.version,
		}
		if tc.Subject == "" {
			tc.Subject = tr.prev.claims.Subject()
		}
		for _, hook := range c.hooks {
			hook(ctx, tc)
		}
	}

	c.listenersMu.Lock()
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.listenersMu.Unlock()

	if len(listeners) == 0 {
		return
	}
	snap := tr.next.snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) enterAuthenticated(ctx context.Context, reason string, explicit bool) error {
	token := c.provider.Token()
	if token == "" {
		return fmt.Errorf("%w: provider reported a session without a token", ErrNoCredentials)
	}

	// claims are decoded from the token read above so both describe the
	// same session; the provider copy is only used for opaque tokens
	claims, err := ParseClaims(token)
	if err != nil {
		claims = c.provider.Claims()
		if claims == nil {
			c.logger.Warn("token claims unavailable: %v", err)
		}
	}

	tr, err := c.apply(ctx, observation{
		kind:     observeAuthenticated,
		reason:   reason,
		claims:   claims,
		explicit: explicit,
	})
	if err != nil {
		return err
	}

	if tr.newSession() {
		c.beginSession(ctx, tr)
	}
	return nil
}

// beginSession runs the side effects of a new authenticated session.
func (c *Controller) beginSession(ctx context.Context, tr transition) {
	s := tr.next
	snap := s.snapshot()
	c.logger.Info("session authenticated subject=%s roles=%v", snap.Subject, snap.Roles.Slice())
	c.record(ctx, ActivityEventAuthenticated, tr.prev.snapshot(), snap, nil)
	c.notify(ctx, NoticeSuccess, welcomeMessage(s.claims))

	bg := context.WithoutCancel(ctx)

	if c.profiles != nil {
		c.wg.Add(1)
		go c.hydrateProfile(bg, s.epoch)
	}

	if c.customers != nil {
		c.wg.Add(1)
		go c.syncCustomer(bg, snap)
	}
}

func (c *Controller) hydrateProfile(ctx context.Context, epoch uint64) {
	defer c.wg.Done()

	profile, err := c.profiles.LoadProfile(ctx)
	if err == nil && profile == nil {
		err = ErrProfileUnavailable
	}
	if err != nil {
		c.logger.Warn("profile hydration failed: %v", err)
		return
	}

	tr, err := c.apply(ctx, observation{
		kind:    observeProfile,
		reason:  "profile_loaded",
		profile: profile,
		epoch:   epoch,
	})
	if goerrors.Is(err, errStaleObservation) {
		c.logger.Debug("discarding profile of a previous session")
		return
	}
	if err != nil {
		c.logger.Warn("profile hydration: %v", err)
		return
	}

	c.record(ctx, ActivityEventProfileLoaded, tr.prev.snapshot(), tr.next.snapshot(), nil)
}

func (c *Controller) syncCustomer(ctx context.Context, snap Snapshot) {
	defer c.wg.Done()

	if err := c.customers.SyncCurrentUser(ctx); err != nil {
		c.logger.Warn("customer sync failed: %v", err)
		return
	}

	c.record(ctx, ActivityEventCustomerSynced, snap, snap, nil)
}

// signOut clears the session into state and records the logout. It reports
// whether an authenticated session was ended.
func (c *Controller) signOut(ctx context.Context, state LifecycleState, reason string) bool {
	tr, err := c.apply(ctx, observation{
		kind:   observeCleared,
		state:  state,
		reason: reason,
		revoke: true,
	})
	if err != nil {
		// RefreshFailed is only reachable from Authenticated
		if state == StateRefreshFailed {
			return c.signOut(ctx, StateUnauthenticated, reason)
		}
		c.logger.Warn("sign out: %v", err)
		return false
	}

	if !tr.prev.authenticated {
		return false
	}

	if state == StateUnauthenticated {
		c.record(ctx, ActivityEventLogout, tr.prev.snapshot(), tr.next.snapshot(), map[string]any{"reason": reason})
	}
	return true
}

func (c *Controller) clearFrom(ctx context.Context, from LifecycleState, reason string) {
	_, err := c.apply(ctx, observation{
		kind:   observeCleared,
		state:  StateUnauthenticated,
		from:   from,
		reason: reason,
	})
	if err != nil && !goerrors.Is(err, errStaleObservation) {
		c.logger.Warn("clear session: %v", err)
	}
}

func (c *Controller) record(ctx context.Context, eventType ActivityEventType, from, to Snapshot, metadata map[string]any) {
	subject := to.Subject
	if subject == "" {
		subject = from.Subject
	}
	event := ActivityEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		Subject:    subject,
		FromState:  from.State,
		ToState:    to.State,
		Metadata:   metadata,
		OccurredAt: c.clock(),
	}
	if err := c.activity.Record(ctx, event); err != nil {
		c.logger.Warn("activity sink error: %v", err)
	}
}

func (c *Controller) notify(ctx context.Context, kind NoticeKind, message string) {
	c.notifier.Notify(ctx, newNotice(kind, message, c.clock()))
}

func welcomeMessage(claims ClaimSet) string {
	for _, key := range []string{"given_name", "preferred_username", "name", "email"} {
		if v := claims.String(key); v != "" {
			return "Welcome, " + v
		}
	}
	return "Welcome"
}
