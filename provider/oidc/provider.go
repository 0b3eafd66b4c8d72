package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/oauth2"

	authclient "github.com/goliatone/go-auth-client"
)

var (
	// ErrUnknownState is returned by HandleCallback for a state that was
	// never issued by Login or already used.
	ErrUnknownState = goerrors.New("unknown or expired login state", goerrors.CategoryAuth).
		WithTextCode(goerrors.TextCodeSessionNotFound).
		WithCode(goerrors.CodeBadRequest)

	// ErrNoRefreshToken is returned by UpdateToken when the session cannot
	// be refreshed.
	ErrNoRefreshToken = goerrors.New("no refresh token available", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
)

const pendingLoginTTL = 10 * time.Minute

var (
	_ authclient.IdentityProvider = (*Provider)(nil)
	_ authclient.ProfileLoader    = (*Provider)(nil)
)

// Redirector sends the user agent to a provider URL, e.g. by opening a
// browser or printing the link.
type Redirector interface {
	Redirect(ctx context.Context, target string) error
}

// RedirectorFunc adapts a function to the Redirector interface.
type RedirectorFunc func(ctx context.Context, target string) error

// Redirect implements Redirector.
func (f RedirectorFunc) Redirect(ctx context.Context, target string) error {
	return f(ctx, target)
}

// Provider is an authclient.IdentityProvider backed by an OpenID Connect
// issuer using the authorization code flow with PKCE.
type Provider struct {
	config        Config
	oauth2        *oauth2.Config
	provider      *oidc.Provider
	verifier      *oidc.IDTokenVerifier
	endSessionURL string

	store      authclient.CredentialStore
	redirector Redirector
	logger     authclient.Logger
	clock      func() time.Time
	httpClient *http.Client

	mu       sync.RWMutex
	token    *oauth2.Token
	idToken  string
	claims   authclient.ClaimSet
	handlers authclient.Handlers
	pending  map[string]pendingLogin
	expiry   *time.Timer
}

type pendingLogin struct {
	verifier  string
	createdAt time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithCredentialStore persists the session between runs.
func WithCredentialStore(store authclient.CredentialStore) Option {
	return func(p *Provider) {
		p.store = store
	}
}

// WithRedirector sets how login and logout URLs are opened.
func WithRedirector(r Redirector) Option {
	return func(p *Provider) {
		if r != nil {
			p.redirector = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger authclient.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHTTPClient sets the client used for discovery and token calls.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New discovers the issuer and returns a Provider.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid oidc config: %w", err)
	}

	p := &Provider{
		config:  cfg,
		logger:  authclient.NoopLogger(),
		clock:   time.Now,
		pending: make(map[string]pendingLogin),
	}
	p.redirector = RedirectorFunc(func(_ context.Context, target string) error {
		p.logger.Info("open %s to continue", target)
		return nil
	})

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	discovered, err := oidc.NewProvider(p.clientContext(ctx), cfg.issuerURL())
	if err != nil {
		return nil, fmt.Errorf("%w: discovery: %w", authclient.ErrProviderUnavailable, err)
	}

	var meta struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := discovered.Claims(&meta); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}

	p.provider = discovered
	p.endSessionURL = meta.EndSessionEndpoint
	p.verifier = discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	p.oauth2 = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     discovered.Endpoint(),
		Scopes:       cfg.scopes(),
	}

	return p, nil
}

// Init restores a stored session, refreshing it when the access token has
// expired.
func (p *Provider) Init(ctx context.Context) (bool, error) {
	if p.store == nil {
		return false, nil
	}

	creds, err := p.store.LoadCredentials(ctx)
	if authclient.IsNoCredentials(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading credentials: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		TokenType:    creds.TokenType,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.ExpiresAt,
	}

	if creds.IsExpired(p.clock()) {
		if creds.RefreshToken == "" {
			p.logger.Debug("stored session expired without refresh token")
			return false, nil
		}
		refreshed, err := p.oauth2.TokenSource(p.clientContext(ctx), token).Token()
		if err != nil {
			return false, fmt.Errorf("%w: %w", authclient.ErrProviderUnavailable, err)
		}
		if err := p.setSession(ctx, refreshed); err != nil {
			return false, err
		}
		return true, nil
	}

	p.mu.Lock()
	p.applyToken(token, creds.IDToken)
	p.mu.Unlock()
	return true, nil
}

// Login starts an authorization code flow. The user agent is sent to the
// authorization URL through the Redirector; completion arrives through
// HandleCallback.
func (p *Provider) Login(ctx context.Context) error {
	state, err := randomString(32)
	if err != nil {
		return fmt.Errorf("generating state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	now := p.clock()
	p.mu.Lock()
	for key, pl := range p.pending {
		if now.Sub(pl.createdAt) > pendingLoginTTL {
			delete(p.pending, key)
		}
	}
	p.pending[state] = pendingLogin{verifier: verifier, createdAt: now}
	p.mu.Unlock()

	return p.redirector.Redirect(ctx, p.oauth2.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)))
}

// HandleCallback exchanges the authorization code and fires OnAuthSuccess.
func (p *Provider) HandleCallback(ctx context.Context, state, code string) error {
	if code == "" {
		return goerrors.New("missing authorization code", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	p.mu.Lock()
	pl, ok := p.pending[state]
	delete(p.pending, state)
	p.mu.Unlock()
	if !ok {
		return ErrUnknownState
	}

	token, err := p.oauth2.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(pl.verifier))
	if err != nil {
		return fmt.Errorf("exchanging code: %w", err)
	}

	if err := p.setSession(ctx, token); err != nil {
		return err
	}

	p.fire(func(h authclient.Handlers) func() { return h.OnAuthSuccess })
	return nil
}

// Logout drops the local session and opens the end session endpoint when
// the issuer advertises one.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	idToken := p.idToken
	p.clearLocked()
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.DeleteCredentials(ctx); err != nil {
			p.logger.Warn("deleting credentials: %v", err)
		}
	}

	if p.endSessionURL == "" {
		return nil
	}
	return p.redirector.Redirect(ctx, p.logoutURL(idToken))
}

// Authenticated reports whether a token is held.
func (p *Provider) Authenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token != nil && p.token.AccessToken != ""
}

// Token returns the current access token.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == nil {
		return ""
	}
	return p.token.AccessToken
}

// Claims returns the decoded access token payload, or nil.
func (p *Provider) Claims() authclient.ClaimSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.claims
}

// IsTokenExpired reports whether the token expires within leeway. A missing
// token counts as expired.
func (p *Provider) IsTokenExpired(leeway time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.expiredLocked(leeway)
}

// UpdateToken refreshes the token when it expires within leeway.
func (p *Provider) UpdateToken(ctx context.Context, leeway time.Duration) (bool, error) {
	p.mu.RLock()
	if !p.expiredLocked(leeway) {
		p.mu.RUnlock()
		return false, nil
	}
	var refreshToken string
	if p.token != nil {
		refreshToken = p.token.RefreshToken
	}
	p.mu.RUnlock()

	if refreshToken == "" {
		return false, ErrNoRefreshToken
	}

	// no access token, so the source goes straight to the refresh grant
	src := p.oauth2.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return false, fmt.Errorf("refreshing token: %w", err)
	}

	if err := p.setSession(ctx, token); err != nil {
		return false, err
	}
	return true, nil
}

// SetHandlers replaces the event handlers.
func (p *Provider) SetHandlers(handlers authclient.Handlers) {
	p.mu.Lock()
	p.handlers = handlers
	p.mu.Unlock()
}

// LoadProfile fetches the userinfo endpoint.
func (p *Provider) LoadProfile(ctx context.Context) (*authclient.Profile, error) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token == nil {
		return nil, authclient.ErrProfileUnavailable
	}

	info, err := p.provider.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", authclient.ErrProfileUnavailable, err)
	}

	var claims struct {
		Subject           string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		EmailVerified     bool   `json:"email_verified"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", authclient.ErrProfileUnavailable, err)
	}

	var attributes map[string]any
	if err := info.Claims(&attributes); err != nil {
		return nil, fmt.Errorf("%w: %w", authclient.ErrProfileUnavailable, err)
	}

	return &authclient.Profile{
		ID:            claims.Subject,
		Username:      claims.PreferredUsername,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		FirstName:     claims.GivenName,
		LastName:      claims.FamilyName,
		Attributes:    attributes,
	}, nil
}

// Close stops the expiry timer.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	return nil
}

func (p *Provider) setSession(ctx context.Context, token *oauth2.Token) error {
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken != "" {
		if _, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken); err != nil {
			return fmt.Errorf("verifying id token: %w", err)
		}
	}

	p.mu.Lock()
	if rawIDToken == "" {
		rawIDToken = p.idToken
	}
	p.applyToken(token, rawIDToken)
	subject := p.claims.Subject()
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}

	err := p.store.SaveCredentials(ctx, &authclient.Credentials{
		AccessToken:  token.AccessToken,
		TokenType:    token.Type(),
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		Subject:      subject,
		ExpiresAt:    token.Expiry,
	})
	if err != nil {
		p.logger.Warn("saving credentials: %v", err)
	}
	return nil
}

// applyToken must be called with p.mu held.
func (p *Provider) applyToken(token *oauth2.Token, idToken string) {
	claims, err := authclient.ParseClaims(token.AccessToken)
	if err != nil && idToken != "" {
		// opaque access token, fall back to the id token payload
		claims, err = authclient.ParseClaims(idToken)
	}
	if err != nil {
		p.logger.Debug("token claims unavailable: %v", err)
	}

	if token.Expiry.IsZero() {
		token.Expiry = claims.Expiry()
	}

	p.token = token
	p.idToken = idToken
	p.claims = claims
	p.scheduleExpiryLocked()
}

func (p *Provider) clearLocked() {
	p.token = nil
	p.idToken = ""
	p.claims = nil
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
}

func (p *Provider) expiredLocked(leeway time.Duration) bool {
	if p.token == nil || p.token.AccessToken == "" {
		return true
	}
	if p.token.Expiry.IsZero() {
		return false
	}
	return !p.clock().Add(leeway).Before(p.token.Expiry)
}

func (p *Provider) scheduleExpiryLocked() {
	if p.expiry != nil {
		p.expiry.Stop()
		p.expiry = nil
	}
	if p.token == nil || p.token.Expiry.IsZero() {
		return
	}

	wait := p.token.Expiry.Sub(p.clock())
	if wait < 0 {
		wait = 0
	}
	p.expiry = time.AfterFunc(wait, func() {
		p.fire(func(h authclient.Handlers) func() { return h.OnTokenExpired })
	})
}

func (p *Provider) fire(pick func(authclient.Handlers) func()) {
	p.mu.RLock()
	fn := pick(p.handlers)
	p.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (p *Provider) logoutURL(idToken string) string {
	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		return p.endSessionURL
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}
	if p.config.PostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", p.config.PostLogoutRedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.httpClient)
}

func randomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
