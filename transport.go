package authclient

import (
	"context"
	"net/http"
	"time"
)

// CredentialGate can veto attaching credentials. It never grants them: the
// provider's live token decides when the gate allows.
type CredentialGate interface {
	CredentialsAllowed() bool
}

// Transport is an http.RoundTripper that attaches the provider's current
// bearer token, refreshing it first when it is about to expire.
//
// When the refresh fails, login is triggered once per failed refresh and the
// original request is sent without credentials.
type Transport struct {
	// Base is the underlying transport. http.DefaultTransport when nil.
	Base http.RoundTripper

	provider  IdentityProvider
	refresher *Refresher
	gate      CredentialGate
	leeway    time.Duration
	login     func(ctx context.Context) error
	logger    Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithBaseTransport sets the underlying round tripper.
func WithBaseTransport(base http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.Base = base
	}
}

// WithTransportRefresher shares a refresh coalescer, typically the
// controller's.
func WithTransportRefresher(refresher *Refresher) TransportOption {
	return func(t *Transport) {
		if refresher != nil {
			t.refresher = refresher
		}
	}
}

// WithCredentialGate installs a gate that can suppress credentials.
func WithCredentialGate(gate CredentialGate) TransportOption {
	return func(t *Transport) {
		t.gate = gate
	}
}

// WithRequestLeeway sets the remaining validity under which the token is
// refreshed before use.
func WithRequestLeeway(leeway time.Duration) TransportOption {
	return func(t *Transport) {
		if leeway > 0 {
			t.leeway = leeway
		}
	}
}

// WithLoginFunc overrides how re-authentication is triggered.
func WithLoginFunc(login func(ctx context.Context) error) TransportOption {
	return func(t *Transport) {
		if login != nil {
			t.login = login
		}
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(logger Logger) TransportOption {
	return func(t *Transport) {
		t.logger = normalizeLogger(logger)
	}
}

// NewTransport creates a Transport reading credentials from provider.
func NewTransport(provider IdentityProvider, opts ...TransportOption) *Transport {
	t := &Transport{
		provider: provider,
		leeway:   DefaultRequestLeeway,
		login:    provider.Login,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.refresher == nil {
		t.refresher = NewRefresher(provider, t.logger)
	}
	return t
}

// Transport returns a Transport that shares the controller's refresher,
// login path and logout gate.
func (c *Controller) Transport(opts ...TransportOption) *Transport {
	base := []TransportOption{
		WithTransportRefresher(c.refresher),
		WithCredentialGate(c),
		WithRequestLeeway(c.config.RequestLeeway),
		WithLoginFunc(c.Login),
		WithTransportLogger(c.logger),
	}
	return NewTransport(c.provider, append(base, opts...)...)
}

// RoundTrip implements http.RoundTripper. The caller's request is never
// modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	if token := t.credential(req.Context()); token != "" {
		if out.Header == nil {
			out.Header = make(http.Header)
		}
		out.Header.Set("Authorization", "Bearer "+token)
	}

	return t.base().RoundTrip(out)
}

// Client returns an *http.Client using the transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) credential(ctx context.Context) string {
	if t.gate != nil && !t.gate.CredentialsAllowed() {
		return ""
	}

	if !t.provider.Authenticated() || t.provider.Token() == "" {
		return ""
	}

	if !t.provider.IsTokenExpired(t.leeway) {
		return t.provider.Token()
	}

	outcome := t.refresher.Refresh(ctx, t.leeway)
	if !outcome.Failed() {
		return outcome.Token
	}

	outcome.Reauthenticate(func() {
		t.logger.Warn("token refresh failed, redirecting to login: %v", outcome.Err)
		if err := t.login(context.WithoutCancel(ctx)); err != nil {
			t.logger.Error("login redirect failed: %v", err)
		}
	})
	return ""
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
