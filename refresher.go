package authclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "token"

// RefreshOutcome is the result of one refresh flight. Every caller that
// joined the flight receives the same pointer.
type RefreshOutcome struct {
	Token     string
	Refreshed bool
	Err       error

	reauth sync.Once
}

// Failed reports whether the refresh flight failed.
func (o *RefreshOutcome) Failed() bool {
	return o == nil || o.Err != nil
}

// Reauthenticate runs fn at most once per outcome, no matter how many
// callers shared the failed flight.
func (o *RefreshOutcome) Reauthenticate(fn func()) {
	if o == nil || fn == nil {
		return
	}
	o.reauth.Do(fn)
}

// Refresher coalesces token refreshes: at most one UpdateToken call is in
// flight and concurrent callers wait for its result.
type Refresher struct {
	provider IdentityProvider
	logger   Logger
	group    singleflight.Group
	flights  atomic.Int64
}

// NewRefresher creates a Refresher for provider.
func NewRefresher(provider IdentityProvider, logger Logger) *Refresher {
	return &Refresher{
		provider: provider,
		logger:   normalizeLogger(logger),
	}
}

// Refresh asks the provider to refresh the token if it expires within
// leeway. The flight runs detached from the caller's cancellation so that a
// single canceled request does not fail every waiter.
func (r *Refresher) Refresh(ctx context.Context, leeway time.Duration) *RefreshOutcome {
	v, _, _ := r.group.Do(refreshKey, func() (any, error) {
		r.flights.Add(1)
		out := &RefreshOutcome{}

		refreshed, err := r.provider.UpdateToken(context.WithoutCancel(ctx), leeway)
		if err != nil {
			out.Err = fmt.Errorf("%w: %w", ErrRefreshDenied, err)
			r.logger.Warn("token refresh failed: %v", err)
			return out, nil
		}

		out.Refreshed = refreshed
		out.Token = r.provider.Token()
		if out.Token == "" {
			out.Err = fmt.Errorf("%w: provider returned no token", ErrRefreshDenied)
			return out, nil
		}

		if refreshed {
			r.logger.Debug("token refreshed")
		}
		return out, nil
	})
	return v.(*RefreshOutcome)
}

// Flights returns how many refresh flights were started.
func (r *Refresher) Flights() int64 {
	return r.flights.Load()
}
