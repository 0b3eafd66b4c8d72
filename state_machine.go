package authclient

import (
	"context"
	"fmt"
)

// LifecycleState is the state of the session lifecycle.
type LifecycleState string

const (
	StateUnauthenticated LifecycleState = "unauthenticated"
	StateAuthenticating  LifecycleState = "authenticating"
	StateAuthenticated   LifecycleState = "authenticated"
	StateRefreshFailed   LifecycleState = "refresh_failed"
)

// IsValid checks if the state is one of the predefined states
func (s LifecycleState) IsValid() bool {
	switch s {
	case StateUnauthenticated, StateAuthenticating, StateAuthenticated, StateRefreshFailed:
		return true
	default:
		return false
	}
}

// TransitionContext describes a committed lifecycle transition.
type TransitionContext struct {
	From    LifecycleState
	To      LifecycleState
	Reason  string
	Subject string
	Version uint64
}

// TransitionHook is executed after a transition was committed. Hooks run
// outside the session lock and must not block for long.
type TransitionHook func(ctx context.Context, tc TransitionContext)

// lifecycle holds the allowed transition graph. Staying in the same state is
// always allowed; it is how token refreshes and repeated logouts are applied.
type lifecycle struct {
	transitions map[LifecycleState]map[LifecycleState]struct{}
}

func newLifecycle() lifecycle {
	return lifecycle{
		transitions: map[LifecycleState]map[LifecycleState]struct{}{
			StateUnauthenticated: {
				StateAuthenticating: {},
				StateAuthenticated:  {},
			},
			StateAuthenticating: {
				StateAuthenticated:   {},
				StateUnauthenticated: {},
			},
			StateAuthenticated: {
				StateUnauthenticated: {},
				StateRefreshFailed:   {},
			},
			StateRefreshFailed: {
				StateUnauthenticated: {},
			},
		},
	}
}

func (l lifecycle) canTransition(from, to LifecycleState) bool {
	if from == to {
		return true
	}
	if allowed, ok := l.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (l lifecycle) check(from, to LifecycleState) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown target state %q", ErrInvalidTransition, to)
	}
	if !l.canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
