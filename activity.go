package authclient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAuthenticated   ActivityEventType = "session.authenticated"
	ActivityEventLogout          ActivityEventType = "session.logout"
	ActivityEventRefreshFailed   ActivityEventType = "session.refresh_failed"
	ActivityEventReconciled      ActivityEventType = "session.reconciled"
	ActivityEventProfileLoaded   ActivityEventType = "session.profile_loaded"
	ActivityEventCustomerSynced  ActivityEventType = "session.customer_synced"
	ActivityEventStartupSkipped  ActivityEventType = "session.startup_skipped"
	ActivityEventProviderFailure ActivityEventType = "session.provider_failure"
)

// ActivityEvent captures audit-friendly information about a session change.
type ActivityEvent struct {
	ID         uuid.UUID
	EventType  ActivityEventType
	Subject    string
	FromState  LifecycleState
	ToState    LifecycleState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
