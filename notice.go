package authclient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NoticeKind classifies user facing notices.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
)

// Notice is a short lived message for the user, e.g. rendered as a toast.
type Notice struct {
	ID        uuid.UUID
	Kind      NoticeKind
	Message   string
	CreatedAt time.Time
}

// Notifier delivers notices to the presentation layer.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, notice Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, notice Notice) {
	if f != nil {
		f(ctx, notice)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notice) {}

func newNotice(kind NoticeKind, message string, now time.Time) Notice {
	return Notice{
		ID:        uuid.New(),
		Kind:      kind,
		Message:   message,
		CreatedAt: now,
	}
}
