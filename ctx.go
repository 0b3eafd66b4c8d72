package authclient

import "context"

var snapshotCtxKey = &contextKey{"snapshot"}

type contextKey struct {
	name string
}

// WithSnapshot stores an authorization snapshot in the context
func WithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotCtxKey, snap)
}

// SnapshotFromContext finds the snapshot stored with WithSnapshot.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(Snapshot)
	return raw, ok
}

// Can is a convenience function to check roles directly from the context.
// A context without a snapshot grants nothing.
func Can(ctx context.Context, roles ...string) bool {
	snap, ok := SnapshotFromContext(ctx)
	if !ok {
		return false
	}
	return snap.HasAnyRole(roles...)
}
