// Package authclient is a client side session and authorization engine built
// around an external identity provider.
//
// Session lifecycle:
//   - Controller owns the session. Startup, Login, Logout and the provider
//     events (HandleAuthSuccess, HandleAuthLogout, HandleTokenExpired) all
//     funnel into one mutation routine, so the cached session is replaced
//     atomically and readers never see roles from a previous user.
//   - Snapshot is the read only view presentation code branches on. IsAdmin,
//     HasRole and HasAnyRole are computed from it on every read.
//
// Reconciliation:
//   - Watcher polls the provider's live authenticated flag and corrects the
//     session through the controller when a provider event was missed.
//
// Outbound requests:
//   - Transport attaches the provider's live bearer token. Tokens close to
//     expiry are refreshed first; concurrent refreshes are coalesced by
//     Refresher and a failed refresh triggers a single login redirect while
//     the request is sent without credentials.
//
// Side effects:
//   - Profile hydration and CustomerSync run in the background once per new
//     session. Their failures are logged, never surfaced. ActivitySink and
//     Notifier receive audit events and user notices best-effort.
package authclient
