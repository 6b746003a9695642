// Package gcal manages per-account Google Calendar credentials and the
// calendar endpoints under /api/v1/workouts/google-calendar/.
//
// Credential lifecycle is an explicit state machine: disconnected,
// authorizing (stash between consent redirect and callback), connected,
// refreshing. Refresh happens lazily when an operation needs live
// credentials; a failed refresh or a probe rejection clears the whole
// bundle rather than leaving a half-connected account behind.
package gcal
