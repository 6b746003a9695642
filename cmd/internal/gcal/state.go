package gcal

import (
	"time"

	"reptrack/cmd/identity"
)

// State is the credential lifecycle position of an account.
type State int

const (
	StateDisconnected State = iota
	StateAuthorizing
	StateConnected
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthorizing:
		return "authorizing"
	case StateConnected:
		return "connected"
	case StateRefreshing:
		return "refreshing"
	default:
		return "disconnected"
	}
}

// expirySkew treats tokens about to expire as already expired so we
// never hand out an access token that dies mid-call.
const expirySkew = 30 * time.Second

// bundleState derives the state from the stored bundle. StateAuthorizing
// is never derived here: it lives only in the state stash between
// BeginAuth and CompleteAuth. A partial bundle counts as disconnected,
// which is what rules out the half-connected conditionals this enum
// replaces.
func bundleState(g identity.GoogleCredentials, now time.Time) State {
	if !g.Present() {
		return StateDisconnected
	}
	if now.After(g.Expiry.Add(-expirySkew)) {
		return StateRefreshing
	}
	return StateConnected
}
