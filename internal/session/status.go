package session

import "strings"

// Connection status values surfaced through the facade. The display form is
// what callbacks receive; Key normalizes for comparisons.
const (
	StatusLoggedOut           = "Logged out"
	StatusAuthenticated       = "Authenticated"
	StatusConnecting          = "Connecting"
	StatusConnected           = "Connected"
	StatusDisconnected        = "Disconnected"
	StatusDisconnectedAuth    = "Disconnected (auth)"
	StatusReconnectsExhausted = "Disconnected (exhausted)"
)

func Key(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
