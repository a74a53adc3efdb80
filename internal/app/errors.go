package app

import "errors"

var (
	ErrMissingCredentials     = errors.New("no login credentials and no persisted session")
	ErrSessionInvalidated     = errors.New("session invalidated by the platform")
	ErrRealtimeConnectTimeout = errors.New("realtime connect timeout")
	ErrReconnectExhausted     = errors.New("realtime reconnect attempts exhausted")
)
