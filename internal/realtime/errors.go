package realtime

import (
	"errors"
	"fmt"
)

// ErrReconnectExhausted is the terminal failure after the reconnect policy
// runs out of attempts. The channel stays Disconnected until the caller
// connects again explicitly.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ErrNotConnected reports an outbound frame attempted while the channel is
// not Open.
var ErrNotConnected = errors.New("realtime channel is not connected")

var errHeartbeatTimeout = errors.New("no pong within heartbeat window")

var errMissingToken = errors.New("no access token for realtime handshake")

// ProtocolError marks a malformed or unrecognized inbound frame. It is
// logged and dropped; the channel stays open.
type ProtocolError struct {
	Reason string
	Raw    []byte
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "protocol error"
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}
