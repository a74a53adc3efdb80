package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"staffsync-client/internal/logging"
)

// runSession drives one connection from dial to close. The bool result
// reports whether the transport reached Open, which resets the reconnect
// policy. The access token is read at dial time, so a retry after a token
// rotation naturally picks up the fresh credential.
func (c *Channel) runSession(ctx context.Context) (bool, error) {
	token := strings.TrimSpace(c.opts.Token())
	if token == "" {
		c.logger.Warn("no access token for realtime connect")
		return false, errMissingToken
	}

	target, err := handshakeURL(c.opts.URL, token, c.clientID)
	if err != nil {
		return false, err
	}

	conn, err := c.opts.Dial(ctx, target)
	if err != nil {
		c.logger.Warn("realtime connect failed", logging.Field("error", err))
		return false, err
	}
	c.setConn(conn)
	defer c.closeConn()
	c.setState(StateOpen)
	c.logger.Info("realtime channel open")

	frames := make(chan []byte)
	readErrs := make(chan error, 1)
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go readLoop(conn, frames, readErrs, sessionDone)

	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()
	lastPong := time.Now()

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case readErr := <-readErrs:
			c.logReadEnd(readErr)
			return true, readErr
		case raw := <-frames:
			c.handleFrame(raw, &lastPong)
		case <-ticker.C:
			if time.Since(lastPong) > 2*c.opts.Heartbeat {
				c.logger.Warn("heartbeat timed out, treating connection as dead")
				return true, errHeartbeatTimeout
			}
			c.sendHeartbeat()
		}
	}
}

func readLoop(conn Conn, frames chan<- []byte, errs chan<- error, sessionDone <-chan struct{}) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case errs <- err:
			case <-sessionDone:
			}
			return
		}
		select {
		case frames <- data:
		case <-sessionDone:
			return
		}
	}
}

// handleFrame processes one inbound frame in arrival order. Malformed and
// unrecognized frames are dropped with a diagnostic; the channel stays open.
func (c *Channel) handleFrame(raw []byte, lastPong *time.Time) {
	envelope, err := decodeEnvelope(raw)
	if err != nil {
		c.logger.Warn("dropping malformed frame",
			logging.Field("error", err),
			logging.Field("frame", logging.FormatHTTPPayload(raw)),
		)
		return
	}

	switch envelope.Type {
	case frameTypePong:
		*lastPong = time.Now()
		c.logger.Debug("pong received")
	case frameTypeConnected:
		// Sent by the server right after an authenticated connect; fields
		// are inlined on the frame, not nested under data.
		*lastPong = time.Now()
		var payload connectedPayload
		_ = json.Unmarshal(raw, &payload)
		c.logger.Info("realtime connection confirmed",
			logging.Field("user_id", payload.UserID),
			logging.Field("user_name", payload.UserName),
		)
	default:
		category, ok := knownCategory(envelope.Type)
		if !ok {
			c.logger.Warn("dropping frame with unrecognized type",
				logging.Field("type", envelope.Type),
				logging.Field("frame", logging.FormatHTTPPayload(raw)),
			)
			return
		}
		payload := envelope.Data
		if payload == nil {
			// Some frame types inline their fields at the top level.
			payload = raw
		}
		c.router.Dispatch(Frame{Category: category, Payload: payload})
	}
}

func (c *Channel) logReadEnd(err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == 4001 {
		// Server-side auth rejection; the retry re-reads the token, which
		// may have been rotated by the request pipeline in the meantime.
		c.logger.Warn("server rejected realtime credentials")
		return
	}
	c.logger.Warn("realtime connection lost", logging.Field("error", err))
}

func handshakeURL(base string, token string, clientID string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("token", token)
	query.Set("client", clientID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
