package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"staffsync-client/internal/logging"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	defaultHeartbeat      = 30 * time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultMaxReconnects  = 8
	maxReconnectInterval  = 5 * time.Minute
)

type Options struct {
	URL            string
	Token          func() string
	Dial           Dialer
	Heartbeat      time.Duration
	ReconnectDelay time.Duration
	MaxReconnects  int
	Logger         *logging.Logger

	OnStateChange        func(State)
	OnReconnectExhausted func(error)
}

// Channel owns one persistent realtime connection. It reconnects with
// exponential backoff on unexpected closes and silent failures, and stops
// only on intentional disconnect or after the attempt cap.
type Channel struct {
	opts     Options
	router   *Router
	logger   *logging.Logger
	clientID string

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	connMu sync.Mutex
	conn   Conn
}

func NewChannel(opts Options, router *Router) *Channel {
	if opts.Logger == nil {
		panic("realtime.NewChannel: logger must not be nil")
	}
	if opts.Token == nil {
		panic("realtime.NewChannel: token source must not be nil")
	}
	if router == nil {
		panic("realtime.NewChannel: router must not be nil")
	}
	if opts.Dial == nil {
		opts.Dial = WebsocketDialer()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.MaxReconnects < 1 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	return &Channel{
		opts:     opts,
		router:   router,
		logger:   opts.Logger,
		clientID: uuid.NewString(),
	}
}

func (c *Channel) Router() *Router { return c.router }

func (c *Channel) State() State {
	return State(c.state.Load())
}

// Connect starts the connection loop. It returns immediately; state
// transitions are observable through OnStateChange. Calling Connect while
// the loop is already running is an error.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			return errors.New("realtime channel already running")
		}
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.setState(StateConnecting)
	go c.run(runCtx, done)
	return nil
}

// Disconnect closes the channel intentionally: the reconnect loop and any
// pending backoff timer are canceled, and no further attempts are made.
// Safe to call at any state; it blocks until the loop has stopped.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	select {
	case <-done:
		c.setState(StateDisconnected)
		return
	default:
	}
	c.setState(StateClosing)
	cancel()
	c.closeConn()
	<-done
	c.setState(StateDisconnected)
}

func (c *Channel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = c.opts.ReconnectDelay
	retry.Multiplier = 2
	retry.RandomizationFactor = 0
	retry.MaxInterval = maxReconnectInterval
	retry.Reset()
	attempt := 0

	for {
		opened, sessionErr := c.runSession(ctx)
		if opened {
			// Every successful open resets the policy.
			attempt = 0
			retry.Reset()
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.setState(StateDisconnected)

		attempt++
		if attempt > c.opts.MaxReconnects {
			c.logger.Warn("reconnect attempts exhausted",
				logging.Field("attempts", c.opts.MaxReconnects),
				logging.Field("error", sessionErr),
			)
			if c.opts.OnReconnectExhausted != nil {
				c.opts.OnReconnectExhausted(ErrReconnectExhausted)
			}
			return
		}

		delay := retry.NextBackOff()
		c.logger.Debug("scheduling reconnect",
			logging.Field("attempt", attempt),
			logging.Field("delay", delay.String()),
			logging.Field("error", sessionErr),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		c.setState(StateConnecting)
	}
}

func (c *Channel) setState(next State) {
	prev := State(c.state.Swap(int32(next)))
	if prev == next {
		return
	}
	c.logger.Debug("realtime state change",
		logging.Field("from", prev.String()),
		logging.Field("to", next.String()),
	)
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(next)
	}
}

func (c *Channel) setConn(conn Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Channel) closeConn() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// send serializes one outbound frame. connMu also serializes writers: the
// heartbeat loop and API callers must not interleave on the transport.
func (c *Channel) send(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil || c.State() != StateOpen {
		return ErrNotConnected
	}
	return c.conn.WriteMessage(payload)
}

// MarkRead asks the server to mark one notification read. Fire-and-forget
// besides the write itself.
func (c *Channel) MarkRead(notificationID int64) error {
	return c.send(markReadFrame{Type: frameTypeMarkRead, NotificationID: notificationID})
}

// RequestUnreadCount asks the server to push a fresh unread_count frame.
func (c *Channel) RequestUnreadCount() error {
	return c.send(typeOnlyFrame{Type: frameTypeUnreadCount})
}

func (c *Channel) sendHeartbeat() {
	if err := c.send(pingFrame{Type: frameTypePing, Timestamp: time.Now().UnixMilli()}); err != nil {
		c.logger.Debug("heartbeat send failed", logging.Field("error", err))
	}
}
