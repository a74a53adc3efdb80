package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"staffsync-client/internal/config"
	"staffsync-client/internal/logging"
	"staffsync-client/internal/realtime"
	"staffsync-client/internal/session"
)

const (
	connectTimeout  = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Event is one routed realtime message, delivered to the OnEvent callback in
// arrival order.
type Event struct {
	Category realtime.Category
	Payload  json.RawMessage
}

// Callbacks let an embedding surface observe the running client. All hooks
// may be nil.
type Callbacks struct {
	OnEvent        func(Event)
	OnStatusChange func(string)
	OnUnreadCount  func(int)
}

// ClientApp is the headless application shell: it authenticates, subscribes
// every known event category, and relays traffic and connection status to
// its callbacks until the context ends.
type ClientApp struct {
	opts    config.Options
	manager *session.Manager
	logger  *logging.Logger
	hooks   Callbacks
}

func New(opts config.Options, manager *session.Manager, logger *logging.Logger, hooks Callbacks) *ClientApp {
	if manager == nil {
		panic("app.New: session manager must not be nil")
	}
	if logger == nil {
		panic("app.New: logger must not be nil")
	}
	return &ClientApp{opts: opts, manager: manager, logger: logger, hooks: hooks}
}

func (a *ClientApp) Run() error {
	return a.RunContext(context.Background())
}

func (a *ClientApp) RunContext(ctx context.Context) error {
	a.logger.Info("staffsync client starting",
		logging.Field("base_url", a.opts.BaseURL),
		logging.Field("heartbeat", a.opts.Heartbeat.String()),
	)

	unsubscribeAll := a.subscribeKnownCategories()
	defer unsubscribeAll()

	connected := make(chan struct{}, 1)
	invalidated := make(chan struct{}, 1)
	exhausted := make(chan struct{}, 1)
	removeWatch := a.watchStatus(connected, invalidated, exhausted)
	defer removeWatch()

	if err := a.startSession(ctx); err != nil {
		return err
	}
	if err := a.manager.WatchCredentials(ctx); err != nil {
		a.logger.Warn("credentials watch unavailable", logging.Field("error", err))
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, connectTimeout)
	defer waitCancel()
	select {
	case <-waitCtx.Done():
		a.shutdown()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrRealtimeConnectTimeout
	case <-invalidated:
		return ErrSessionInvalidated
	case <-exhausted:
		a.shutdown()
		return ErrReconnectExhausted
	case <-connected:
	}

	if err := a.manager.Channel().RequestUnreadCount(); err != nil {
		a.logger.Debug("initial unread count request failed", logging.Field("error", err))
	}

	select {
	case <-ctx.Done():
		a.shutdown()
		a.logger.Info("staffsync client stopped")
		return nil
	case <-invalidated:
		a.logger.Warn("staffsync client stopping: session invalidated")
		return ErrSessionInvalidated
	case <-exhausted:
		a.logger.Warn("staffsync client stopping: reconnects exhausted")
		a.shutdown()
		return ErrReconnectExhausted
	}
}

func (a *ClientApp) startSession(ctx context.Context) error {
	if a.manager.Authenticated() {
		return a.manager.Resume(ctx)
	}
	identifier := strings.TrimSpace(a.opts.Identifier)
	secret := strings.TrimSpace(a.opts.Secret)
	if identifier == "" || secret == "" {
		return ErrMissingCredentials
	}
	return a.manager.Login(ctx, identifier, secret)
}

// shutdown runs the logout flow on its own deadline: the run context is
// usually already canceled when it is called.
func (a *ClientApp) shutdown() {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := a.manager.Logout(stopCtx); err != nil {
		a.logger.Warn("shutdown logout failed", logging.Field("error", err))
	}
}

func (a *ClientApp) subscribeKnownCategories() func() {
	router := a.manager.Router()
	var cancels []func()
	for _, category := range realtime.KnownCategories() {
		category := category
		cancels = append(cancels, router.Subscribe(category, func(payload json.RawMessage) {
			a.handleEvent(category, payload)
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (a *ClientApp) handleEvent(category realtime.Category, payload json.RawMessage) {
	if category == realtime.CategoryUnreadCount {
		a.handleUnreadCount(payload)
	}
	if a.hooks.OnEvent == nil {
		return
	}
	a.hooks.OnEvent(Event{Category: category, Payload: payload})
}

func (a *ClientApp) handleUnreadCount(payload json.RawMessage) {
	var decoded struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		a.logger.Debug("unparseable unread count frame", logging.Field("error", err))
		return
	}
	a.logger.Debug("unread count", logging.Field("count", decoded.Count))
	if a.hooks.OnUnreadCount != nil {
		a.hooks.OnUnreadCount(decoded.Count)
	}
}

// watchStatus relays every status to the callback and translates the
// terminal ones into run-loop signals.
func (a *ClientApp) watchStatus(connected, invalidated, exhausted chan<- struct{}) func() {
	signal := func(target chan<- struct{}) {
		select {
		case target <- struct{}{}:
		default:
		}
	}
	return a.manager.OnStatus(func(status string) {
		switch session.Key(status) {
		case session.Key(session.StatusConnected):
			signal(connected)
		case session.Key(session.StatusDisconnectedAuth):
			signal(invalidated)
		case session.Key(session.StatusReconnectsExhausted):
			signal(exhausted)
		}
		if a.hooks.OnStatusChange != nil {
			a.hooks.OnStatusChange(status)
		}
	})
}

// MarkRead acknowledges a notification over the realtime channel.
func (a *ClientApp) MarkRead(notificationID int64) error {
	return a.manager.Channel().MarkRead(notificationID)
}
