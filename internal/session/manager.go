package session

import (
	"context"
	"strings"
	"sync"

	"staffsync-client/internal/api"
	"staffsync-client/internal/credstore"
	"staffsync-client/internal/logging"
	"staffsync-client/internal/realtime"
)

// Callbacks are optional observer hooks. All of them may be nil.
type Callbacks struct {
	OnStatusChange       func(string)
	OnSessionInvalid     func()
	OnReconnectExhausted func(error)
}

// Config carries the collaborators the Manager coordinates. The realtime
// options describe the channel transport; the Manager supplies the token
// source and the state/exhaustion observers itself.
type Config struct {
	API      *api.Client
	Store    *credstore.Store
	Logger   *logging.Logger
	Realtime realtime.Options
	Hooks    Callbacks
}

// Manager is the session facade: it owns login/logout, the realtime channel
// lifecycle, and the connection status stream. Session invalidation (a failed
// refresh anywhere in the request pipeline) deterministically forces the
// unauthenticated state.
type Manager struct {
	api     *api.Client
	store   *credstore.Store
	channel *realtime.Channel
	logger  *logging.Logger
	hooks   Callbacks
	status  statusState

	observerMu sync.Mutex
	nextWatch  int
	observers  map[int]func(string)
}

type statusState struct {
	mu      sync.Mutex
	current string
}

func (s *statusState) update(status string) (string, string, bool) {
	trimmed := strings.TrimSpace(status)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == trimmed {
		return s.current, trimmed, false
	}
	previous := s.current
	s.current = trimmed
	return previous, trimmed, true
}

func (s *statusState) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func New(cfg Config) *Manager {
	if cfg.API == nil {
		panic("session.New: api client must not be nil")
	}
	if cfg.Store == nil {
		panic("session.New: credential store must not be nil")
	}
	if cfg.Logger == nil {
		panic("session.New: logger must not be nil")
	}

	m := &Manager{
		api:       cfg.API,
		store:     cfg.Store,
		logger:    cfg.Logger,
		hooks:     cfg.Hooks,
		observers: make(map[int]func(string)),
	}
	m.status.current = StatusLoggedOut

	opts := cfg.Realtime
	if opts.Token == nil {
		opts.Token = cfg.Store.AccessToken
	}
	if opts.Logger == nil {
		opts.Logger = cfg.Logger
	}
	userStateChange := opts.OnStateChange
	opts.OnStateChange = func(state realtime.State) {
		m.relayChannelState(state)
		if userStateChange != nil {
			userStateChange(state)
		}
	}
	userExhausted := opts.OnReconnectExhausted
	opts.OnReconnectExhausted = func(err error) {
		m.setStatus(StatusReconnectsExhausted)
		m.logger.Warn("realtime reconnects exhausted, manual reconnect required",
			logging.Field("error", err),
		)
		if m.hooks.OnReconnectExhausted != nil {
			m.hooks.OnReconnectExhausted(err)
		}
		if userExhausted != nil {
			userExhausted(err)
		}
	}
	m.channel = realtime.NewChannel(opts, realtime.NewRouter(cfg.Logger))

	cfg.API.OnSessionInvalid(m.forceUnauthenticated)
	return m
}

// Router exposes the realtime subscription surface.
func (m *Manager) Router() *realtime.Router { return m.channel.Router() }

// Channel exposes the realtime channel for outbound frames and state reads.
func (m *Manager) Channel() *realtime.Channel { return m.channel }

// Status returns the current connection status value.
func (m *Manager) Status() string { return m.status.get() }

// OnStatus registers an additional status observer. The returned function
// removes it and is safe to call more than once.
func (m *Manager) OnStatus(fn func(string)) func() {
	m.observerMu.Lock()
	id := m.nextWatch
	m.nextWatch++
	m.observers[id] = fn
	m.observerMu.Unlock()
	return func() {
		m.observerMu.Lock()
		delete(m.observers, id)
		m.observerMu.Unlock()
	}
}

// Login authenticates with the platform, persists the issued session, and
// starts the realtime channel.
func (m *Manager) Login(ctx context.Context, identifier string, secret string) error {
	issued, err := m.api.Login(ctx, identifier, secret)
	if err != nil {
		if api.IsUnauthorized(err) {
			m.setStatus(StatusDisconnectedAuth)
		}
		return err
	}
	if err := m.store.SetSession(issued); err != nil {
		return err
	}
	m.setStatus(StatusAuthenticated)
	m.logger.Info("logged in",
		logging.Field("user", issued.User.Email),
		logging.Field("role", issued.User.Role),
	)
	return m.channel.Connect(ctx)
}

// Resume starts the realtime channel from a previously persisted session
// without a fresh login.
func (m *Manager) Resume(ctx context.Context) error {
	current, ok := m.store.Session()
	if !ok {
		return api.ErrSessionExpired
	}
	m.setStatus(StatusAuthenticated)
	m.logger.Info("resuming persisted session",
		logging.Field("user", current.User.Email),
	)
	return m.channel.Connect(ctx)
}

// Logout tears the session down: the channel closes first, then the server
// side is revoked best-effort, then local credentials are cleared. A failed
// revocation never blocks the local logout.
func (m *Manager) Logout(ctx context.Context) error {
	m.channel.Disconnect()
	m.api.AbortPendingRefresh()

	if err := m.api.Logout(ctx); err != nil {
		m.logger.Warn("server-side logout failed, clearing local session anyway",
			logging.Field("error", err),
		)
	}

	m.setStatus(StatusLoggedOut)
	err := m.store.Clear()
	m.logger.Info("logged out")
	return err
}

// CurrentUser returns the cached profile of the authenticated user.
func (m *Manager) CurrentUser() (credstore.UserProfile, bool) {
	current, ok := m.store.Session()
	if !ok {
		return credstore.UserProfile{}, false
	}
	return current.User, true
}

// Authenticated reports whether a complete session is held locally.
func (m *Manager) Authenticated() bool {
	_, ok := m.store.Session()
	return ok
}

// WatchCredentials starts the external-rotation watcher on the credential
// file. A rotation by another client process is picked up silently (the
// channel re-reads the token at its next dial); an externally cleared file
// forces the unauthenticated state.
func (m *Manager) WatchCredentials(ctx context.Context) error {
	return m.store.Watch(ctx, func(_ credstore.Session, loggedIn bool) {
		if loggedIn {
			m.logger.Info("credentials rotated externally")
			return
		}
		if Key(m.status.get()) == Key(StatusLoggedOut) {
			return
		}
		m.forceUnauthenticated()
	})
}

// forceUnauthenticated runs when a token refresh fails terminally. The store
// has already been cleared by the coordinator; here the channel is stopped
// and observers are told.
func (m *Manager) forceUnauthenticated() {
	m.logger.Warn("session invalidated, forcing unauthenticated state")
	m.channel.Disconnect()
	m.setStatus(StatusDisconnectedAuth)
	if m.hooks.OnSessionInvalid != nil {
		m.hooks.OnSessionInvalid()
	}
}

func (m *Manager) relayChannelState(state realtime.State) {
	switch state {
	case realtime.StateConnecting:
		m.setStatus(StatusConnecting)
	case realtime.StateOpen:
		m.setStatus(StatusConnected)
	case realtime.StateDisconnected:
		// Terminal statuses set elsewhere win over the generic one.
		if current := Key(m.status.get()); current == Key(StatusDisconnectedAuth) ||
			current == Key(StatusReconnectsExhausted) ||
			current == Key(StatusLoggedOut) {
			return
		}
		m.setStatus(StatusDisconnected)
	}
}

func (m *Manager) setStatus(status string) {
	previous, next, changed := m.status.update(status)
	if !changed {
		return
	}
	m.logger.Debug("session status transition",
		logging.Field("from", previous),
		logging.Field("to", next),
	)
	if m.hooks.OnStatusChange != nil {
		m.hooks.OnStatusChange(next)
	}
	m.observerMu.Lock()
	watchers := make([]func(string), 0, len(m.observers))
	for _, fn := range m.observers {
		watchers = append(watchers, fn)
	}
	m.observerMu.Unlock()
	for _, fn := range watchers {
		fn(next)
	}
}
