package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"staffsync-client/internal/api"
	"staffsync-client/internal/config"
	"staffsync-client/internal/credstore"
	"staffsync-client/internal/logging"
	"staffsync-client/internal/realtime"
	"staffsync-client/internal/session"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func platformRoundTrip(r *http.Request) (*http.Response, error) {
	respond := func(status int, body string) *http.Response {
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}
	}
	switch r.URL.Path {
	case "/auth/login":
		return respond(http.StatusOK, `{
			"accessToken": "access-initial",
			"refreshToken": "refresh-initial",
			"user": {"id": 12, "email": "dana@example.com", "firstName": "Dana", "lastName": "Fields", "role": "manager"}
		}`), nil
	case "/auth/refresh":
		return respond(http.StatusUnauthorized, `{"detail":"refresh revoked"}`), nil
	case "/auth/logout":
		return respond(http.StatusOK, `{}`), nil
	default:
		return respond(http.StatusUnauthorized, `{"detail":"token expired"}`), nil
	}
}

type fakeConn struct {
	mu        sync.Mutex
	writes    []string
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errors.New("fake conn closed")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	c.writes = append(c.writes, string(data))
	c.mu.Unlock()
	if strings.Contains(string(data), `"ping"`) {
		c.push(`{"type":"pong"}`)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(frame string) {
	select {
	case c.in <- []byte(frame):
	case <-c.closed:
	}
}

func (c *fakeConn) wrote(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.writes {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

type harness struct {
	conn    *fakeConn
	manager *session.Manager
	client  *api.Client
	store   *credstore.Store
	opts    config.Options
	logger  *logging.Logger
}

func newHarness(t *testing.T, dial realtime.Dialer) *harness {
	t.Helper()
	logger := logging.New(false)
	store, err := credstore.New(filepath.Join(t.TempDir(), "credentials.json"), logger)
	if err != nil {
		t.Fatalf("credstore.New() error = %v", err)
	}
	endpoints, err := config.BuildEndpoints("https://hq.example.com", "")
	if err != nil {
		t.Fatalf("BuildEndpoints() error = %v", err)
	}
	client := api.New(&http.Client{Transport: roundTripFunc(platformRoundTrip)}, endpoints, store, logger)

	h := &harness{
		conn:   newFakeConn(),
		client: client,
		store:  store,
		logger: logger,
		opts: config.Options{
			BaseURL:    "https://hq.example.com",
			Identifier: "dana@example.com",
			Secret:     "hunter2",
			Heartbeat:  50 * time.Millisecond,
		},
	}
	if dial == nil {
		dial = func(context.Context, string) (realtime.Conn, error) { return h.conn, nil }
	}
	h.manager = session.New(session.Config{
		API:    client,
		Store:  store,
		Logger: logger,
		Realtime: realtime.Options{
			URL:            endpoints.RealtimeURL,
			Dial:           dial,
			Heartbeat:      50 * time.Millisecond,
			ReconnectDelay: 20 * time.Millisecond,
			MaxReconnects:  2,
		},
	})
	return h
}

func TestRunContext_ConnectsAndRelaysTraffic(t *testing.T) {
	h := newHarness(t, nil)

	events := make(chan Event, 8)
	counts := make(chan int, 4)
	shell := New(h.opts, h.manager, h.logger, Callbacks{
		OnEvent:       func(e Event) { events <- e },
		OnUnreadCount: func(n int) { counts <- n },
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- shell.RunContext(ctx) }()

	// Wait for the shell to come up, then feed it traffic.
	deadline := time.Now().Add(3 * time.Second)
	for !h.conn.wrote(`"get_unread_count"`) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !h.conn.wrote(`"get_unread_count"`) {
		t.Fatalf("initial unread count never requested")
	}

	h.conn.push(`{"type":"notification","data":{"id":9,"title":"Timesheet due"}}`)
	select {
	case event := <-events:
		if event.Category != realtime.CategoryNotification {
			t.Fatalf("event category = %q", event.Category)
		}
		if string(event.Payload) != `{"id":9,"title":"Timesheet due"}` {
			t.Fatalf("event payload = %s", event.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("notification never relayed")
	}

	h.conn.push(`{"type":"unread_count","count":3}`)
	select {
	case n := <-counts:
		if n != 3 {
			t.Fatalf("unread count = %d, want 3", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("unread count never relayed")
	}

	if err := shell.MarkRead(9); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if !h.conn.wrote(`"notification_id":9`) {
		t.Fatalf("mark_read frame not written")
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("RunContext() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("shell did not stop on context cancel")
	}
	if _, ok := h.store.Session(); ok {
		t.Fatalf("session survived shutdown logout")
	}
}

func TestRunContext_MissingCredentials(t *testing.T) {
	h := newHarness(t, nil)
	h.opts.Identifier = ""
	h.opts.Secret = ""
	shell := New(h.opts, h.manager, h.logger, Callbacks{})

	if err := shell.RunContext(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("RunContext() error = %v, want ErrMissingCredentials", err)
	}
}

func TestRunContext_SessionInvalidationStopsRun(t *testing.T) {
	h := newHarness(t, nil)
	shell := New(h.opts, h.manager, h.logger, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- shell.RunContext(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for !h.conn.wrote(`"get_unread_count"`) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// A platform call that 401s with a revoked refresh token kills the
	// session; the shell must notice and stop.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://hq.example.com/api/attendance", nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if _, err := h.client.Do(req); !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("Do() error = %v, want ErrSessionExpired", err)
	}

	select {
	case err := <-runDone:
		if !errors.Is(err, ErrSessionInvalidated) {
			t.Fatalf("RunContext() error = %v, want ErrSessionInvalidated", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("shell did not stop on session invalidation")
	}
}

func TestRunContext_ReconnectExhaustion(t *testing.T) {
	refusing := func(context.Context, string) (realtime.Conn, error) {
		return nil, errors.New("connection refused")
	}
	h := newHarness(t, refusing)
	shell := New(h.opts, h.manager, h.logger, Callbacks{})

	err := shell.RunContext(context.Background())
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("RunContext() error = %v, want ErrReconnectExhausted", err)
	}
}
