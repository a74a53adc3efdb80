package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"staffsync-client/internal/config"
	"staffsync-client/internal/credstore"
	"staffsync-client/internal/logging"
)

// Client is the authenticated request pipeline plus the auth wire calls it
// depends on. All business requests go through Do; the refresh coordinator
// guarantees at most one in-flight refresh regardless of caller count.
type Client struct {
	http      *http.Client
	endpoints config.APIEndpoints
	store     *credstore.Store
	logger    *logging.Logger
	refresh   *refreshCoordinator
}

func New(httpClient *http.Client, endpoints config.APIEndpoints, store *credstore.Store, logger *logging.Logger) *Client {
	if logger == nil {
		panic("api.New: logger must not be nil")
	}
	if store == nil {
		panic("api.New: store must not be nil")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := &Client{
		http:      httpClient,
		endpoints: endpoints,
		store:     store,
		logger:    logger,
	}
	client.refresh = newRefreshCoordinator(store, logger, client.refreshAccessToken)
	return client
}

// OnSessionInvalid registers the callback fired when a refresh fails and
// the session is torn down. Must be set before concurrent use.
func (c *Client) OnSessionInvalid(fn func()) {
	c.refresh.onInvalid = fn
}

// AbortPendingRefresh rejects every queued refresh waiter with
// ErrSessionExpired. Called on logout.
func (c *Client) AbortPendingRefresh() {
	c.refresh.Abort()
}

// NewJSONRequest builds a request with a rewindable JSON body so the
// pipeline can replay it once after a token refresh.
func (c *Client) NewJSONRequest(ctx context.Context, method string, url string, payload any) (*http.Request, error) {
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
