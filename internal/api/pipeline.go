package api

import (
	"errors"
	"io"
	"net/http"

	"staffsync-client/internal/logging"
)

// Do sends an authenticated request. On 401 it runs the shared refresh and
// replays the request exactly once; a second 401 fails with
// ErrSessionExpired instead of looping. Every other status passes through
// unchanged.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	retried := false
	for {
		token := c.store.AccessToken()
		if token == "" {
			return nil, ErrSessionExpired
		}

		outbound, err := rewindRequest(req)
		if err != nil {
			return nil, err
		}
		outbound.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.http.Do(outbound)
		if err != nil {
			return nil, &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
		}
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if retried {
			c.logger.Warn("request unauthorized after refresh, session expired",
				logging.Field("url", req.URL.String()))
			return nil, ErrSessionExpired
		}
		c.logger.Debug("request unauthorized, refreshing token", logging.Field("url", req.URL.String()))
		if err := c.refresh.HandleUnauthorized(req.Context()); err != nil {
			return nil, err
		}
		retried = true
	}
}

// rewindRequest clones the request with a replayable body. Requests built
// through NewJSONRequest (or anything with GetBody) replay safely.
func rewindRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}
