package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"staffsync-client/internal/credstore"
	"staffsync-client/internal/logging"
)

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type loginResponse struct {
	AccessToken  string                `json:"accessToken"`
	RefreshToken string                `json:"refreshToken"`
	User         credstore.UserProfile `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Login exchanges credentials for a token pair. Failures surface untouched;
// persisting the session is the facade's job.
func (c *Client) Login(ctx context.Context, identifier string, secret string) (credstore.Session, error) {
	payload, err := json.Marshal(loginRequest{Identifier: identifier, Secret: secret})
	if err != nil {
		return credstore.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.LoginURL, bytes.NewReader(payload))
	if err != nil {
		return credstore.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return credstore.Session{}, &TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debugf("POST %s -> %s", c.endpoints.LoginURL, resp.Status)

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		c.logger.Warn("login rejected",
			logging.Field("status", resp.Status),
			logging.Field("response", logging.FormatHTTPPayload(data)),
		)
		return credstore.Session{}, &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var decoded loginResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return credstore.Session{}, err
	}
	session := credstore.Session{
		AccessToken:  decoded.AccessToken,
		RefreshToken: decoded.RefreshToken,
		User:         decoded.User,
	}
	if !session.Complete() {
		return credstore.Session{}, errors.New("login response missing token pair")
	}
	c.logger.Info("login accepted", logging.Field("user", session.User.Email))
	return session, nil
}

// refreshAccessToken performs the single wire call of a refresh cycle.
func (c *Client) refreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.RefreshURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Op: "refresh", Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debugf("POST %s -> %s", c.endpoints.RefreshURL, resp.Status)

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		c.logger.Warn("token refresh rejected",
			logging.Field("status", resp.Status),
			logging.Field("response", logging.FormatHTTPPayload(data)),
		)
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var decoded refreshResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", err
	}
	if strings.TrimSpace(decoded.AccessToken) == "" {
		return "", errors.New("refresh response missing access token")
	}
	return decoded.AccessToken, nil
}

// Logout revokes the remote session. Best-effort: the caller clears local
// state regardless of the outcome here.
func (c *Client) Logout(ctx context.Context) error {
	token := c.store.AccessToken()
	if strings.TrimSpace(token) == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.LogoutURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: "logout", Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debugf("POST %s -> %s", c.endpoints.LogoutURL, resp.Status)

	if resp.StatusCode >= 400 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
