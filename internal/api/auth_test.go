package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestLogin_SendsCredentialsAndDecodesSession(t *testing.T) {
	server := &fakeAuthServer{refreshToken: "refresh-1"}
	client, _ := newTestClient(t, server, "")
	client.http.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/auth/login" {
			t.Fatalf("path = %q, want /auth/login", r.URL.Path)
		}
		var body loginRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode login payload: %v", err)
		}
		if body.Identifier != "worker@example.com" || body.Secret != "hunter2" {
			t.Fatalf("login payload = %#v", body)
		}
		return jsonResponse(r, http.StatusOK, `{
			"accessToken": "access-1",
			"refreshToken": "refresh-1",
			"user": {"id": 7, "email": "worker@example.com", "role": "employee"}
		}`), nil
	})

	session, err := client.Login(context.Background(), "worker@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.AccessToken != "access-1" || session.RefreshToken != "refresh-1" {
		t.Fatalf("session tokens = %q / %q", session.AccessToken, session.RefreshToken)
	}
	if session.User.ID != 7 || session.User.Role != "employee" {
		t.Fatalf("session user = %#v", session.User)
	}
}

func TestLogin_FailureSurfacesUntouched(t *testing.T) {
	server := &fakeAuthServer{refreshToken: "refresh-1"}
	client, _ := newTestClient(t, server, "")
	client.http.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusUnauthorized, `{"detail":"bad credentials"}`), nil
	})

	_, err := client.Login(context.Background(), "worker@example.com", "wrong")
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error type = %T, want *HTTPStatusError", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", statusErr.StatusCode)
	}
}

func TestLogin_MissingTokenPairFails(t *testing.T) {
	server := &fakeAuthServer{refreshToken: "refresh-1"}
	client, _ := newTestClient(t, server, "")
	client.http.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusOK, `{"accessToken":"only-access"}`), nil
	})

	if _, err := client.Login(context.Background(), "a", "b"); err == nil {
		t.Fatalf("Login() expected error for missing refresh token")
	}
}

func TestLogout_SendsBearerAndSkipsWithoutSession(t *testing.T) {
	server := &fakeAuthServer{accessToken: "valid", refreshToken: "refresh-1"}
	client, _ := newTestClient(t, server, "valid")

	var gotAuth string
	client.http.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/auth/logout" {
			t.Fatalf("path = %q, want /auth/logout", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		return jsonResponse(r, http.StatusNoContent, ""), nil
	})
	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if gotAuth != "Bearer valid" {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	// Without a stored token there is nothing to revoke.
	emptyClient, _ := newTestClient(t, server, "")
	emptyClient.http.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected without a session")
		return nil, nil
	})
	if err := emptyClient.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() without session error = %v", err)
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(&HTTPStatusError{StatusCode: 401, Status: "401 Unauthorized"}) {
		t.Fatalf("IsUnauthorized(401) = false, want true")
	}
	if IsUnauthorized(&HTTPStatusError{StatusCode: 500, Status: "500"}) {
		t.Fatalf("IsUnauthorized(500) = true, want false")
	}
	if IsUnauthorized(errors.New("plain")) {
		t.Fatalf("IsUnauthorized(plain error) = true, want false")
	}
}
