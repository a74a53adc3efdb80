package config

import (
	"errors"
	"net/url"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type Options struct {
	BaseURL         string        `long:"base-url" env:"STAFFSYNC_BASE_URL" description:"API base URL (e.g. https://hq.example.com)"`
	RealtimeURL     string        `long:"realtime-url" env:"STAFFSYNC_REALTIME_URL" description:"Realtime origin override; derived from base URL when empty"`
	Identifier      string        `long:"identifier" env:"STAFFSYNC_IDENTIFIER" description:"Login identifier (employee email or id)"`
	Secret          string        `long:"secret" env:"STAFFSYNC_SECRET" description:"Login secret"`
	CredentialsFile string        `long:"credentials-file" env:"STAFFSYNC_CREDENTIALS_FILE" description:"Path to the persisted credentials file"`
	Heartbeat       time.Duration `long:"heartbeat" env:"STAFFSYNC_HEARTBEAT" default:"30s" description:"Realtime heartbeat ping interval"`
	ReconnectDelay  time.Duration `long:"reconnect-delay" env:"STAFFSYNC_RECONNECT_DELAY" default:"5s" description:"Base delay for reconnect backoff"`
	MaxReconnects   int           `long:"max-reconnects" env:"STAFFSYNC_MAX_RECONNECTS" default:"8" description:"Reconnect attempts before giving up"`
	Debug           bool          `long:"debug" env:"STAFFSYNC_DEBUG" description:"Enable verbose debug output"`
}

type APIEndpoints struct {
	BaseURL     string
	LoginURL    string
	RefreshURL  string
	LogoutURL   string
	RealtimeURL string
}

const (
	loginPath    = "/auth/login"
	refreshPath  = "/auth/refresh"
	logoutPath   = "/auth/logout"
	realtimePath = "/ws/notifications"
)

func ParseOptions() (Options, error) {
	_ = godotenv.Load()
	opts := Options{}
	if _, err := flags.Parse(&opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func ValidateRequired(opts Options) error {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return errors.New("base URL is required")
	}
	if opts.Heartbeat <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if opts.ReconnectDelay <= 0 {
		return errors.New("reconnect base delay must be positive")
	}
	if opts.MaxReconnects < 1 {
		return errors.New("max reconnect attempts must be at least 1")
	}
	return nil
}

func BuildEndpoints(rawBaseURL string, rawRealtimeURL string) (APIEndpoints, error) {
	apiBase, err := normalizeBaseURL(rawBaseURL)
	if err != nil {
		return APIEndpoints{}, err
	}
	realtime, err := buildRealtimeURL(apiBase, rawRealtimeURL)
	if err != nil {
		return APIEndpoints{}, err
	}
	return APIEndpoints{
		BaseURL:     apiBase,
		LoginURL:    apiBase + loginPath,
		RefreshURL:  apiBase + refreshPath,
		LogoutURL:   apiBase + logoutPath,
		RealtimeURL: realtime,
	}, nil
}

func normalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	parsed, err := url.Parse(value)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("base URL must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("base URL must include a host")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}

// buildRealtimeURL derives the websocket origin from the API base unless an
// explicit override is configured. http maps to ws, https to wss.
func buildRealtimeURL(apiBase string, override string) (string, error) {
	raw := strings.TrimSpace(override)
	if raw == "" {
		parsed, err := url.Parse(apiBase)
		if err != nil {
			return "", err
		}
		switch parsed.Scheme {
		case "http":
			parsed.Scheme = "ws"
		case "https":
			parsed.Scheme = "wss"
		}
		parsed.Path = strings.TrimSuffix(parsed.Path, "/") + realtimePath
		return parsed.String(), nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", errors.New("realtime URL must use ws or wss")
	}
	if parsed.Host == "" {
		return "", errors.New("realtime URL must include a host")
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = realtimePath
	}
	return parsed.String(), nil
}
