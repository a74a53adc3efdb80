package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type ClientSettings struct {
	BaseURL       string `json:"base_url"`
	RealtimeURL   string `json:"realtime_url,omitempty"`
	Identifier    string `json:"identifier,omitempty"`
	HeartbeatSecs int    `json:"heartbeat_seconds,omitempty"`
	ReconnectSecs int    `json:"reconnect_delay_seconds,omitempty"`
	MaxReconnects int    `json:"max_reconnects,omitempty"`
	Debug         bool   `json:"debug,omitempty"`
}

func SettingsPath() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "staffsync", "client-settings.json"), nil
}

func LoadSettings() (ClientSettings, error) {
	path, err := SettingsPath()
	if err != nil {
		return ClientSettings{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientSettings{}, err
	}
	var settings ClientSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return ClientSettings{}, err
	}
	return settings, nil
}

func SaveSettings(settings ClientSettings) error {
	path, err := SettingsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// MergeOptionsWithSettings fills unset CLI options from a saved settings
// file. Explicit flags always win.
func MergeOptionsWithSettings(cli Options, saved ClientSettings) Options {
	if strings.TrimSpace(cli.BaseURL) == "" {
		cli.BaseURL = saved.BaseURL
	}
	if strings.TrimSpace(cli.RealtimeURL) == "" {
		cli.RealtimeURL = saved.RealtimeURL
	}
	if strings.TrimSpace(cli.Identifier) == "" {
		cli.Identifier = saved.Identifier
	}
	if saved.HeartbeatSecs > 0 && cli.Heartbeat == 30*time.Second {
		cli.Heartbeat = time.Duration(saved.HeartbeatSecs) * time.Second
	}
	if saved.ReconnectSecs > 0 && cli.ReconnectDelay == 5*time.Second {
		cli.ReconnectDelay = time.Duration(saved.ReconnectSecs) * time.Second
	}
	if saved.MaxReconnects > 0 && cli.MaxReconnects == 8 {
		cli.MaxReconnects = saved.MaxReconnects
	}
	if !cli.Debug {
		cli.Debug = saved.Debug
	}
	return cli
}

func SettingsFromOptions(opts Options) ClientSettings {
	return ClientSettings{
		BaseURL:       strings.TrimSpace(opts.BaseURL),
		RealtimeURL:   strings.TrimSpace(opts.RealtimeURL),
		Identifier:    strings.TrimSpace(opts.Identifier),
		HeartbeatSecs: int(opts.Heartbeat / time.Second),
		ReconnectSecs: int(opts.ReconnectDelay / time.Second),
		MaxReconnects: opts.MaxReconnects,
		Debug:         opts.Debug,
	}
}
