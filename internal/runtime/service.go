package runtime

import (
	"context"
	"net/http"
	"time"

	"staffsync-client/internal/api"
	"staffsync-client/internal/app"
	"staffsync-client/internal/config"
	"staffsync-client/internal/credstore"
	"staffsync-client/internal/logging"
	"staffsync-client/internal/realtime"
	"staffsync-client/internal/session"
)

const defaultHTTPTimeout = 10 * time.Second

type Service interface {
	RunContext(ctx context.Context) error
}

func NewService(opts config.Options, logger *logging.Logger) (Service, error) {
	return NewServiceWithHooks(opts, logger, StartHooks{})
}

// NewServiceWithHooks wires the full client stack: credential store, request
// pipeline, session facade, realtime channel, and the application shell.
func NewServiceWithHooks(opts config.Options, logger *logging.Logger, hooks StartHooks) (Service, error) {
	if logger == nil {
		panic("runtime.NewServiceWithHooks: logger must not be nil")
	}
	if err := config.ValidateRequired(opts); err != nil {
		return nil, err
	}

	endpoints, err := config.BuildEndpoints(opts.BaseURL, opts.RealtimeURL)
	if err != nil {
		return nil, err
	}
	logger.Debug("constructed API endpoints",
		logging.Field("login_url", endpoints.LoginURL),
		logging.Field("refresh_url", endpoints.RefreshURL),
		logging.Field("logout_url", endpoints.LogoutURL),
		logging.Field("realtime_url", endpoints.RealtimeURL),
	)

	credsPath := opts.CredentialsFile
	if credsPath == "" {
		credsPath, err = credstore.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	store, err := credstore.New(credsPath, logger)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: defaultHTTPTimeout}
	apiClient := api.New(httpClient, endpoints, store, logger)

	manager := session.New(session.Config{
		API:    apiClient,
		Store:  store,
		Logger: logger,
		Realtime: realtime.Options{
			URL:            endpoints.RealtimeURL,
			Heartbeat:      opts.Heartbeat,
			ReconnectDelay: opts.ReconnectDelay,
			MaxReconnects:  opts.MaxReconnects,
		},
	})

	return app.New(opts, manager, logger, app.Callbacks{
		OnEvent:        hooks.OnEvent,
		OnStatusChange: hooks.OnStatus,
		OnUnreadCount:  hooks.OnUnreadCount,
	}), nil
}
