package api

import (
	"context"
	"sync"

	"staffsync-client/internal/credstore"
	"staffsync-client/internal/logging"
)

// refreshCoordinator serializes token refreshes: the first caller to hit a
// 401 performs the wire call, every concurrent caller parks on a waiter and
// receives the same outcome. Waiters are released in arrival order.
type refreshCoordinator struct {
	store     *credstore.Store
	logger    *logging.Logger
	refreshFn func(ctx context.Context, refreshToken string) (string, error)
	onInvalid func()

	mu       sync.Mutex
	inflight bool
	waiters  []chan error
}

func newRefreshCoordinator(store *credstore.Store, logger *logging.Logger, refreshFn func(context.Context, string) (string, error)) *refreshCoordinator {
	return &refreshCoordinator{
		store:     store,
		logger:    logger,
		refreshFn: refreshFn,
	}
}

// HandleUnauthorized settles one 401. A nil return means "retry with the
// rotated token"; ErrSessionExpired means the session is gone.
func (rc *refreshCoordinator) HandleUnauthorized(ctx context.Context) error {
	rc.mu.Lock()
	if rc.inflight {
		waiter := make(chan error, 1)
		rc.waiters = append(rc.waiters, waiter)
		rc.mu.Unlock()
		rc.logger.Debug("refresh already in flight, waiting")
		select {
		case err := <-waiter:
			return err
		case <-ctx.Done():
			return &TransportError{Op: "await refresh", Err: ctx.Err()}
		}
	}
	rc.inflight = true
	rc.mu.Unlock()

	err := rc.runRefresh(ctx)
	rc.settle(err)
	return err
}

func (rc *refreshCoordinator) runRefresh(ctx context.Context) error {
	refreshToken := rc.store.RefreshToken()
	if refreshToken == "" {
		rc.logger.Warn("no refresh token available, session is gone")
		return ErrSessionExpired
	}

	// The refresh outcome is shared by every waiter, so it must not die
	// with the caller that happened to trigger it.
	access, err := rc.refreshFn(context.WithoutCancel(ctx), refreshToken)
	if err != nil {
		rc.logger.Warn("token refresh failed, invalidating session", logging.Field("error", err))
		rc.invalidate()
		return ErrSessionExpired
	}
	if persistErr := rc.store.RotateAccessToken(access); persistErr != nil {
		rc.logger.Error("failed to persist refreshed token", logging.Field("error", persistErr))
		rc.invalidate()
		return ErrSessionExpired
	}
	rc.logger.Debug("access token refreshed")
	return nil
}

func (rc *refreshCoordinator) invalidate() {
	if err := rc.store.Clear(); err != nil {
		rc.logger.Warn("failed to clear credentials", logging.Field("error", err))
	}
	if rc.onInvalid != nil {
		rc.onInvalid()
	}
}

// settle releases every queued waiter with the shared outcome, preserving
// arrival order, and clears the in-flight marker.
func (rc *refreshCoordinator) settle(outcome error) {
	rc.mu.Lock()
	waiters := rc.waiters
	rc.waiters = nil
	rc.inflight = false
	rc.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- outcome
	}
}

// Abort rejects every queued waiter with ErrSessionExpired. An in-flight
// wire call may still complete afterwards; its own caller receives that
// result, but nobody else is left hanging.
func (rc *refreshCoordinator) Abort() {
	rc.mu.Lock()
	waiters := rc.waiters
	rc.waiters = nil
	rc.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- ErrSessionExpired
	}
}
