package session

import (
	"chat-client/auth"
	"chat-client/errors"
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// Keepalive refreshes the access token once it is within lead of its expiry.
// It checks immediately and then every interval. Opaque tokens without an exp
// claim are left to AutoLogin. Failures are retried on the next tick, except a
// refresh token rejected by the service once the access token has expired: then
// Keepalive returns ErrAuthentication and the caller decides whether that means
// logout. An unreachable service never ends it. It returns nil when ctx ends.
func (m *Manager) Keepalive(ctx context.Context, lead, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := m.refreshIfDue(ctx, lead); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			m.log.Debug("Context done, stopping session keepalive")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Manager) refreshIfDue(ctx context.Context, lead time.Duration) error {
	token, ok := m.AccessToken()
	if !ok {
		return nil
	}
	expiresAt, err := auth.ExpiresAt(token)
	if err != nil {
		return nil
	}
	remaining := expiresAt.Sub(m.now())
	if remaining > lead {
		return nil
	}

	_, err = m.refresh(ctx)
	switch {
	case err == nil:
		m.log.Info("Access token refreshed", "expired_in", remaining.Round(time.Second))
		return nil
	case ctx.Err() != nil:
		return nil
	case stderrors.Is(err, errors.ErrNoIdentity):
		m.log.Debug("Nothing to refresh", "error", err)
		return nil
	case stderrors.Is(err, errors.ErrAuthentication) && remaining <= 0:
		return fmt.Errorf("access token expired %s ago and could not be refreshed: %w", -remaining.Round(time.Second), err)
	default:
		m.log.Warn("Access token refresh failed, retrying", "expires_in", remaining.Round(time.Second), "error", err)
		return nil
	}
}
