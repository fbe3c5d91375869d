package workers

import (
	"chat-client/errors"
	"context"
	stderrors "errors"
	"log/slog"
	"time"
)

// KeepaliveWorker renews the access token ahead of expiry. When the service rejects
// the renewal the session is logged out and the worker fails, so the supervisor
// starts it again for whoever logs in next. Other failures keep the credentials.
type KeepaliveWorker struct {
	session  SessionKeeper
	lead     time.Duration
	interval time.Duration
	log      *slog.Logger
	expired  func()
}

func NewKeepaliveWorker(session SessionKeeper, lead, interval time.Duration, log *slog.Logger, expired func()) *KeepaliveWorker {
	return &KeepaliveWorker{session: session, lead: lead, interval: interval, log: log, expired: expired}
}

func (w *KeepaliveWorker) Run(ctx context.Context) error {
	err := w.session.Keepalive(ctx, w.lead, w.interval)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, errors.ErrAuthentication) {
		w.log.Warn("Session keepalive failed, credentials kept", "error", err)
		return err
	}
	w.log.Warn("Session could not be renewed, logging out", "error", err)
	w.session.Logout()
	if w.expired != nil {
		w.expired()
	}
	return err
}
