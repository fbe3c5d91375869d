package conversation

import (
	"chat-client/domain"
	"chat-client/errors"
	"chat-client/transport"
	"context"
	"log/slog"
	"sync"
)

// Switchboard keeps at most one open conversation for the local identity.
// Switching closes the previous conversation before the next one subscribes,
// so a stale channel can never deliver into the new view.
type Switchboard struct {
	messages transport.MessageAPI
	dialer   transport.PushDialer
	log      *slog.Logger
	opts     []Option

	mu     sync.Mutex
	local  string
	active *Synchronizer
}

func NewSwitchboard(messages transport.MessageAPI, dialer transport.PushDialer, log *slog.Logger, opts ...Option) *Switchboard {
	return &Switchboard{
		messages: messages,
		dialer:   dialer,
		log:      log,
		opts:     opts,
	}
}

// SetIdentity binds the switchboard to a local user. Changing the user closes
// the active conversation.
func (b *Switchboard) SetIdentity(local string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.local == local {
		return
	}
	b.closeActiveLocked()
	b.local = local
}

// Switch closes the active conversation and opens the one with remote.
// The new synchronizer is returned even when Open fails, so its view can still
// be reloaded or sent to.
func (b *Switchboard) Switch(ctx context.Context, remote string) (*Synchronizer, error) {
	b.mu.Lock()
	if b.local == "" {
		b.mu.Unlock()
		return nil, errors.ErrNoIdentity
	}
	b.closeActiveLocked()
	conv := New(domain.ConversationKey{Local: b.local, Remote: remote}, b.messages, b.dialer, b.log, b.opts...)
	b.active = conv
	b.mu.Unlock()

	b.log.Info("Opening conversation", "local", conv.Key().Local, "remote", remote)
	return conv, conv.Open(ctx)
}

// Active returns the open conversation, if any.
func (b *Switchboard) Active() (*Synchronizer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.active != nil
}

// Close tears down the active conversation and keeps the identity.
func (b *Switchboard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeActiveLocked()
}

// Invalidate tears down the active conversation and forgets the identity.
func (b *Switchboard) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeActiveLocked()
	b.local = ""
}

// OnSessionChange follows the session state. It has the shape of a session listener.
func (b *Switchboard) OnSessionChange(identity domain.Identity, authenticated bool) {
	if !authenticated {
		b.Invalidate()
		return
	}
	b.SetIdentity(identity.UserID)
}

func (b *Switchboard) closeActiveLocked() {
	if b.active == nil {
		return
	}
	key := b.active.Key()
	if err := b.active.Close(); err != nil {
		b.log.Warn("Closing conversation failed", "remote", key.Remote, "error", err)
	}
	b.active = nil
}
