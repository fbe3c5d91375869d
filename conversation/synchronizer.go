// Package conversation keeps the local view of one conversation in step with the
// remote service. The view is fed by a one-shot bulk fetch and a continuous push
// channel, and it shows optimistic placeholders while sends are in flight.
package conversation

import (
	"chat-client/domain"
	"chat-client/errors"
	"chat-client/observability"
	"chat-client/projection"
	"chat-client/transport"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Synchronizer struct {
	key      domain.ConversationKey
	messages transport.MessageAPI
	dialer   transport.PushDialer
	log      *slog.Logger
	stats    *observability.SyncStats
	now      func() time.Time

	refetchOnSend bool

	mu          sync.Mutex
	timeline    *projection.Timeline
	draft       string
	opened      bool
	closed      bool
	subscribing bool
	// lost is set when the remote side ended the push channel; Reload dials again.
	lost bool
	// generation changes on Close; results tagged with an older one are discarded.
	generation uint64
	sub        transport.Subscription
	stop       chan struct{}
	pumpDone   chan struct{}
	updates    chan struct{}
}

type Option func(*Synchronizer)

func WithStats(stats *observability.SyncStats) Option {
	return func(s *Synchronizer) { s.stats = stats }
}

// WithRefetchOnSend re-runs the bulk fetch after every successful send,
// in addition to merging the message returned by the send itself.
func WithRefetchOnSend(enabled bool) Option {
	return func(s *Synchronizer) { s.refetchOnSend = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// New builds a synchronizer for key. dialer may be nil, in which case the view
// only changes through fetches and sends.
func New(key domain.ConversationKey, messages transport.MessageAPI, dialer transport.PushDialer, log *slog.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		key:      key,
		messages: messages,
		dialer:   dialer,
		log:      log.With("local", key.Local, "remote", key.Remote),
		now:      time.Now,
		timeline: projection.NewTimeline(key),
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) Key() domain.ConversationKey {
	return s.key
}

// Updates signals that the view changed. Signals are coalesced and the channel
// is closed by Close.
func (s *Synchronizer) Updates() <-chan struct{} {
	return s.updates
}

// Open subscribes to the push channel and then replaces the view with a bulk fetch.
// Pushes that arrive while the fetch is in flight are kept by the merge rule.
// If the fetch fails the view keeps its previous content and the channel stays open.
// A push channel that cannot be established is reported once the fetch completed.
func (s *Synchronizer) Open(ctx context.Context) error {
	if !s.key.Valid() {
		return fmt.Errorf("%w: conversation needs a local and a remote user", errors.ErrNoIdentity)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrConversationClosed
	}
	s.opened = true
	subscribe := s.dialer != nil && s.sub == nil && !s.subscribing
	s.subscribing = subscribe || s.subscribing
	if subscribe {
		s.lost = false
	}
	gen := s.generation
	s.mu.Unlock()

	var subErr error
	if subscribe {
		subErr = s.subscribe(ctx, gen)
		if stderrors.Is(subErr, errors.ErrConversationClosed) {
			return subErr
		}
		if subErr != nil {
			s.log.Warn("Push channel unavailable, view will only change on reload", "error", subErr)
		}
	}

	if err := s.Reload(ctx); err != nil {
		return err
	}
	if subErr != nil {
		return fmt.Errorf("push channel: %w", subErr)
	}
	return nil
}

func (s *Synchronizer) subscribe(ctx context.Context, gen uint64) error {
	sub, err := s.dialer.Subscribe(ctx, s.key.Local)

	s.mu.Lock()
	s.subscribing = false
	if gen != s.generation {
		s.mu.Unlock()
		s.stats.IncrStaleDiscarded()
		if sub != nil {
			_ = sub.Close()
		}
		return errors.ErrConversationClosed
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.sub = sub
	s.stop = make(chan struct{})
	s.pumpDone = make(chan struct{})
	go s.pump(gen, sub, s.stop, s.pumpDone)
	s.mu.Unlock()

	s.log.Debug("Push channel open")
	return nil
}

func (s *Synchronizer) pump(gen uint64, sub transport.Subscription, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	frames := sub.Frames()
	for {
		select {
		case <-stop:
			return
		case raw, ok := <-frames:
			if !ok {
				s.log.Warn("Push channel ended")
				s.release(sub)
				return
			}
			_ = s.handleFrame(gen, raw)
		}
	}
}

// release forgets a push channel the remote side ended, so the next Open or
// Reload subscribes again.
func (s *Synchronizer) release(sub transport.Subscription) {
	s.mu.Lock()
	current := s.sub == sub
	if current {
		s.sub, s.stop, s.pumpDone = nil, nil, nil
		s.lost = true
	}
	s.mu.Unlock()
	if current {
		_ = sub.Close()
	}
}

// Reload re-runs the bulk fetch and replaces the view with its result.
// A push channel that ended since the last Open is dialed again first.
func (s *Synchronizer) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrConversationClosed
	}
	if !s.opened {
		s.mu.Unlock()
		return errors.ErrNotOpened
	}
	gen := s.generation
	resubscribe := s.lost && s.dialer != nil && s.sub == nil && !s.subscribing
	if resubscribe {
		s.lost = false
		s.subscribing = true
	}
	s.mu.Unlock()

	if resubscribe {
		err := s.subscribe(ctx, gen)
		if stderrors.Is(err, errors.ErrConversationClosed) {
			return err
		}
		if err != nil {
			s.log.Warn("Push channel still unavailable", "error", err)
			s.mu.Lock()
			s.lost = true
			s.mu.Unlock()
		}
	}

	fetched, err := s.messages.FetchConversation(ctx, s.key.Local, s.key.Remote)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.stats.IncrStaleDiscarded()
		return errors.ErrConversationClosed
	}
	if err != nil {
		s.stats.IncrFetchFailed()
		s.log.Warn("Fetching conversation failed, keeping current view", "error", err)
		return fmt.Errorf("fetch conversation: %w", err)
	}
	s.stats.IncrFetchOK()
	s.timeline.Replace(lo.Filter(fetched, func(m domain.Message, _ int) bool {
		return s.key.Involves(m)
	}))
	s.notify()
	return nil
}

// Send delivers content to the remote user. Blank content is ignored without error.
// A placeholder is shown until the remote service answers. On failure the placeholder
// is removed, the content is kept as Draft and a *errors.SendError is returned.
func (s *Synchronizer) Send(ctx context.Context, content string) error {
	if domain.IsBlank(content) {
		return nil
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return &errors.SendError{Content: content, Err: errors.ErrConversationClosed}
	case !s.opened:
		s.mu.Unlock()
		return &errors.SendError{Content: content, Err: errors.ErrNotOpened}
	}
	gen := s.generation
	placeholder := domain.NewPendingMessage(s.key, content, s.now())
	s.timeline.AddPending(placeholder)
	s.draft = ""
	s.notify()
	s.mu.Unlock()

	confirmed, err := s.messages.Send(ctx, s.key.Local, s.key.Remote, strings.TrimSpace(content))

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.stats.IncrStaleDiscarded()
		return &errors.SendError{Content: content, Err: errors.ErrConversationClosed}
	}
	s.timeline.RemovePending(placeholder.ID)
	if err != nil {
		s.draft = content
		s.notify()
		s.mu.Unlock()
		s.stats.IncrSendFailed()
		s.log.Warn("Sending message failed", "error", err)
		return &errors.SendError{Content: content, Err: err}
	}
	s.stats.IncrSendOK()
	if !s.timeline.MergeConfirmed(confirmed) {
		s.stats.IncrDuplicateIgnored()
	}
	s.notify()
	s.mu.Unlock()

	if s.refetchOnSend {
		if err := s.Reload(ctx); err != nil {
			s.log.Debug("Refetch after send failed", "error", err)
		}
	}
	return nil
}

// HandlePush applies one raw push frame to the view.
// Malformed frames are dropped and reported with errors.ErrMalformedPayload.
// Messages of other conversations are ignored.
func (s *Synchronizer) HandlePush(raw []byte) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	return s.handleFrame(gen, raw)
}

func (s *Synchronizer) handleFrame(gen uint64, raw []byte) error {
	s.stats.IncrPushReceived()
	m, err := transport.DecodePush(raw)
	if err != nil {
		s.stats.IncrPushDropped()
		s.log.Warn("Dropping push frame", "error", err, "size", len(raw))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation {
		s.stats.IncrStaleDiscarded()
		return errors.ErrConversationClosed
	}
	if !s.key.Involves(m) {
		s.stats.IncrForeignIgnored()
		return nil
	}
	if !s.timeline.MergeConfirmed(m) {
		s.stats.IncrDuplicateIgnored()
		return nil
	}
	s.notify()
	return nil
}

// Messages returns a copy of the current view.
func (s *Synchronizer) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Messages()
}

// Draft returns the content of the last failed send, if any.
func (s *Synchronizer) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Close releases the push channel and empties the view. Once it returns, no frame
// is applied and every in-flight fetch or send result is discarded. Calling it again, or before
// Open, is harmless.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	sub, stop, done := s.sub, s.stop, s.pumpDone
	s.sub, s.stop, s.pumpDone = nil, nil, nil
	s.timeline = projection.NewTimeline(s.key)
	close(s.updates)
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	if done != nil {
		<-done
	}
	s.log.Debug("Conversation closed")
	return err
}

// notify must be called with mu held.
func (s *Synchronizer) notify() {
	if s.closed {
		return
	}
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
