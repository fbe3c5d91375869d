package conversation

import (
	"chat-client/domain"
	"chat-client/errors"
	"chat-client/mocks"
	"chat-client/observability"
	"chat-client/transport"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var aliceBob = domain.ConversationKey{Local: "alice", Remote: "bob"}

func message(id, from, to, content string) domain.Message {
	return domain.Message{
		ID:          id,
		SenderID:    from,
		RecipientID: to,
		Content:     content,
		CreatedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:      domain.StatusAllowed,
	}
}

func frame(t *testing.T, m domain.Message) []byte {
	t.Helper()
	raw, err := transport.EncodePush(m)
	require.NoError(t, err)
	return raw
}

func viewIDs(messages []domain.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}

func pendingOf(messages []domain.Message) []domain.Message {
	var out []domain.Message
	for _, m := range messages {
		if m.Pending {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	api    *mocks.MockMessageAPI
	dialer *mocks.MockPushDialer
	sub    *mocks.MockSubscription
	frames chan []byte
	stats  *observability.SyncStats
	log    *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		api:    mocks.NewMockMessageAPI(ctrl),
		dialer: mocks.NewMockPushDialer(ctrl),
		sub:    mocks.NewMockSubscription(ctrl),
		frames: make(chan []byte, 8),
		stats:  observability.NewSyncStats(),
		log:    logs.GetLoggerFromLevel(slog.LevelDebug),
	}
	f.sub.EXPECT().Frames().Return((<-chan []byte)(f.frames)).AnyTimes()
	return f
}

// opened returns a synchronizer whose push channel is up and whose view holds initial.
func (f *fixture) opened(t *testing.T, initial []domain.Message, opts ...Option) *Synchronizer {
	t.Helper()
	f.dialer.EXPECT().Subscribe(gomock.Any(), "alice").Return(f.sub, nil)
	f.api.EXPECT().FetchConversation(gomock.Any(), "alice", "bob").Return(initial, nil)
	f.sub.EXPECT().Close().Return(nil).MaxTimes(1)

	s := New(aliceBob, f.api, f.dialer, f.log, append([]Option{WithStats(f.stats)}, opts...)...)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSynchronizer_Open(t *testing.T) {
	t.Run("should subscribe before fetching and install the fetch result", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		gomock.InOrder(
			f.dialer.EXPECT().Subscribe(gomock.Any(), "alice").Return(f.sub, nil),
			f.api.EXPECT().FetchConversation(gomock.Any(), "alice", "bob").
				Return([]domain.Message{message("m1", "bob", "alice", "hi"), message("m2", "alice", "bob", "hey")}, nil),
		)
		f.sub.EXPECT().Close().Return(nil)
		s := New(aliceBob, f.api, f.dialer, f.log)

		req.NoError(s.Open(context.Background()))

		req.Equal([]string{"m1", "m2"}, viewIDs(s.Messages()))
		req.NoError(s.Close())
	})

	t.Run("should neither lose nor duplicate pushes racing the fetch", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.dialer.EXPECT().Subscribe(gomock.Any(), "alice").Return(f.sub, nil)
		f.sub.EXPECT().Close().Return(nil)
		var s *Synchronizer
		f.api.EXPECT().FetchConversation(gomock.Any(), "alice", "bob").
			DoAndReturn(func(context.Context, string, string) ([]domain.Message, error) {
				// m1 is part of the fetch, m3 only arrives by push
				req.NoError(s.HandlePush(frame(t, message("m1", "bob", "alice", "hi"))))
				req.NoError(s.HandlePush(frame(t, message("m3", "bob", "alice", "late"))))
				return []domain.Message{message("m1", "bob", "alice", "hi"), message("m2", "alice", "bob", "hey")}, nil
			})
		s = New(aliceBob, f.api, f.dialer, f.log, WithStats(f.stats))

		req.NoError(s.Open(context.Background()))

		req.Equal([]string{"m1", "m2", "m3"}, viewIDs(s.Messages()))
		req.NoError(s.Close())
	})

	t.Run("should keep the channel and the previous view when the fetch fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, []domain.Message{message("m1", "bob", "alice", "hi")})
		f.api.EXPECT().FetchConversation(gomock.Any(), "alice", "bob").Return(nil, errors.ErrTransport)

		err := s.Reload(context.Background())

		req.ErrorIs(err, errors.ErrTransport)
		req.Equal([]string{"m1"}, viewIDs(s.Messages()))
		req.Equal(uint64(1), f.stats.Snapshot().FetchFailed)

		// The push channel still feeds the view
		f.frames <- frame(t, message("m2", "bob", "alice", "still here"))
		req.Eventually(func() bool { return len(s.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("should subscribe again on reload once the push channel ended", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)

		second := mocks.NewMockSubscription(gomock.NewController(t))
		secondFrames := make(chan []byte, 1)
		second.EXPECT().Frames().Return((<-chan []byte)(secondFrames)).AnyTimes()
		second.EXPECT().Close().Return(nil)

		// When the remote side ends the push channel
		close(f.frames)
		req.Eventually(func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.sub == nil
		}, time.Second, 5*time.Millisecond)

		// Then a reload dials it again
		gomock.InOrder(
			f.dialer.EXPECT().Subscribe(gomock.Any(), "alice").Return(second, nil),
			f.api.EXPECT().FetchConversation(gomock.Any(), "alice", "bob").Return(nil, nil),
		)
		req.NoError(s.Reload(context.Background()))

		secondFrames <- frame(t, message("m1", "bob", "alice", "back"))
		req.Eventually(func() bool { return len(s.Messages()) == 1 }, time.Second, 5*time.Millisecond)
		req.NoError(s.Close())
	})

	t.Run("should still fetch when the push channel is unavailable", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.dialer.EXPECT().Subscribe(gomock.Any(), "alice").Return(nil, errors.ErrTransport)
		f.api.EXPECT().FetchConversation(gomock.Any(), "alice", "bob").
			Return([]domain.Message{message("m1", "bob", "alice", "hi")}, nil)
		s := New(aliceBob, f.api, f.dialer, f.log)

		err := s.Open(context.Background())

		req.ErrorIs(err, errors.ErrTransport)
		req.Equal([]string{"m1"}, viewIDs(s.Messages()))
		req.NoError(s.Close())
	})

	t.Run("should reject a key without both users", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := New(domain.ConversationKey{Local: "alice"}, f.api, f.dialer, f.log)

		req.ErrorIs(s.Open(context.Background()), errors.ErrNoIdentity)
	})
}

func TestSynchronizer_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("should ignore blank content without calling the service", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)
		f.api.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req.NoError(s.Send(ctx, ""))
		req.NoError(s.Send(ctx, "   "))
		req.Empty(s.Messages())
	})

	t.Run("should show a placeholder and replace it with the confirmed message", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, []domain.Message{message("m1", "bob", "alice", "hi")})
		f.api.EXPECT().Send(gomock.Any(), "alice", "bob", "hello bob").
			DoAndReturn(func(context.Context, string, string, string) (domain.Message, error) {
				pending := pendingOf(s.Messages())
				req.Len(pending, 1)
				req.Equal("hello bob", pending[0].Content)
				req.Contains(pending[0].ID, domain.PendingPrefix)
				return message("m2", "alice", "bob", "hello bob"), nil
			})

		req.NoError(s.Send(ctx, "hello bob"))

		req.Empty(pendingOf(s.Messages()))
		req.Equal([]string{"m1", "m2"}, viewIDs(s.Messages()))
		req.Empty(s.Draft())
		req.Equal(uint64(1), f.stats.Snapshot().SendOK)
	})

	t.Run("should keep one copy when the push beats the send response", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)
		confirmed := message("m9", "alice", "bob", "race")
		f.api.EXPECT().Send(gomock.Any(), "alice", "bob", "race").
			DoAndReturn(func(context.Context, string, string, string) (domain.Message, error) {
				req.NoError(s.HandlePush(frame(t, confirmed)))
				return confirmed, nil
			})

		req.NoError(s.Send(ctx, "race"))

		req.Equal([]string{"m9"}, viewIDs(s.Messages()))
		req.Equal(uint64(1), f.stats.Snapshot().DuplicateIgnored)
	})

	t.Run("should restore the content when the send fails", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)
		f.api.EXPECT().Send(gomock.Any(), "alice", "bob", "lost words").Return(domain.Message{}, errors.ErrTransport)

		err := s.Send(ctx, "lost words")

		var sendErr *errors.SendError
		req.True(stderrors.As(err, &sendErr))
		req.Equal("lost words", sendErr.Content)
		req.ErrorIs(err, errors.ErrTransport)
		req.Equal("lost words", s.Draft())
		req.Empty(s.Messages())
		req.Equal(uint64(1), f.stats.Snapshot().SendFailed)
	})

	t.Run("should give equal-content sends distinct placeholders", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)
		release := make(chan struct{})
		var counter int
		var counterMu sync.Mutex
		f.api.EXPECT().Send(gomock.Any(), "alice", "bob", "same").
			DoAndReturn(func(context.Context, string, string, string) (domain.Message, error) {
				<-release
				counterMu.Lock()
				defer counterMu.Unlock()
				counter++
				if counter == 1 {
					return message("m1", "alice", "bob", "same"), nil
				}
				return message("m2", "alice", "bob", "same"), nil
			}).Times(2)

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Send(ctx, "same")
			}()
		}
		req.Eventually(func() bool { return len(pendingOf(s.Messages())) == 2 }, time.Second, 5*time.Millisecond)
		pending := pendingOf(s.Messages())
		req.NotEqual(pending[0].ID, pending[1].ID)

		close(release)
		wg.Wait()
		req.Empty(pendingOf(s.Messages()))
		req.ElementsMatch([]string{"m1", "m2"}, viewIDs(s.Messages()))
	})

	t.Run("should discard a result that arrives after close", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)
		f.api.EXPECT().Send(gomock.Any(), "alice", "bob", "too late").
			DoAndReturn(func(context.Context, string, string, string) (domain.Message, error) {
				req.NoError(s.Close())
				return message("m1", "alice", "bob", "too late"), nil
			})

		err := s.Send(ctx, "too late")

		req.ErrorIs(err, errors.ErrConversationClosed)
		req.Empty(s.Messages())
		req.Equal(uint64(1), f.stats.Snapshot().StaleDiscarded)
	})

	t.Run("should refetch after a send when configured", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil, WithRefetchOnSend(true))
		sent := message("m1", "alice", "bob", "hello")
		gomock.InOrder(
			f.api.EXPECT().Send(gomock.Any(), "alice", "bob", "hello").Return(sent, nil),
			f.api.EXPECT().FetchConversation(gomock.Any(), "alice", "bob").
				Return([]domain.Message{message("m0", "bob", "alice", "earlier"), sent}, nil),
		)

		req.NoError(s.Send(ctx, "hello"))

		req.Equal([]string{"m0", "m1"}, viewIDs(s.Messages()))
	})

	t.Run("should refuse to send before open", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := New(aliceBob, f.api, f.dialer, f.log)

		err := s.Send(ctx, "hello")

		req.ErrorIs(err, errors.ErrNotOpened)
	})
}

func TestSynchronizer_HandlePush(t *testing.T) {
	t.Run("should drop malformed frames and keep the view", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, []domain.Message{message("m1", "bob", "alice", "hi")})

		for _, raw := range []string{`not json`, `[]`, `{"type":"typing"}`, `{"type":"new_message"}`, `{"id":"x"}`} {
			req.ErrorIs(s.HandlePush([]byte(raw)), errors.ErrMalformedPayload, raw)
		}

		req.Equal([]string{"m1"}, viewIDs(s.Messages()))
		req.Equal(uint64(5), f.stats.Snapshot().PushDropped)
	})

	t.Run("should ignore messages of another conversation", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)

		req.NoError(s.HandlePush(frame(t, message("c1", "carol", "alice", "psst"))))
		req.NoError(s.HandlePush(frame(t, message("m1", "bob", "alice", "hi"))))

		req.Equal([]string{"m1"}, viewIDs(s.Messages()))
		req.Equal(uint64(1), f.stats.Snapshot().ForeignIgnored)
	})

	t.Run("should deliver frames from the push channel and signal updates", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)
		// Drain the signal left by Open
		select {
		case <-s.Updates():
		default:
		}

		f.frames <- frame(t, message("m1", "bob", "alice", "hi"))

		select {
		case <-s.Updates():
		case <-time.After(time.Second):
			req.Fail("no update signalled")
		}
		req.Equal([]string{"m1"}, viewIDs(s.Messages()))
	})
}

func TestSynchronizer_Close(t *testing.T) {
	t.Run("should be harmless before open and when repeated", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := New(aliceBob, f.api, f.dialer, f.log)

		req.NoError(s.Close())
		req.NoError(s.Close())
		req.ErrorIs(s.Open(context.Background()), errors.ErrConversationClosed)
	})

	t.Run("should stop applying frames once it returns", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		s := f.opened(t, nil)

		req.NoError(s.Close())

		req.ErrorIs(s.HandlePush(frame(t, message("m1", "bob", "alice", "hi"))), errors.ErrConversationClosed)
		req.Empty(s.Messages())
		// Updates is closed, so draining terminates
		for range s.Updates() {
		}
	})
}
