package transport

import (
	"chat-client/errors"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const defaultFrameBuffer = 64

// WebSocketConfig holds configuration for creating a WebSocketDialer.
type WebSocketConfig struct {
	// BaseURL is the ws:// or wss:// root of the push endpoint.
	// An http(s):// URL is converted.
	BaseURL string
	// Dialer is used for every connection. If nil, websocket.DefaultDialer is used.
	Dialer *websocket.Dialer
	// Tokens supplies the bearer token sent on the upgrade request. Optional.
	Tokens TokenSource
	// FrameBuffer is the capacity of the Frames channel.
	FrameBuffer int
	Logger      *slog.Logger
}

// WebSocketDialer opens one push channel per identity over a websocket.
type WebSocketDialer struct {
	baseURL     string
	dialer      *websocket.Dialer
	tokens      TokenSource
	frameBuffer int
	log         *slog.Logger
}

var _ PushDialer = (*WebSocketDialer)(nil)

func NewWebSocketDialer(config WebSocketConfig) (*WebSocketDialer, error) {
	base, err := PushURL(config.BaseURL)
	if err != nil {
		return nil, err
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	buffer := config.FrameBuffer
	if buffer <= 0 {
		buffer = defaultFrameBuffer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketDialer{baseURL: base, dialer: dialer, tokens: config.Tokens, frameBuffer: buffer, log: logger}, nil
}

// PushURL converts a service URL into the websocket root of the push endpoint.
func PushURL(base string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("transport: push BaseURL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("transport: invalid push URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: unsupported push scheme %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func (d *WebSocketDialer) Subscribe(ctx context.Context, userID string) (Subscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: push channel requires a user id", errors.ErrInvalidRequest)
	}
	endpoint := d.baseURL + "/api/messages/ws/" + url.PathEscape(userID)
	header := http.Header{}
	if d.tokens != nil {
		if token, ok := d.tokens.Token(ctx); ok {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, response, err := d.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if response != nil {
			_ = response.Body.Close()
			return nil, &APIError{StatusCode: response.StatusCode, Detail: err.Error()}
		}
		return nil, fmt.Errorf("%w: push channel for %s: %v", errors.ErrTransport, userID, err)
	}

	sub := &wsSubscription{
		conn:    conn,
		frames:  make(chan []byte, d.frameBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		log:     d.log.With("user_id", userID),
	}
	go sub.readLoop()
	d.log.Debug("Push channel opened", "user_id", userID)
	return sub, nil
}

type wsSubscription struct {
	conn      *websocket.Conn
	frames    chan []byte
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	log       *slog.Logger
}

func (s *wsSubscription) Frames() <-chan []byte {
	return s.frames
}

// Close tears the socket down and returns once the reader goroutine has exited.
// Frames still buffered at that point are discarded.
func (s *wsSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.closeErr = s.conn.Close()
		<-s.done
		for range s.frames {
		}
	})
	return s.closeErr
}

func (s *wsSubscription) readLoop() {
	defer close(s.done)
	defer close(s.frames)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closing:
			default:
				s.log.Warn("Push channel ended", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		select {
		case s.frames <- data:
		case <-s.closing:
			return
		}
	}
}
