package e2e

import (
	"chat-client/conversation"
	"chat-client/domain"
	"chat-client/observability"
	"chat-client/session"
	"chat-client/storage"
	"chat-client/transport"
	"chat-client/transport/remotetest"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

// Client is one user's full client stack.
type Client struct {
	Store    storage.KeyValueStore
	Session  *session.Manager
	Board    *conversation.Switchboard
	Stats    *observability.SyncStats
	Identity domain.Identity
}

type BaseSuite struct {
	suite.Suite
	Config Config
	Log    *slog.Logger
	// Remote is set when the suite runs against the in-process stand-in.
	Remote    *remotetest.Server
	serverURL string
}

// SetupSuite loads the environment configuration and picks the service to talk to.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.Log = logs.GetLoggerFromLevel(slog.LevelDebug)

	s.serverURL = s.Config.ServerURL
	if s.serverURL == "" {
		s.Remote = remotetest.NewServer(s.Log)
		s.Remote.AddUser(s.Config.AliceEmail, "alice", s.Config.AlicePassword)
		s.Remote.AddUser(s.Config.BobEmail, "bob", s.Config.BobPassword)
		s.serverURL = s.Remote.URL
	}
}

func (s *BaseSuite) TearDownSuite() {
	if s.Remote != nil {
		s.Remote.Close()
	}
}

// Step prints a colorized header and runs fn with a bounded context.
func (s *BaseSuite) Step(name string, fn func(ctx context.Context)) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fn(ctx)
}

// NewClient wires a client stack over store, the way cmd/chat does.
func (s *BaseSuite) NewClient(store storage.KeyValueStore) *Client {
	authAPI, err := transport.NewHTTPClient(transport.HTTPConfig{BaseURL: s.serverURL, Logger: s.Log})
	s.Require().NoError(err)
	manager := session.NewManager(store, authAPI, s.Log)
	messageAPI, err := transport.NewHTTPClient(transport.HTTPConfig{BaseURL: s.serverURL, Tokens: manager, Logger: s.Log})
	s.Require().NoError(err)
	dialer, err := transport.NewWebSocketDialer(transport.WebSocketConfig{BaseURL: s.serverURL, Tokens: manager, Logger: s.Log})
	s.Require().NoError(err)

	stats := observability.NewSyncStats()
	board := conversation.NewSwitchboard(messageAPI, dialer, s.Log, conversation.WithStats(stats))
	manager.OnChange(board.OnSessionChange)
	s.T().Cleanup(board.Close)
	return &Client{Store: store, Session: manager, Board: board, Stats: stats}
}

// Login logs c in and binds its switchboard to the identity.
func (s *BaseSuite) Login(ctx context.Context, c *Client, email, password string) {
	creds, err := c.Session.Login(ctx, email, password)
	s.Require().NoError(err, "login as %s", email)
	c.Identity = creds.Identity
}

// WaitFor polls the active conversation of c until a message satisfies match.
func (s *BaseSuite) WaitFor(c *Client, match func(domain.Message) bool) domain.Message {
	var found domain.Message
	s.Require().Eventually(func() bool {
		conv, ok := c.Board.Active()
		if !ok {
			return false
		}
		for _, m := range conv.Messages() {
			if match(m) {
				found = m
				return true
			}
		}
		return false
	}, 10*time.Second, 20*time.Millisecond)
	return found
}
