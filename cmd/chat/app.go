package main

import (
	"chat-client/conversation"
	"chat-client/errors"
	"chat-client/session"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const helpText = `Commands:
  /login <email> <password>
  /register <email> <username> <password>
  /confirm <email> <code>
  /open <user-id>        open the conversation with a user
  /history               show the conversation as a table
  /reload                fetch the conversation again
  /retry                 resend the last message that failed
  /whoami
  /logout
  /quit
Any other line is sent to the open conversation.`

type app struct {
	session *session.Manager
	board   *conversation.Switchboard
	log     *slog.Logger

	mu    sync.Mutex
	out   io.Writer
	shown map[string]struct{}
}

func newApp(manager *session.Manager, board *conversation.Switchboard, log *slog.Logger, out io.Writer) *app {
	return &app{
		session: manager,
		board:   board,
		log:     log,
		out:     out,
		shown:   make(map[string]struct{}),
	}
}

func (a *app) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, format+"\n", args...)
}

// handle runs one input line. It returns false when the user asked to quit.
func (a *app) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		a.send(ctx, line)
		return true
	}

	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]
	switch command {
	case "/quit", "/exit":
		return false
	case "/help":
		a.printf("%s", helpText)
	case "/login":
		if len(args) != 2 {
			a.printf("Usage: /login <email> <password>")
			return true
		}
		creds, err := a.session.Login(ctx, args[0], args[1])
		if err != nil {
			a.printf("Login failed: %v", err)
			return true
		}
		a.printf("Logged in as %s (%s)", creds.Identity.DisplayName, creds.Identity.UserID)
	case "/register":
		if len(args) != 3 {
			a.printf("Usage: /register <email> <username> <password>")
			return true
		}
		if err := a.session.Register(ctx, args[0], args[1], args[2]); err != nil {
			a.printf("Registration failed: %v", err)
			return true
		}
		a.printf("Check %s for your code, then /confirm %s <code>", args[0], args[0])
	case "/confirm":
		if len(args) != 2 {
			a.printf("Usage: /confirm <email> <code>")
			return true
		}
		creds, err := a.session.ConfirmRegistration(ctx, args[0], args[1])
		if err != nil {
			a.printf("Confirmation failed: %v", err)
			return true
		}
		a.printf("Welcome %s, your account is ready", creds.Identity.DisplayName)
	case "/whoami":
		identity, ok := a.session.Current()
		if !ok {
			a.printf("Not logged in")
			return true
		}
		a.printf("%s <%s> id=%s", identity.DisplayName, identity.Email, identity.UserID)
	case "/logout":
		a.session.Logout()
		a.resetShown()
		a.printf("Logged out")
	case "/open":
		if len(args) != 1 {
			a.printf("Usage: /open <user-id>")
			return true
		}
		a.open(ctx, args[0])
	case "/history":
		conv, ok := a.board.Active()
		if !ok {
			a.printf("No open conversation")
			return true
		}
		a.mu.Lock()
		renderHistory(a.out, conv.Messages(), conv.Key().Local)
		a.mu.Unlock()
	case "/reload":
		conv, ok := a.board.Active()
		if !ok {
			a.printf("No open conversation")
			return true
		}
		if err := conv.Reload(ctx); err != nil {
			a.printf("Reload failed, showing last known messages: %v", err)
		}
		a.renderActive()
	case "/retry":
		conv, ok := a.board.Active()
		if !ok || conv.Draft() == "" {
			a.printf("Nothing to retry")
			return true
		}
		a.send(ctx, conv.Draft())
	default:
		a.printf("Unknown command %s, try /help", command)
	}
	return true
}

func (a *app) open(ctx context.Context, remote string) {
	identity, ok := a.session.Current()
	if !ok {
		a.printf("Log in first")
		return
	}
	a.board.SetIdentity(identity.UserID)
	a.resetShown()
	conv, err := a.board.Switch(ctx, remote)
	switch {
	case conv == nil:
		a.printf("Cannot open conversation: %v", err)
		return
	case err != nil:
		a.printf("Conversation opened with problems: %v", err)
	default:
		a.printf("Conversation with %s", remote)
	}
	a.renderActive()
}

func (a *app) send(ctx context.Context, content string) {
	conv, ok := a.board.Active()
	if !ok {
		a.printf("Open a conversation first with /open <user-id>")
		return
	}
	err := conv.Send(ctx, content)
	var sendErr *errors.SendError
	switch {
	case err == nil:
	case stderrors.As(err, &sendErr):
		a.printf("Not sent (%v). Use /retry to send %q again.", sendErr.Err, sendErr.Content)
	default:
		a.printf("Not sent: %v", err)
	}
	a.renderActive()
}

// renderActive prints the confirmed messages of the open conversation not shown yet.
func (a *app) renderActive() {
	conv, ok := a.board.Active()
	if !ok {
		return
	}
	local := conv.Key().Local
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range conv.Messages() {
		if m.Pending {
			continue
		}
		if _, done := a.shown[m.ID]; done {
			continue
		}
		a.shown[m.ID] = struct{}{}
		fmt.Fprintln(a.out, formatMessage(m, local))
	}
}

func (a *app) resetShown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shown = make(map[string]struct{})
}
