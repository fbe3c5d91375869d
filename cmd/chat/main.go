package main

import (
	"bufio"
	"chat-client/conversation"
	"chat-client/internal"
	"chat-client/observability"
	"chat-client/runtime/workers"
	"chat-client/session"
	"chat-client/storage"
	"chat-client/transport"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the chat client.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat client terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Durable credential store
	store, err := storage.OpenBadgerStore(config.BadgerFilepath, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("credential store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Closing credential store failed", "error", err)
		}
	}()

	// 3. Remote boundary. Auth routes carry their tokens explicitly, message routes
	// read the current access token from the session.
	httpClient := &http.Client{Timeout: config.RequestTimeout}
	authAPI, err := transport.NewHTTPClient(transport.HTTPConfig{BaseURL: config.ServerURL, HTTPClient: httpClient, Logger: logger})
	if err != nil {
		return exitConfig, err
	}
	manager := session.NewManager(store, authAPI, logger)

	messageAPI, err := transport.NewHTTPClient(transport.HTTPConfig{
		BaseURL:    config.ServerURL,
		HTTPClient: httpClient,
		Tokens:     manager,
		Logger:     logger,
	})
	if err != nil {
		return exitConfig, err
	}
	dialer, err := transport.NewWebSocketDialer(transport.WebSocketConfig{
		BaseURL:     config.PushBaseURL(),
		Dialer:      &websocket.Dialer{HandshakeTimeout: config.RequestTimeout},
		Tokens:      manager,
		FrameBuffer: config.FrameBuffer,
		Logger:      logger,
	})
	if err != nil {
		return exitConfig, err
	}

	// 4. Conversations follow the session
	stats := observability.NewSyncStats()
	board := conversation.NewSwitchboard(messageAPI, dialer, logger,
		conversation.WithStats(stats),
		conversation.WithRefetchOnSend(config.RefetchOnSend),
	)
	manager.OnChange(board.OnSessionChange)
	defer board.Close()

	chat := newApp(manager, board, logger, os.Stdout)

	if creds, ok := manager.AutoLogin(ctx); ok {
		board.SetIdentity(creds.Identity.UserID)
		chat.printf("Welcome back %s. Type /help for commands.", creds.Identity.DisplayName)
	} else {
		chat.printf("Not logged in. Use /login <email> <password> or /register <email> <username> <password>.")
	}

	// 5. Background workers
	supervisor := workers.NewSupervisor(logger).Add(
		workers.NewKeepaliveWorker(manager, config.RefreshLead, config.KeepaliveInterval, logger, func() {
			chat.printf("Your session expired. Please /login again.")
		}),
	)
	if config.StatsInterval > 0 {
		supervisor.Add(workers.NewReporterWorker(stats, config.StatsInterval, logger))
	} else {
		defer stats.LogSummary(logger)
	}
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(ctx)
	}()
	defer func() {
		supervisor.Stop()
		<-supervisorDone
	}()

	// 6. Interactive loop
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var updates <-chan struct{}
		if conv, ok := board.Active(); ok {
			updates = conv.Updates()
		}
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok || !chat.handle(ctx, line) {
				return exitOK, nil
			}
		case _, ok := <-updates:
			if !ok {
				board.Close()
				continue
			}
			chat.renderActive()
		}
	}
}
