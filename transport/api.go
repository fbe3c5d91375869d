//go:generate go run go.uber.org/mock/mockgen -source=api.go -destination=../mocks/mock_transport.go -package=mocks
package transport

import (
	"chat-client/domain"
	"context"
)

// AuthAPI is the identity boundary of the remote service.
type AuthAPI interface {
	// Verify reports whether the remote service currently accepts the bearer token.
	// A rejected token is (false, nil); an error means the answer is unknown.
	Verify(ctx context.Context, accessToken string) (bool, error)

	// Refresh exchanges a refresh token for a new access token bound to the same user.
	Refresh(ctx context.Context, refreshToken string) (RefreshResult, error)

	Login(ctx context.Context, email, password string) (domain.Credentials, error)

	// Register starts a registration; the account is usable once confirmed.
	Register(ctx context.Context, email, username, password string) error

	// ConfirmRegistration completes a registration with the emailed one-time code.
	ConfirmRegistration(ctx context.Context, email, code string) (domain.Credentials, error)
}

// RefreshResult is the outcome of a successful token refresh.
// UserID is empty when the service does not echo the owner of the token.
type RefreshResult struct {
	AccessToken string
	UserID      string
}

// MessageAPI is the message boundary of the remote service.
type MessageAPI interface {
	// FetchConversation returns every confirmed message between the two users.
	FetchConversation(ctx context.Context, local, remote string) ([]domain.Message, error)

	// Send submits a message for moderation and persistence and returns the confirmed message.
	Send(ctx context.Context, sender, recipient, content string) (domain.Message, error)
}

// PushDialer opens the push channel of one identity.
type PushDialer interface {
	Subscribe(ctx context.Context, userID string) (Subscription, error)
}

// Subscription is an open push channel.
// Frames yields raw payloads in arrival order and is closed when the channel ends.
// Once Close returns, no further frame is delivered.
type Subscription interface {
	Frames() <-chan []byte
	Close() error
}

// TokenSource provides the bearer token attached to authenticated requests.
type TokenSource interface {
	Token(ctx context.Context) (string, bool)
}
