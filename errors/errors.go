package errors

import "fmt"

var (
	ErrAuthentication        = fmt.Errorf("authentication rejected")
	ErrTransport             = fmt.Errorf("remote service unreachable")
	ErrMalformedPayload      = fmt.Errorf("malformed push payload")
	ErrConversationClosed    = fmt.Errorf("conversation is closed")
	ErrNotOpened             = fmt.Errorf("conversation has not been opened")
	ErrIncompleteCredentials = fmt.Errorf("credential set is incomplete")
	ErrInvalidRequest        = fmt.Errorf("invalid request")
	ErrNoIdentity            = fmt.Errorf("no authenticated identity")
	ErrWorkerPanic           = fmt.Errorf("worker panic")
)

// SendError is returned when a message could not be delivered to the remote service.
// Content holds the text the user typed so it can be offered again for retry.
type SendError struct {
	Content string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
