package transport

import (
	"bytes"
	"chat-client/domain"
	"chat-client/errors"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventNewMessage is the only push event type carrying a message.
const EventNewMessage = "new_message"

// WireMessage is the JSON shape of a message exchanged with the remote service.
type WireMessage struct {
	ID           string           `json:"id"`
	SenderID     string           `json:"sender_id"`
	RecipientID  string           `json:"recipient_id,omitempty"`
	ReceiverID   string           `json:"receiver_id,omitempty"`
	Content      string           `json:"content"`
	Status       string           `json:"status"`
	CreatedAt    string           `json:"created_at"`
	AIScore      *float64         `json:"ai_score,omitempty"`
	FuzzyScore   *float64         `json:"fuzzy_score,omitempty"`
	FuzzyDetails json.RawMessage  `json:"fuzzy_details,omitempty"`
	AIAnalysis   *domain.Analysis `json:"ai_analysis,omitempty"`
}

// PushEnvelope wraps messages delivered on the push channel.
type PushEnvelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

// The service emits naive UTC timestamps; zoned ones are accepted too.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// DecodeMessage converts one wire message into a confirmed domain message.
func DecodeMessage(raw []byte) (domain.Message, error) {
	var w WireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	return w.ToDomain()
}

// DecodePush extracts the message from a push frame.
// A bare message object without envelope is accepted as well.
func DecodePush(raw []byte) (domain.Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.Message{}, fmt.Errorf("%w: not a JSON object", errors.ErrMalformedPayload)
	}
	var envelope PushEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	switch {
	case envelope.Type == "" && envelope.Message == nil:
		return DecodeMessage(trimmed)
	case envelope.Type != EventNewMessage:
		return domain.Message{}, fmt.Errorf("%w: unsupported event %q", errors.ErrMalformedPayload, envelope.Type)
	case envelope.Message == nil:
		return domain.Message{}, fmt.Errorf("%w: event without message", errors.ErrMalformedPayload)
	}
	return DecodeMessage(envelope.Message)
}

// EncodePush builds the push frame for a message.
func EncodePush(m domain.Message) ([]byte, error) {
	body, err := json.Marshal(FromDomain(m))
	if err != nil {
		return nil, err
	}
	return json.Marshal(PushEnvelope{Type: EventNewMessage, Message: body})
}

func (w WireMessage) ToDomain() (domain.Message, error) {
	recipient := w.RecipientID
	if recipient == "" {
		recipient = w.ReceiverID
	}
	if w.ID == "" || w.SenderID == "" || recipient == "" {
		return domain.Message{}, fmt.Errorf("%w: message requires id, sender and recipient", errors.ErrMalformedPayload)
	}
	if strings.HasPrefix(w.ID, domain.PendingPrefix) {
		return domain.Message{}, fmt.Errorf("%w: placeholder id %q from remote", errors.ErrMalformedPayload, w.ID)
	}
	createdAt, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err)
	}
	var details json.RawMessage
	if len(w.FuzzyDetails) > 0 && string(w.FuzzyDetails) != "null" {
		details = w.FuzzyDetails
	}
	return domain.Message{
		ID:          w.ID,
		SenderID:    w.SenderID,
		RecipientID: recipient,
		Content:     w.Content,
		CreatedAt:   createdAt,
		Status:      domain.Status(w.Status),
		RiskScore:   w.AIScore,
		FuzzyScore:  w.FuzzyScore,
		Details:     details,
		Analysis:    w.AIAnalysis,
	}, nil
}

func FromDomain(m domain.Message) WireMessage {
	return WireMessage{
		ID:           m.ID,
		SenderID:     m.SenderID,
		RecipientID:  m.RecipientID,
		Content:      m.Content,
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339Nano),
		AIScore:      m.RiskScore,
		FuzzyScore:   m.FuzzyScore,
		FuzzyDetails: m.Details,
		AIAnalysis:   m.Analysis,
	}
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", value)
}
