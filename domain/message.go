// Package domain contains core concepts of the chat client.
// This file defines Message values as observed by the client and
// the moderation verdict attached to them by the remote service.
package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the moderation verdict assigned by the remote service.
// The client stores it verbatim and never interprets it.
type Status string

const (
	StatusAllowed Status = "allowed"
	StatusFlagged Status = "flagged"
	StatusBlocked Status = "blocked"
)

func (s Status) Known() bool {
	switch s {
	case StatusAllowed, StatusFlagged, StatusBlocked:
		return true
	}
	return false
}

// PendingPrefix marks client-generated placeholder identifiers.
const PendingPrefix = "pending-"

// Analysis is the structured classifier output attached to some messages.
type Analysis struct {
	SpamProbability     float64 `json:"spam_probability"`
	ToxicityProbability float64 `json:"toxicity_probability"`
	Confidence          float64 `json:"confidence"`
	Classification      string  `json:"classification"`
}

// Message is a chat message in a conversation view.
// Every field except Pending is assigned by the remote service.
// Pending is true for a local placeholder that has not been confirmed yet.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	CreatedAt   time.Time
	Status      Status
	RiskScore   *float64
	FuzzyScore  *float64
	Details     json.RawMessage
	Analysis    *Analysis
	Pending     bool
}

// Confirmed reports whether the message carries a durable server identifier.
func (m Message) Confirmed() bool {
	return !m.Pending && m.ID != ""
}

// NewPendingMessage builds the optimistic placeholder shown while a send is in flight.
// The identifier is random so two sends with equal content never collapse.
func NewPendingMessage(key ConversationKey, content string, now time.Time) Message {
	return Message{
		ID:          PendingPrefix + uuid.NewString(),
		SenderID:    key.Local,
		RecipientID: key.Remote,
		Content:     content,
		CreatedAt:   now.UTC(),
		Pending:     true,
	}
}

// IsBlank reports whether content has nothing to send once trimmed.
func IsBlank(content string) bool {
	return strings.TrimSpace(content) == ""
}
