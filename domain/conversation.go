package domain

// ConversationKey identifies the conversation between the local identity and one remote user.
type ConversationKey struct {
	Local  string
	Remote string
}

// Involves reports whether the message was exchanged between exactly these two users,
// in either direction.
func (k ConversationKey) Involves(m Message) bool {
	return (m.SenderID == k.Local && m.RecipientID == k.Remote) ||
		(m.SenderID == k.Remote && m.RecipientID == k.Local)
}

func (k ConversationKey) Valid() bool {
	return k.Local != "" && k.Remote != ""
}
