// Package projection builds the local view of one conversation.
// Handles ordering, deduplication by server id and optimistic placeholders.
// Does not talk to the network or to the UI directly.
package projection

import (
	"chat-client/domain"

	"github.com/samber/lo"
)

// Timeline holds the ordered messages of one conversation.
// It is not safe for concurrent use; the owner serializes access.
type Timeline struct {
	Key      domain.ConversationKey
	messages []domain.Message
	ids      map[string]struct{}
}

func NewTimeline(key domain.ConversationKey) *Timeline {
	return &Timeline{
		Key: key,
		ids: make(map[string]struct{}),
	}
}

// Replace installs a bulk-fetch result in the order received.
// Confirmed messages already present but missing from the fetch are kept after it,
// followed by every pending placeholder. Duplicates are dropped, first write wins.
func (t *Timeline) Replace(fetched []domain.Message) {
	next := make([]domain.Message, 0, len(fetched)+len(t.messages))
	seen := make(map[string]struct{}, len(fetched)+len(t.messages))
	add := func(m domain.Message) {
		if _, dup := seen[m.ID]; dup {
			return
		}
		seen[m.ID] = struct{}{}
		next = append(next, m)
	}

	for _, m := range fetched {
		if m.ID == "" || m.Pending {
			continue
		}
		add(m)
	}
	confirmed, pending := lo.FilterReject(t.messages, func(m domain.Message, _ int) bool {
		return !m.Pending
	})
	lo.ForEach(confirmed, func(m domain.Message, _ int) { add(m) })
	lo.ForEach(pending, func(m domain.Message, _ int) { add(m) })

	t.messages = next
	t.ids = seen
}

// MergeConfirmed appends a server-confirmed message unless its id is already in the view.
// It reports whether the view changed.
func (t *Timeline) MergeConfirmed(m domain.Message) bool {
	if m.ID == "" || m.Pending || t.Contains(m.ID) {
		return false
	}
	t.append(m)
	return true
}

// AddPending appends a local placeholder.
func (t *Timeline) AddPending(m domain.Message) {
	m.Pending = true
	if t.Contains(m.ID) {
		return
	}
	t.append(m)
}

// RemovePending drops the placeholder with the given id. Confirmed messages are never removed.
func (t *Timeline) RemovePending(id string) bool {
	_, index, found := lo.FindIndexOf(t.messages, func(m domain.Message) bool {
		return m.Pending && m.ID == id
	})
	if !found {
		return false
	}
	t.messages = append(t.messages[:index], t.messages[index+1:]...)
	delete(t.ids, id)
	return true
}

// Messages returns a copy of the view.
func (t *Timeline) Messages() []domain.Message {
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) PendingCount() int {
	return lo.CountBy(t.messages, func(m domain.Message) bool { return m.Pending })
}

func (t *Timeline) Len() int {
	return len(t.messages)
}

func (t *Timeline) Contains(id string) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *Timeline) append(m domain.Message) {
	t.messages = append(t.messages, m)
	t.ids[m.ID] = struct{}{}
}
