package domain

// Conversation identifies a chat by the unordered pair of its participant
// IDs. A message belongs to the conversation if its sender/receiver pair
// matches in either direction.
type Conversation struct {
	A string
	B string
}

func NewConversation(a, b string) Conversation {
	return Conversation{A: a, B: b}
}

// Contains is the membership predicate applied to every inbound message:
// the realtime channel is not scoped per conversation server-side, so the
// client filters.
func (c Conversation) Contains(senderID, receiverID string) bool {
	return (senderID == c.A && receiverID == c.B) ||
		(senderID == c.B && receiverID == c.A)
}
