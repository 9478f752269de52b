package domain

// RawMessage is the wire shape returned by the history endpoint and carried
// by realtime events. The backend expresses each side of the conversation as
// one of two mutually exclusive kind-specific fields; exactly one of each
// pair is expected to be set per message.
type RawMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`

	SenderUserID     *string `json:"senderUserId,omitempty"`
	SenderFreelaID   *string `json:"senderFreelaId,omitempty"`
	ReceiverUserID   *string `json:"receiverUserId,omitempty"`
	ReceiverFreelaID *string `json:"receiverFreelaId,omitempty"`
}

// Message is the canonical, kind-agnostic representation used everywhere
// past normalization. CreatedAt is the server-assigned RFC 3339 timestamp,
// passed through untouched.
type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
}

// Own reports whether the message was sent by the viewing party.
func (m Message) Own(viewerID string) bool {
	return m.SenderID == viewerID
}
