package ws

import (
	"encoding/json"

	"github.com/freelago/chatkit/internal/domain"
)

// Event types - client → server
const (
	EventTypeSendMessage = "send_message"
)

// Event types - server → client
const (
	EventTypeReceiveMessage = "receive_message"
	EventTypeError          = "error"
)

// Event is the envelope for all channel traffic.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendPayload is the outbound send_message body. The sender's kind travels
// as a flag so the server can populate the right kind-specific column.
type SendPayload struct {
	Content        string `json:"content"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	SenderIsFreela bool   `json:"senderIsFreela"`
}

// ReceivePayload is the inbound receive_message body: a raw wire message,
// exactly as the history endpoint would return it.
type ReceivePayload = domain.RawMessage

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent wraps a payload in an envelope.
func NewEvent(eventType string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, Payload: data}, nil
}
