package devserver

import (
	"strings"
	"sync"

	"github.com/freelago/chatkit/internal/domain"
	"github.com/freelago/chatkit/internal/transport/rest"
)

// ServiceRequest records a POST /services side action.
type ServiceRequest struct {
	UserID       string `json:"user_id"`
	FreelancerID string `json:"freelancer_id"`
	Status       string `json:"status"`
}

// memStore is the dev server's in-memory system of record. Conversations
// are keyed by "userID|freelancerID"; messages are kept oldest first.
type memStore struct {
	mu       sync.Mutex
	history  map[string][]domain.RawMessage
	names    map[string]string
	services []ServiceRequest
}

func newMemStore() *memStore {
	return &memStore{
		history: make(map[string][]domain.RawMessage),
		names:   make(map[string]string),
	}
}

func convKey(userID, freelaID string) string {
	return userID + "|" + freelaID
}

func (m *memStore) appendMessage(userID, freelaID string, raw domain.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := convKey(userID, freelaID)
	m.history[key] = append(m.history[key], raw)
}

func (m *memStore) messages(userID, freelaID string) []domain.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.history[convKey(userID, freelaID)]
	out := make([]domain.RawMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (m *memStore) setName(partyID, name string) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[partyID] = name
}

// chatList builds the conversation list for one party: the latest message
// ID plus the other participant per conversation the party is in.
func (m *memStore) chatList(partyID string, listForUser bool) []rest.ChatListItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]rest.ChatListItem, 0)
	for key, msgs := range m.history {
		if len(msgs) == 0 {
			continue
		}
		userID, freelaID, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}

		var other string
		if listForUser {
			if userID != partyID {
				continue
			}
			other = freelaID
		} else {
			if freelaID != partyID {
				continue
			}
			other = userID
		}

		name := m.names[other]
		if name == "" {
			name = other
		}
		items = append(items, rest.ChatListItem{
			ID:         msgs[len(msgs)-1].ID,
			ReceiverID: other,
			UserName:   name,
		})
	}
	return items
}

func (m *memStore) addService(req ServiceRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, req)
}
