package chat

import (
	"sync"

	"github.com/freelago/chatkit/internal/domain"
)

// Store holds the message sequence for exactly one conversation. Insertion
// order is arrival order: the history batch first, live arrivals after.
//
// History load and channel connect run concurrently with no ordering
// barrier, so a live message can land before the history batch resolves.
// Appends that arrive before Seed are buffered and replayed after the
// seeded batch, keeping history strictly first. Seed is called exactly once
// per session (with nil on history failure, which flushes the buffer).
type Store struct {
	mu       sync.Mutex
	seeded   bool
	messages []domain.Message
	pending  []domain.Message
}

func NewStore() *Store {
	return &Store{}
}

// Seed installs the history batch in server-returned order, then replays
// any live arrivals buffered while the load was in flight. A second Seed is
// ignored.
func (s *Store) Seed(batch []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return
	}
	s.messages = make([]domain.Message, 0, len(batch)+len(s.pending))
	s.messages = append(s.messages, batch...)
	s.messages = append(s.messages, s.pending...)
	s.pending = nil
	s.seeded = true
}

// Append adds one message to the end of the sequence. No deduplication is
// performed; the server echo is the single source of truth for sends.
func (s *Store) Append(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seeded {
		s.pending = append(s.pending, msg)
		return
	}
	s.messages = append(s.messages, msg)
}

// Messages returns a snapshot copy of the current sequence. Buffered
// arrivals are included at the tail so the caller sees live traffic even
// while history is still loading.
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, 0, len(s.messages)+len(s.pending))
	out = append(out, s.messages...)
	out = append(out, s.pending...)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages) + len(s.pending)
}
