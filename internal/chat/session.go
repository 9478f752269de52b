package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/freelago/chatkit/internal/domain"
)

// State is the session lifecycle. Transitions are one-directional; retrying
// after Error or Closed means constructing a fresh Session.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
	StateClosed  State = "closed"
)

var (
	ErrMissingParty   = errors.New("chat session requires both party identifiers")
	ErrAlreadyStarted = errors.New("chat session already started")
)

// HistoryLoader fetches the persisted message history for a conversation.
type HistoryLoader interface {
	History(ctx context.Context, self domain.Party, peerID string) ([]domain.RawMessage, error)
}

// ServiceRequester submits the service-request side action shown in the
// chat screen. It shares the session's party identities but is otherwise
// unrelated to messaging.
type ServiceRequester interface {
	RequestService(ctx context.Context, userID, freelancerID string) error
}

// Channel is the live connection owned by one session at a time.
type Channel interface {
	Send(ctx context.Context, content string, sender domain.Party, receiverID string) error
	Close()
}

// Dialer opens the realtime channel. The session supplies the inbound and
// connection-loss callbacks; the implementation carries endpoint and
// credential.
type Dialer func(ctx context.Context, onMessage func(domain.RawMessage), onClose func(error)) (Channel, error)

// Config wires a session to its collaborators.
type Config struct {
	Credential domain.Credential
	PeerID     string

	History  HistoryLoader
	Services ServiceRequester
	Dial     Dialer

	// OnMessage is invoked for every message appended from the live
	// channel, after filtering. Optional.
	OnMessage func(domain.Message)
	// OnHistoryError is invoked exactly once if the history load fails.
	// The session continues degraded: the store stays empty but the live
	// channel keeps working. Optional.
	OnHistoryError func(error)
	// OnDisconnect is invoked when the channel connection is lost or could
	// not be established. Optional.
	OnDisconnect func()

	Log *zap.SugaredLogger
}

// Session orchestrates history load, the realtime channel and the store for
// one open conversation. It is bound to the conversation's lifetime: Start
// on entry, Close on exit.
type Session struct {
	cfg  Config
	self domain.Party
	conv domain.Conversation
	log  *zap.SugaredLogger

	store *Store

	mu            sync.Mutex
	state         State
	channel       Channel
	historyFailed bool
	cancel        context.CancelFunc
}

func NewSession(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	self := cfg.Credential.Party()
	return &Session{
		cfg:   cfg,
		self:  self,
		conv:  domain.NewConversation(self.ID, cfg.PeerID),
		log:   log,
		store: NewStore(),
		state: StateIdle,
	}
}

// Start validates the party identifiers and kicks off the history load and
// the channel dial concurrently. It returns immediately; completion is
// observable via State and the callbacks.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.self.ID == "" || s.cfg.PeerID == "" || !s.self.Kind.Valid() {
		s.state = StateError
		s.mu.Unlock()
		return ErrMissingParty
	}
	s.state = StateLoading
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.loadHistory(ctx)
	go s.connect(ctx)
	return nil
}

func (s *Session) loadHistory(ctx context.Context) {
	raws, err := s.cfg.History.History(ctx, s.self, s.cfg.PeerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		// Late response after teardown.
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warnw("history load failed", "peer", s.cfg.PeerID, "error", err)
		s.historyFailed = true
		s.store.Seed(nil)
		s.state = StateReady
		if s.cfg.OnHistoryError != nil {
			go s.cfg.OnHistoryError(err)
		}
		return
	}

	batch := make([]domain.Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := Normalize(raw)
		if err != nil {
			s.log.Warnw("dropping malformed history message", "id", raw.ID, "error", err)
			continue
		}
		batch = append(batch, msg)
	}
	s.store.Seed(batch)
	s.state = StateReady
}

func (s *Session) connect(ctx context.Context) {
	ch, err := s.cfg.Dial(ctx, s.handleInbound, s.handleDisconnect)

	s.mu.Lock()
	if err != nil {
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		s.log.Warnw("channel connect failed", "error", err)
		if s.cfg.OnDisconnect != nil {
			s.cfg.OnDisconnect()
		}
		return
	}
	if s.state == StateClosed {
		// Teardown raced the dial.
		s.mu.Unlock()
		ch.Close()
		return
	}
	s.channel = ch
	s.mu.Unlock()
}

// handleInbound normalizes, filters and appends one live event. The channel
// delivers events for every conversation the authenticated party is in;
// anything outside this session's pair is dropped silently.
func (s *Session) handleInbound(raw domain.RawMessage) {
	msg, err := Normalize(raw)
	if err != nil {
		s.log.Warnw("dropping malformed channel message", "id", raw.ID, "error", err)
		return
	}
	if !s.conv.Contains(msg.SenderID, msg.ReceiverID) {
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.store.Append(msg)
	s.mu.Unlock()

	if s.cfg.OnMessage != nil {
		s.cfg.OnMessage(msg)
	}
}

func (s *Session) handleDisconnect(err error) {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.channel = nil
	s.mu.Unlock()
	if closed {
		return
	}
	if err != nil {
		s.log.Warnw("channel connection lost", "error", err)
	}
	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect()
	}
}

// Send emits one outbound message. Valid only in Ready with an open
// channel; empty or whitespace-only content is a silent no-op. The message
// is not appended locally, the server echo is the single source of truth.
func (s *Session) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)

	s.mu.Lock()
	if content == "" || s.state != StateReady || s.channel == nil {
		s.mu.Unlock()
		return nil
	}
	ch := s.channel
	s.mu.Unlock()

	return ch.Send(ctx, content, s.self, s.cfg.PeerID)
}

// RequestService submits a service request between the conversation's user
// and freelancer, resolving which ID plays which role from the viewer's
// kind.
func (s *Session) RequestService(ctx context.Context) error {
	if s.cfg.Services == nil {
		return errors.New("no service API configured")
	}
	userID, freelancerID := s.self.ID, s.cfg.PeerID
	if s.self.Kind == domain.PartyKindFreelancer {
		userID, freelancerID = s.cfg.PeerID, s.self.ID
	}
	return s.cfg.Services.RequestService(ctx, userID, freelancerID)
}

// Messages returns a snapshot of the conversation so far.
func (s *Session) Messages() []domain.Message {
	return s.store.Messages()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HistoryFailed reports whether the history load failed for this session.
func (s *Session) HistoryFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyFailed
}

// Self returns the viewing party.
func (s *Session) Self() domain.Party {
	return s.self
}

// Close tears the session down: the in-flight history response is
// abandoned, the channel is closed and further appends are refused. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	ch := s.channel
	s.channel = nil
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
	}
}
