package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freelago/chatkit/internal/domain"
)

type fakeHistory struct {
	msgs    []domain.RawMessage
	err     error
	release chan struct{} // when non-nil, the call blocks until closed
}

func (f *fakeHistory) History(ctx context.Context, _ domain.Party, _ string) ([]domain.RawMessage, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.msgs, f.err
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []string
	closed int
}

func (f *fakeChannel) Send(_ context.Context, content string, _ domain.Party, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeChannel) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// dialerCapture hands the session a fake channel and captures the inbound
// callback so tests can inject live events.
type dialerCapture struct {
	ch        *fakeChannel
	onMessage func(domain.RawMessage)
	connected chan struct{}
}

func newDialerCapture() *dialerCapture {
	return &dialerCapture{ch: &fakeChannel{}, connected: make(chan struct{})}
}

func (d *dialerCapture) dial(_ context.Context, onMessage func(domain.RawMessage), _ func(error)) (Channel, error) {
	d.onMessage = onMessage
	close(d.connected)
	return d.ch, nil
}

func userCred() domain.Credential {
	return domain.Credential{ID: "U1", Token: "tok", Kind: domain.PartyKindUser}
}

func waitConnected(t *testing.T, d *dialerCapture) {
	t.Helper()
	select {
	case <-d.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("channel never connected")
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionStartRequiresBothParties(t *testing.T) {
	s := NewSession(Config{
		Credential: userCred(),
		PeerID:     "",
		History:    &fakeHistory{},
		Dial:       newDialerCapture().dial,
	})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrMissingParty)
	assert.Equal(t, StateError, s.State())
}

func TestSessionStartRejectsUnknownKind(t *testing.T) {
	cred := userCred()
	cred.Kind = "admin"
	s := NewSession(Config{
		Credential: cred,
		PeerID:     "F1",
		History:    &fakeHistory{},
		Dial:       newDialerCapture().dial,
	})

	assert.ErrorIs(t, s.Start(context.Background()), ErrMissingParty)
}

func TestSessionSeedsHistory(t *testing.T) {
	hist := &fakeHistory{msgs: []domain.RawMessage{
		{ID: "1", Content: "hi", CreatedAt: "2024-01-01T10:00:00Z", SenderUserID: strPtr("U1"), ReceiverFreelaID: strPtr("F1")},
		{ID: "2", Content: "hello", CreatedAt: "2024-01-01T10:01:00Z", SenderFreelaID: strPtr("F1"), ReceiverUserID: strPtr("U1")},
	}}
	d := newDialerCapture()
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: hist, Dial: d.dial})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateReady)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "U1", msgs[0].SenderID)
	assert.True(t, msgs[0].Own("U1"))
	assert.Equal(t, "F1", msgs[1].SenderID)
	assert.False(t, msgs[1].Own("U1"))
	assert.False(t, s.HistoryFailed())
}

func TestSessionDropsMalformedHistoryMessages(t *testing.T) {
	hist := &fakeHistory{msgs: []domain.RawMessage{
		{ID: "bad", Content: "x"}, // no identities at all
		{ID: "ok", Content: "y", SenderUserID: strPtr("U1"), ReceiverFreelaID: strPtr("F1")},
	}}
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: hist, Dial: newDialerCapture().dial})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateReady)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", msgs[0].ID)
}

func TestSessionFiltersInboundByConversation(t *testing.T) {
	d := newDialerCapture()
	var delivered atomic.Int32
	s := NewSession(Config{
		Credential: userCred(),
		PeerID:     "F1",
		History:    &fakeHistory{},
		Dial:       d.dial,
		OnMessage:  func(domain.Message) { delivered.Add(1) },
	})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateReady)
	waitConnected(t, d)

	// Another conversation of the same freelancer: dropped silently.
	d.onMessage(domain.RawMessage{ID: "x", Content: "not for us", SenderUserID: strPtr("U2"), ReceiverFreelaID: strPtr("F1")})
	assert.Empty(t, s.Messages())

	// Malformed event: dropped, no panic.
	d.onMessage(domain.RawMessage{ID: "y", Content: "no identities"})
	assert.Empty(t, s.Messages())

	// Peer replies: appended.
	d.onMessage(domain.RawMessage{ID: "z", Content: "for us", SenderFreelaID: strPtr("F1"), ReceiverUserID: strPtr("U1")})
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "z", msgs[0].ID)
	assert.Equal(t, int32(1), delivered.Load())
}

func TestSessionSendIgnoresEmptyContent(t *testing.T) {
	d := newDialerCapture()
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: &fakeHistory{}, Dial: d.dial})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateReady)
	waitConnected(t, d)

	require.NoError(t, s.Send(context.Background(), ""))
	require.NoError(t, s.Send(context.Background(), "   \t\n"))
	assert.Empty(t, d.ch.sentMessages())
	assert.Empty(t, s.Messages(), "no optimistic append")

	require.NoError(t, s.Send(context.Background(), "  hello  "))
	assert.Equal(t, []string{"hello"}, d.ch.sentMessages())
	assert.Empty(t, s.Messages(), "sent messages arrive only via server echo")
}

func TestSessionSendBeforeReadyIsNoop(t *testing.T) {
	hist := &fakeHistory{release: make(chan struct{})}
	d := newDialerCapture()
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: hist, Dial: d.dial})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	waitConnected(t, d)

	require.NoError(t, s.Send(context.Background(), "too early"))
	assert.Empty(t, d.ch.sentMessages())

	close(hist.release)
	waitState(t, s, StateReady)
}

func TestSessionHistoryFailureDegradesGracefully(t *testing.T) {
	hist := &fakeHistory{err: errors.New("boom")}
	d := newDialerCapture()
	var failures atomic.Int32
	s := NewSession(Config{
		Credential:     userCred(),
		PeerID:         "F1",
		History:        hist,
		Dial:           d.dial,
		OnHistoryError: func(error) { failures.Add(1) },
	})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	waitState(t, s, StateReady)
	waitConnected(t, d)

	require.Eventually(t, func() bool { return failures.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.HistoryFailed())
	assert.Empty(t, s.Messages())

	// The live channel still works despite the missing history.
	d.onMessage(domain.RawMessage{ID: "1", Content: "still alive", SenderFreelaID: strPtr("F1"), ReceiverUserID: strPtr("U1")})
	require.Len(t, s.Messages(), 1)
	require.NoError(t, s.Send(context.Background(), "me too"))
	assert.Equal(t, []string{"me too"}, d.ch.sentMessages())
}

func TestSessionTeardownIsIdempotent(t *testing.T) {
	hist := &fakeHistory{
		msgs:    []domain.RawMessage{{ID: "1", Content: "late", SenderUserID: strPtr("U1"), ReceiverFreelaID: strPtr("F1")}},
		release: make(chan struct{}),
	}
	d := newDialerCapture()
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: hist, Dial: d.dial})

	require.NoError(t, s.Start(context.Background()))
	waitConnected(t, d)

	s.Close()
	s.Close()
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, d.ch.closeCount())

	// The history response resolves after teardown and must be discarded.
	close(hist.release)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.Messages())
	assert.Equal(t, StateClosed, s.State())

	// A straggling channel event after teardown must not append.
	d.onMessage(domain.RawMessage{ID: "2", Content: "ghost", SenderFreelaID: strPtr("F1"), ReceiverUserID: strPtr("U1")})
	assert.Empty(t, s.Messages())
}

func TestSessionCloseRacingDial(t *testing.T) {
	release := make(chan struct{})
	ch := &fakeChannel{}
	dial := func(ctx context.Context, _ func(domain.RawMessage), _ func(error)) (Channel, error) {
		<-release
		return ch, nil
	}
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: &fakeHistory{}, Dial: dial})

	require.NoError(t, s.Start(context.Background()))
	s.Close()
	close(release)

	// The channel that arrived after teardown gets closed, not adopted.
	require.Eventually(t, func() bool { return ch.closeCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionStartTwice(t *testing.T) {
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: &fakeHistory{}, Dial: newDialerCapture().dial})
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestSessionRequestServiceResolvesRoles(t *testing.T) {
	var gotUser, gotFreela string
	svc := serviceFunc(func(_ context.Context, userID, freelancerID string) error {
		gotUser, gotFreela = userID, freelancerID
		return nil
	})

	// User viewer: self is the user.
	s := NewSession(Config{Credential: userCred(), PeerID: "F1", History: &fakeHistory{}, Dial: newDialerCapture().dial, Services: svc})
	require.NoError(t, s.RequestService(context.Background()))
	assert.Equal(t, "U1", gotUser)
	assert.Equal(t, "F1", gotFreela)

	// Freelancer viewer: roles swap.
	cred := domain.Credential{ID: "F1", Token: "tok", Kind: domain.PartyKindFreelancer}
	s2 := NewSession(Config{Credential: cred, PeerID: "U1", History: &fakeHistory{}, Dial: newDialerCapture().dial, Services: svc})
	require.NoError(t, s2.RequestService(context.Background()))
	assert.Equal(t, "U1", gotUser)
	assert.Equal(t, "F1", gotFreela)
}

type serviceFunc func(ctx context.Context, userID, freelancerID string) error

func (f serviceFunc) RequestService(ctx context.Context, userID, freelancerID string) error {
	return f(ctx, userID, freelancerID)
}
