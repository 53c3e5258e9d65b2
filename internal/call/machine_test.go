package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjarsyn/models"
)

// ============================================================
// FAKES
// ============================================================

type fakeSignaler struct {
	mu   sync.Mutex
	sent []models.SignalingMessage
	err  error
}

func (s *fakeSignaler) Send(msg models.SignalingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSignaler) messages() []models.SignalingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SignalingMessage(nil), s.sent...)
}

type fakeTransport struct {
	remote string

	mu           sync.Mutex
	offers       []string
	answers      []string
	candidates   []string
	samples      [][]byte
	plis         int
	pliErr       error
	acceptErr    error
	disconnected int
	onState      func(models.TransportState)
	onSample     func([]byte)
	onKeyframe   func()
}

func (t *fakeTransport) CreateOffer() (string, error) { return "offer-sdp", nil }

func (t *fakeTransport) AcceptOffer(sdp string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.acceptErr != nil {
		return "", t.acceptErr
	}
	t.offers = append(t.offers, sdp)
	return "answer-sdp", nil
}

func (t *fakeTransport) ApplyAnswer(sdp string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answers = append(t.answers, sdp)
	return nil
}

func (t *fakeTransport) AddCandidate(data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = append(t.candidates, data)
	return nil
}

func (t *fakeTransport) SendSample(data []byte, _ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, data)
	return nil
}

func (t *fakeTransport) RequestKeyframe() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.plis++
	return t.pliErr
}

func (t *fakeTransport) OnRemoteSample(fn func([]byte)) { t.onSample = fn }

func (t *fakeTransport) OnStateChange(fn func(models.TransportState)) { t.onState = fn }

func (t *fakeTransport) OnKeyframeRequest(fn func()) { t.onKeyframe = fn }

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	t.disconnected++
	t.mu.Unlock()
}

func (t *fakeTransport) pliCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.plis
}

func (t *fakeTransport) disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnected
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	err        error
}

func (f *fakeFactory) open(remote string) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{remote: remote}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

func newTestMachine(opts ...Option) (*Machine, *fakeSignaler, *fakeFactory) {
	sig := &fakeSignaler{}
	fac := &fakeFactory{}
	return NewMachine(sig, fac.open, opts...), sig, fac
}

func nextEvent(t *testing.T, m *Machine) Event {
	t.Helper()
	select {
	case ev := <-m.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

// ============================================================
// TESTS
// ============================================================

func TestIdentitySetsLocalID(t *testing.T) {
	m, _, _ := newTestMachine()

	require.NoError(t, m.HandleMessage(models.NewIdentity("me")))
	assert.Equal(t, "me", m.Snapshot().LocalID)
	assert.Equal(t, Idle, m.Snapshot().Phase)
	assert.Equal(t, Event{Kind: EventIdentity, Peer: "me"}, nextEvent(t, m))
}

func TestOfferWhileIdleAutoAnswers(t *testing.T) {
	m, sig, fac := newTestMachine()

	err := m.HandleMessage(models.SignalingMessage{From: "X", To: "me", SigType: models.SigOffer, Data: "remote-offer"})
	require.NoError(t, err)

	st := m.Snapshot()
	assert.Equal(t, "X", st.RemoteID)
	assert.Equal(t, Negotiating, st.Phase)

	tr := fac.last()
	require.NotNil(t, tr)
	assert.Equal(t, "X", tr.remote)
	assert.Equal(t, []string{"remote-offer"}, tr.offers)

	sent := sig.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, models.SigAnswer, sent[0].SigType)
	assert.Equal(t, "X", sent[0].To)
	assert.Equal(t, "answer-sdp", sent[0].Data)

	assert.Equal(t, Event{Kind: EventIncomingCall, Peer: "X"}, nextEvent(t, m))
}

func TestOfferWhileBusyIsRefused(t *testing.T) {
	m, sig, fac := newTestMachine()

	require.NoError(t, m.HandleMessage(models.SignalingMessage{From: "X", SigType: models.SigOffer, Data: "o"}))
	err := m.HandleMessage(models.SignalingMessage{From: "Y", SigType: models.SigOffer, Data: "o"})
	assert.ErrorIs(t, err, ErrBusy)

	assert.Len(t, sig.messages(), 1)
	assert.Len(t, fac.transports, 1)
	assert.Equal(t, "X", m.Snapshot().RemoteID)
}

func TestAcceptFailureResets(t *testing.T) {
	sig := &fakeSignaler{}
	tr := &fakeTransport{acceptErr: errors.New("bad sdp")}
	m := NewMachine(sig, func(string) (Transport, error) { return tr, nil })

	err := m.HandleMessage(models.SignalingMessage{From: "X", SigType: models.SigOffer, Data: "o"})
	assert.Error(t, err)
	assert.Equal(t, State{}, m.Snapshot())
	assert.Equal(t, 1, tr.disconnects())
	assert.Empty(t, sig.messages())
	assert.Equal(t, EventFailed, nextEvent(t, m).Kind)
}

func TestCallSendsOfferAndAppliesAnswer(t *testing.T) {
	m, sig, fac := newTestMachine()

	require.NoError(t, m.Call("B"))
	st := m.Snapshot()
	assert.Equal(t, "B", st.RemoteID)
	assert.Equal(t, Negotiating, st.Phase)

	sent := sig.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, models.SigOffer, sent[0].SigType)
	assert.Equal(t, "B", sent[0].To)

	// An answer from someone else is ignored.
	require.NoError(t, m.HandleMessage(models.SignalingMessage{From: "C", SigType: models.SigAnswer, Data: "nope"}))
	require.NoError(t, m.HandleMessage(models.SignalingMessage{From: "B", SigType: models.SigAnswer, Data: "answer"}))
	assert.Equal(t, []string{"answer"}, fac.last().answers)

	assert.ErrorIs(t, m.Call("C"), ErrBusy)
}

func TestCandidateNeedsTransport(t *testing.T) {
	m, _, fac := newTestMachine()

	err := m.HandleMessage(models.SignalingMessage{From: "X", SigType: models.SigCandidate, Data: "{}"})
	assert.ErrorIs(t, err, ErrNoTransport)

	require.NoError(t, m.Call("X"))
	require.NoError(t, m.HandleMessage(models.SignalingMessage{From: "X", SigType: models.SigCandidate, Data: "c1"}))
	assert.Equal(t, []string{"c1"}, fac.last().candidates)
}

func TestTransportConnectAndDisconnect(t *testing.T) {
	m, _, fac := newTestMachine(WithPLIInterval(time.Hour))

	require.NoError(t, m.Call("B"))
	assert.Equal(t, EventOutgoingCall, nextEvent(t, m).Kind)
	tr := fac.last()

	tr.onState(models.TransportConnected)
	assert.Equal(t, Connected, m.Snapshot().Phase)
	assert.Equal(t, Event{Kind: EventConnected, Peer: "B"}, nextEvent(t, m))

	tr.onState(models.TransportDisconnected)
	assert.Equal(t, State{}, m.Snapshot())
	assert.Equal(t, Event{Kind: EventDisconnected, Peer: "B"}, nextEvent(t, m))
	assert.Eventually(t, func() bool { return tr.disconnects() == 1 }, time.Second, 10*time.Millisecond)

	// Idle again: a new offer is accepted.
	require.NoError(t, m.HandleMessage(models.SignalingMessage{From: "Z", SigType: models.SigOffer, Data: "o"}))
	assert.Equal(t, "Z", m.Snapshot().RemoteID)
}

func TestDisconnectWhileNegotiatingResets(t *testing.T) {
	tests := []struct {
		name  string
		start func(m *Machine) error
		first EventKind
		peer  string
	}{
		{
			name:  "outgoing call",
			start: func(m *Machine) error { return m.Call("B") },
			first: EventOutgoingCall,
			peer:  "B",
		},
		{
			name: "auto-answered offer",
			start: func(m *Machine) error {
				return m.HandleMessage(models.SignalingMessage{From: "X", SigType: models.SigOffer, Data: "o"})
			},
			first: EventIncomingCall,
			peer:  "X",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, fac := newTestMachine(WithPLIInterval(time.Hour))
			require.NoError(t, m.HandleMessage(models.NewIdentity("me")))
			assert.Equal(t, EventIdentity, nextEvent(t, m).Kind)

			require.NoError(t, tt.start(m))
			assert.Equal(t, tt.first, nextEvent(t, m).Kind)
			require.Equal(t, Negotiating, m.Snapshot().Phase)
			tr := fac.last()

			tr.onState(models.TransportDisconnected)
			assert.Equal(t, State{LocalID: "me"}, m.Snapshot())
			assert.Equal(t, Event{Kind: EventDisconnected, Peer: tt.peer}, nextEvent(t, m))
			assert.Eventually(t, func() bool { return tr.disconnects() == 1 }, time.Second, 10*time.Millisecond)
			assert.Zero(t, tr.pliCount())

			// A late connected event from the dropped transport changes nothing.
			tr.onState(models.TransportConnected)
			assert.Equal(t, Idle, m.Snapshot().Phase)

			require.NoError(t, m.Call("C"))
			assert.Equal(t, "C", m.Snapshot().RemoteID)
		})
	}
}

func TestStaleTransportEventsIgnored(t *testing.T) {
	m, _, fac := newTestMachine(WithPLIInterval(time.Hour))

	require.NoError(t, m.Call("B"))
	old := fac.last()
	require.NoError(t, m.EndCall())

	require.NoError(t, m.Call("C"))
	old.onState(models.TransportDisconnected)
	assert.Equal(t, "C", m.Snapshot().RemoteID)
	assert.Equal(t, Negotiating, m.Snapshot().Phase)
}

func TestEndCall(t *testing.T) {
	m, _, fac := newTestMachine(WithPLIInterval(time.Hour))

	assert.ErrorIs(t, m.EndCall(), ErrNoTransport)

	require.NoError(t, m.HandleMessage(models.NewIdentity("me")))
	require.NoError(t, m.Call("B"))
	fac.last().onState(models.TransportConnected)

	require.NoError(t, m.EndCall())
	assert.Equal(t, State{LocalID: "me"}, m.Snapshot())
	assert.Equal(t, 1, fac.last().disconnects())
}

func TestPLILoopRunsWhileConnected(t *testing.T) {
	m, _, fac := newTestMachine(WithPLIInterval(10 * time.Millisecond))

	require.NoError(t, m.Call("B"))
	tr := fac.last()
	tr.onState(models.TransportConnected)

	assert.Eventually(t, func() bool { return tr.pliCount() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.EndCall())
	time.Sleep(30 * time.Millisecond)
	n := tr.pliCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, tr.pliCount())
}

func TestRunEndsCallOnShutdown(t *testing.T) {
	m, sig, fac := newTestMachine()
	in := make(chan models.SignalingMessage, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, in) }()

	in <- models.NewIdentity("me")
	in <- models.SignalingMessage{From: "X", SigType: models.SigOffer, Data: "o"}
	in <- models.SignalingMessage{From: "X", SigType: models.SigCandidate, Data: "c"}

	assert.Eventually(t, func() bool { return len(sig.messages()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, fac.last().disconnects())
	assert.Equal(t, Idle, m.Snapshot().Phase)
}
