package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fjarsyn/models"
)

const eventQueueSize = 32

type Option func(*Machine)

func WithPLIInterval(d time.Duration) Option {
	return func(m *Machine) { m.pliInterval = d }
}

// WithSender attaches the outgoing media pump while a call is connected.
func WithSender(s *Sender) Option {
	return func(m *Machine) { m.sender = s }
}

// WithReceiver feeds remote samples of every transport to r.
func WithReceiver(r *Receiver) Option {
	return func(m *Machine) { m.receiver = r }
}

// ============================================================
// MACHINE
// ============================================================

// Machine is the call state machine. Signaling messages go through
// HandleMessage (or Run); transport events arrive via the callbacks it
// installs on each transport it creates.
type Machine struct {
	signaler    Signaler
	factory     TransportFactory
	pliInterval time.Duration
	sender      *Sender
	receiver    *Receiver

	mu        sync.Mutex
	state     State
	transport Transport
	stopPLI   context.CancelFunc

	events chan Event
}

func NewMachine(signaler Signaler, factory TransportFactory, opts ...Option) *Machine {
	m := &Machine{
		signaler:    signaler,
		factory:     factory,
		pliInterval: models.PLIInterval,
		events:      make(chan Event, eventQueueSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Events delivers lifecycle notifications. Old events are dropped when
// nobody reads them.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// Run handles incoming messages until ctx ends or the channel closes,
// then ends any active call.
func (m *Machine) Run(ctx context.Context, incoming <-chan models.SignalingMessage) error {
	defer m.EndCall()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			if err := m.HandleMessage(msg); err != nil {
				log.Warnf("⚠️  %s: %v", msg, err)
			}
		}
	}
}

// ============================================================
// SIGNALING
// ============================================================

func (m *Machine) HandleMessage(msg models.SignalingMessage) error {
	switch msg.SigType {
	case models.SigIdentity:
		return m.handleIdentity(msg)
	case models.SigOffer:
		return m.handleOffer(msg)
	case models.SigAnswer:
		return m.handleAnswer(msg)
	case models.SigCandidate:
		return m.handleCandidate(msg)
	default:
		return fmt.Errorf("unexpected message type %q", msg.SigType)
	}
}

func (m *Machine) handleIdentity(msg models.SignalingMessage) error {
	m.mu.Lock()
	m.state.LocalID = msg.Data
	m.mu.Unlock()

	log.Infof("🪪 Local id: %s", msg.Data)
	m.emit(Event{Kind: EventIdentity, Peer: msg.Data})
	return nil
}

// handleOffer auto-answers when idle.
func (m *Machine) handleOffer(msg models.SignalingMessage) error {
	if msg.From == "" {
		return fmt.Errorf("offer without sender")
	}

	t, err := m.begin(msg.From)
	if err != nil {
		return err
	}

	log.Infof("📞 Incoming call from %s", msg.From)

	answer, err := t.AcceptOffer(msg.Data)
	if err != nil {
		m.fail(t, msg.From, err)
		return fmt.Errorf("accept offer: %w", err)
	}

	if err := m.signaler.Send(models.SignalingMessage{
		To:      msg.From,
		SigType: models.SigAnswer,
		Data:    answer,
	}); err != nil {
		m.fail(t, msg.From, err)
		return fmt.Errorf("send answer: %w", err)
	}

	m.emit(Event{Kind: EventIncomingCall, Peer: msg.From})
	return nil
}

func (m *Machine) handleAnswer(msg models.SignalingMessage) error {
	m.mu.Lock()
	t := m.transport
	ok := m.state.Phase == Negotiating && t != nil && msg.From == m.state.RemoteID
	m.mu.Unlock()

	if !ok {
		log.Debugf("Ignoring answer from %s", msg.From)
		return nil
	}

	if err := t.ApplyAnswer(msg.Data); err != nil {
		m.fail(t, msg.From, err)
		return fmt.Errorf("apply answer: %w", err)
	}
	log.Infof("✅ Answer from %s applied", msg.From)
	return nil
}

func (m *Machine) handleCandidate(msg models.SignalingMessage) error {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()

	if t == nil {
		return ErrNoTransport
	}
	return t.AddCandidate(msg.Data)
}

// ============================================================
// CALL CONTROL
// ============================================================

// Call sends an offer to target.
func (m *Machine) Call(target string) error {
	if target == "" {
		return fmt.Errorf("call: empty target")
	}

	t, err := m.begin(target)
	if err != nil {
		return err
	}

	offer, err := t.CreateOffer()
	if err != nil {
		m.fail(t, target, err)
		return fmt.Errorf("create offer: %w", err)
	}

	if err := m.signaler.Send(models.SignalingMessage{
		To:      target,
		SigType: models.SigOffer,
		Data:    offer,
	}); err != nil {
		m.fail(t, target, err)
		return fmt.Errorf("send offer: %w", err)
	}

	log.Infof("📞 Calling %s", target)
	m.emit(Event{Kind: EventOutgoingCall, Peer: target})
	return nil
}

// EndCall closes the transport and resets the call.
func (m *Machine) EndCall() error {
	m.mu.Lock()
	t := m.transport
	remote := m.state.RemoteID
	if t == nil && m.state.Phase == Idle {
		m.mu.Unlock()
		return ErrNoTransport
	}
	m.resetLocked()
	m.mu.Unlock()

	if t != nil {
		t.Disconnect()
	}
	log.Infof("📴 Call with %s ended", remote)
	m.emit(Event{Kind: EventDisconnected, Peer: remote})
	return nil
}

// begin moves Idle -> Negotiating with a fresh transport to remote.
func (m *Machine) begin(remote string) (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != Idle || m.transport != nil {
		return nil, fmt.Errorf("%w with %s", ErrBusy, m.state.RemoteID)
	}

	t, err := m.factory(remote)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}

	t.OnStateChange(func(s models.TransportState) {
		m.handleTransportState(t, s)
	})
	t.OnKeyframeRequest(func() {
		if m.sender != nil {
			m.sender.RequestKeyframe()
		}
	})
	if m.receiver != nil {
		t.OnRemoteSample(m.receiver.HandleSample)
	}

	m.transport = t
	m.state.RemoteID = remote
	m.state.Phase = Negotiating
	return t, nil
}

// fail tears down t if it is still the active transport.
func (m *Machine) fail(t Transport, remote string, err error) {
	m.mu.Lock()
	current := m.transport == t
	if current {
		m.resetLocked()
	}
	m.mu.Unlock()

	t.Disconnect()
	if current {
		log.Errorf("❌ Call with %s failed: %v", remote, err)
		m.emit(Event{Kind: EventFailed, Peer: remote, Err: err})
	}
}

func (m *Machine) resetLocked() {
	if m.stopPLI != nil {
		m.stopPLI()
		m.stopPLI = nil
	}
	if m.sender != nil {
		m.sender.Detach()
	}
	m.transport = nil
	m.state.RemoteID = ""
	m.state.Phase = Idle
}

// ============================================================
// TRANSPORT EVENTS
// ============================================================

// HandleTransportState applies a state change of the active transport.
func (m *Machine) HandleTransportState(s models.TransportState) {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t != nil {
		m.handleTransportState(t, s)
	}
}

func (m *Machine) handleTransportState(t Transport, s models.TransportState) {
	m.mu.Lock()
	if m.transport != t {
		m.mu.Unlock()
		return
	}
	remote := m.state.RemoteID

	switch s {
	case models.TransportConnected:
		if m.state.Phase != Negotiating {
			m.mu.Unlock()
			return
		}
		m.state.Phase = Connected

		ctx, cancel := context.WithCancel(context.Background())
		m.stopPLI = cancel
		go StartPLILoop(ctx, m.pliInterval, m.keyframeRequester)
		if m.sender != nil {
			m.sender.Attach(t)
		}
		m.mu.Unlock()

		log.Infof("🎉 Connected to %s", remote)
		m.emit(Event{Kind: EventConnected, Peer: remote})

	case models.TransportDisconnected:
		m.state.Phase = Disconnected
		m.resetLocked()
		m.mu.Unlock()

		go t.Disconnect()
		log.Infof("🔴 Disconnected from %s", remote)
		m.emit(Event{Kind: EventDisconnected, Peer: remote})

	default:
		m.mu.Unlock()
	}
}

// keyframeRequester resolves the transport for the PLI loop while the call
// is connected.
func (m *Machine) keyframeRequester() KeyframeRequester {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport == nil || m.state.Phase != Connected {
		return nil
	}
	return m.transport
}

func (m *Machine) emit(ev Event) {
	for {
		select {
		case m.events <- ev:
			return
		default:
		}
		select {
		case <-m.events:
		default:
		}
	}
}
