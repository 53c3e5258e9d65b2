// Package call drives one-to-one call negotiation over the signaling relay
// and moves media between capture, codec and transport.
package call

import (
	"errors"
	"time"

	"fjarsyn/internal/logging"
	"fjarsyn/models"
)

var log = logging.New("call")

var (
	ErrNoTransport = errors.New("no active transport")
	ErrBusy        = errors.New("already in a call")
)

// ============================================================
// COLLABORATORS
// ============================================================

type Signaler interface {
	Send(msg models.SignalingMessage) error
}

type KeyframeRequester interface {
	RequestKeyframe() error
}

type SampleSink interface {
	SendSample(data []byte, duration time.Duration) error
}

// Transport is one media connection to a remote peer.
type Transport interface {
	KeyframeRequester
	SampleSink

	CreateOffer() (string, error)
	AcceptOffer(sdp string) (string, error)
	ApplyAnswer(sdp string) error
	AddCandidate(data string) error

	OnRemoteSample(fn func([]byte))
	OnStateChange(fn func(models.TransportState))
	OnKeyframeRequest(fn func())
	Disconnect()
}

// TransportFactory opens a transport towards remoteID.
type TransportFactory func(remoteID string) (Transport, error)

// ============================================================
// STATE
// ============================================================

type Phase int

const (
	Idle Phase = iota
	Negotiating
	Connected
	Disconnected
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Negotiating:
		return "negotiating"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type State struct {
	LocalID  string
	RemoteID string
	Phase    Phase
}

// ============================================================
// EVENTS
// ============================================================

type EventKind int

const (
	EventIdentity EventKind = iota
	EventIncomingCall
	EventOutgoingCall
	EventConnected
	EventDisconnected
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventIdentity:
		return "identity"
	case EventIncomingCall:
		return "incoming-call"
	case EventOutgoingCall:
		return "outgoing-call"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Peer string
	Err  error
}
