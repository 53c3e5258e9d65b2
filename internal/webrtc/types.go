package webrtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"fjarsyn/models"
)

var ErrNoPeer = errors.New("peer connection closed")

// ============================================================
// SIGNALER
// ============================================================

// Signaler delivers messages to the relay. *signaling.Conn satisfies it.
type Signaler interface {
	Send(msg models.SignalingMessage) error
}

// ============================================================
// PEER
// ============================================================

// Peer is one pion peer connection to a single remote id, carrying an
// outgoing H.264 track and receiving the remote one.
type Peer struct {
	cfg      Config
	signaler Signaler
	remoteID string

	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu         sync.Mutex
	pendingICE []webrtc.ICECandidateInit
	remoteSet  bool
	onSample   func([]byte)
	onState    func(models.TransportState)
	onKeyframe func()
	lastState  models.TransportState

	remoteSSRC atomic.Uint32
}
