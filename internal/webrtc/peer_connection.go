package webrtc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"fjarsyn/models"
)

// ============================================================
// PEER CREATION
// ============================================================

// NewPeer builds a peer connection towards remoteID with the local video
// track attached. Candidates it gathers are sent through signaler.
func NewPeer(cfg Config, signaler Signaler, remoteID string) (*Peer, error) {
	if signaler == nil {
		return nil, fmt.Errorf("signaler cannot be nil")
	}

	api, err := newAPI(cfg)
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(cfg.configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		models.VideoTrackID,
		models.VideoStreamID,
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	rtpSender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		cfg:      cfg,
		signaler: signaler,
		remoteID: remoteID,
		pc:       pc,
		track:    track,
		ctx:      ctx,
		cancel:   cancel,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.readSenderRTCP(rtpSender)
	}()

	p.setupHandlers()

	log.Infof("✅ Peer connection created for %s", remoteID)
	return p, nil
}

func (p *Peer) RemoteID() string {
	return p.remoteID
}

// ============================================================
// PEER CONNECTION HANDLERS
// ============================================================

func (p *Peer) setupHandlers() {
	p.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			log.Debugf("✅ ICE gathering complete")
			return
		}
		p.sendCandidate(candidate)
	})

	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Infof("🔗 Connection: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			p.emitState(models.TransportConnected)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			p.emitState(models.TransportDisconnected)
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Infof("🎬 Track: %s (codec: %s)", track.Kind().String(), track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		p.remoteSSRC.Store(uint32(track.SSRC()))

		if err := p.RequestKeyframe(); err != nil {
			log.Warnf("⚠️  Initial PLI failed: %v", err)
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.readRemoteTrack(track)
		}()
	})
}

// OnRemoteSample sets the callback for reassembled remote access units.
func (p *Peer) OnRemoteSample(fn func([]byte)) {
	p.mu.Lock()
	p.onSample = fn
	p.mu.Unlock()
}

// OnKeyframeRequest sets the callback fired when the remote asks for a
// keyframe with PLI or FIR.
func (p *Peer) OnKeyframeRequest(fn func()) {
	p.mu.Lock()
	p.onKeyframe = fn
	p.mu.Unlock()
}

// OnStateChange sets the callback for connected and disconnected events.
// Repeated events of the same kind are folded into one.
func (p *Peer) OnStateChange(fn func(models.TransportState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *Peer) emitState(state models.TransportState) {
	p.mu.Lock()
	if p.lastState == state {
		p.mu.Unlock()
		return
	}
	p.lastState = state
	fn := p.onState
	p.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

// ============================================================
// MEDIA
// ============================================================

// readSenderRTCP drains feedback for the local track. Interceptors only
// see RTCP that someone reads.
func (p *Peer) readSenderRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range packets {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				p.mu.Lock()
				fn := p.onKeyframe
				p.mu.Unlock()
				if fn != nil {
					fn()
				}
			}
		}
	}
}

// SendSample writes one encoded access unit to the video track.
func (p *Peer) SendSample(data []byte, duration time.Duration) error {
	if p.ctx.Err() != nil {
		return ErrNoPeer
	}
	if err := p.track.WriteSample(media.Sample{Data: data, Duration: duration}); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}

// RequestKeyframe sends a picture loss indication for the remote video.
// It is a no-op until the remote track has arrived.
func (p *Peer) RequestKeyframe() error {
	if p.ctx.Err() != nil {
		return ErrNoPeer
	}
	ssrc := p.remoteSSRC.Load()
	if ssrc == 0 {
		log.Tracef("PLI skipped, no remote track yet")
		return nil
	}

	if err := p.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: ssrc},
	}); err != nil {
		if errors.Is(err, webrtc.ErrConnectionClosed) {
			return ErrNoPeer
		}
		return fmt.Errorf("write PLI: %w", err)
	}
	log.Debugf("✉️  PLI sent (ssrc %d)", ssrc)
	return nil
}
