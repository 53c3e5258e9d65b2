package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ============================================================
// OFFER / ANSWER
// ============================================================

// CreateOffer sets the local offer and returns the SDP to send.
func (p *Peer) CreateOffer() (string, error) {
	if p.ctx.Err() != nil {
		return "", ErrNoPeer
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	log.Infof("📝 Offer created for %s", p.remoteID)
	return PatchSDPBandwidth(offer.SDP, p.cfg.BitrateKbps), nil
}

// AcceptOffer applies a remote offer and returns the answer SDP.
func (p *Peer) AcceptOffer(sdp string) (string, error) {
	if p.ctx.Err() != nil {
		return "", ErrNoPeer
	}

	if err := p.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	log.Infof("📝 Answer created for %s", p.remoteID)
	return PatchSDPBandwidth(answer.SDP, p.cfg.BitrateKbps), nil
}

// ApplyAnswer completes negotiation started by CreateOffer.
func (p *Peer) ApplyAnswer(sdp string) error {
	if p.ctx.Err() != nil {
		return ErrNoPeer
	}
	return p.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (p *Peer) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	p.flushPendingCandidates()
	return nil
}
