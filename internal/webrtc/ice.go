package webrtc

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"fjarsyn/models"
)

// ============================================================
// SEND ICE CANDIDATE
// ============================================================

func (p *Peer) sendCandidate(candidate *webrtc.ICECandidate) {
	data, err := json.Marshal(candidate.ToJSON())
	if err != nil {
		log.Warnf("⚠️  Failed to marshal ICE candidate: %v", err)
		return
	}

	msg := models.SignalingMessage{
		To:      p.remoteID,
		SigType: models.SigCandidate,
		Data:    string(data),
	}
	if err := p.signaler.Send(msg); err != nil {
		log.Warnf("⚠️  Failed to send ICE candidate: %v", err)
	}
}

// ============================================================
// RECEIVE ICE CANDIDATE
// ============================================================

// AddCandidate applies a JSON ICECandidateInit, queueing it until the
// remote description is in place.
func (p *Peer) AddCandidate(data string) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(data), &candidate); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}
	if p.ctx.Err() != nil {
		return ErrNoPeer
	}

	p.mu.Lock()
	if !p.remoteSet {
		p.pendingICE = append(p.pendingICE, candidate)
		n := len(p.pendingICE)
		p.mu.Unlock()
		log.Debugf("📦 Queued ICE (total: %d)", n)
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ICE: %w", err)
	}
	log.Debugf("✅ Added ICE (sdpMid: %s)", sdpMid(candidate))
	return nil
}

func (p *Peer) flushPendingCandidates() {
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pendingICE
	p.pendingICE = nil
	p.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	log.Debugf("📦 Processing %d pending ICE candidates...", len(pending))
	for i, candidate := range pending {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			log.Warnf("⚠️  Failed to add pending ICE %d: %v", i+1, err)
		}
	}
}

func (p *Peer) pendingCandidates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pendingICE)
}

func sdpMid(c webrtc.ICECandidateInit) string {
	if c.SDPMid == nil {
		return "unknown"
	}
	return *c.SDPMid
}
