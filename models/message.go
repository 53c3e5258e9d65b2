package models

import (
	"encoding/json"
	"fmt"
)

// ============================================================
// SIGNALING MESSAGE
// ============================================================

// SigType tags the payload carried by a SignalingMessage.
type SigType string

const (
	SigIdentity  SigType = "Identity"
	SigOffer     SigType = "Offer"
	SigAnswer    SigType = "Answer"
	SigCandidate SigType = "Candidate"
)

func (t SigType) Valid() bool {
	switch t {
	case SigIdentity, SigOffer, SigAnswer, SigCandidate:
		return true
	}
	return false
}

func (t *SigType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("sig_type: %w", err)
	}
	if !SigType(s).Valid() {
		return fmt.Errorf("unknown sig_type %q", s)
	}
	*t = SigType(s)
	return nil
}

// SignalingMessage is the single JSON frame exchanged with the relay.
// An empty To broadcasts to every other peer. From is always rewritten
// by the relay with the sender's registered id.
type SignalingMessage struct {
	To      string  `json:"to"`
	From    string  `json:"from"`
	SigType SigType `json:"sig_type"`
	Data    string  `json:"data"`
}

func (m SignalingMessage) IsBroadcast() bool {
	return m.To == ""
}

func (m SignalingMessage) String() string {
	to := m.To
	if to == "" {
		to = "*"
	}
	return fmt.Sprintf("%s %s->%s (%d bytes)", m.SigType, m.From, to, len(m.Data))
}

// ParseSignalingMessage decodes one wire frame.
func ParseSignalingMessage(raw []byte) (SignalingMessage, error) {
	var msg SignalingMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return SignalingMessage{}, fmt.Errorf("decode signaling message: %w", err)
	}
	if msg.SigType == "" {
		return SignalingMessage{}, fmt.Errorf("decode signaling message: missing sig_type")
	}
	return msg, nil
}

// NewIdentity builds the greeting the relay pushes right after upgrade.
func NewIdentity(peerID string) SignalingMessage {
	return SignalingMessage{
		To:      peerID,
		From:    ServerPeerID,
		SigType: SigIdentity,
		Data:    peerID,
	}
}
