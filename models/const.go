package models

import "time"

// ============================================================
// SIGNALING CONSTANTS
// ============================================================

const (
	ServerPeerID      = "server"
	SignalingPath     = "/ws"
	HealthPath        = "/healthz"
	DefaultRelayAddr  = "0.0.0.0:30000"
	DefaultServerURL  = "ws://127.0.0.1:30000/ws"
	PeerQueueSize     = 100 // relay per-peer outbound buffer
	ClientQueueSize   = 100 // client outbound and inbound buffers
	PingInterval      = 10 * time.Second
	PongWait          = 30 * time.Second
	WriteTimeout      = 10 * time.Second
	HandshakeTimeout  = 10 * time.Second
	MaxMessageSize    = 1 << 20
	InitialRetryDelay = 500 * time.Millisecond
	MaxRetryDelay     = 10 * time.Second
	MaxRetries        = 8
)

// ============================================================
// MEDIA CONSTANTS
// ============================================================

const (
	VideoTrackID     = "video"
	VideoStreamID    = "loki"
	DefaultSTUNURL   = "stun:stun.l.google.com:19302"
	PLIInterval      = 3 * time.Second
	FrameQueueDepth  = 2 // capture -> consumer channel
	PipelineDepth    = 2 // staging ring size
	ArenaInitialSize = 128000
	PoolMaxBuffers   = 8
)
